// Package nl interprets a small set of natural-language query phrasings
// into a builder.BuilderQuery, which then funnels through the same
// queryToOpql path as any UI-built query. Unrecognized phrasings degrade to
// a best-effort full-text clause rather than failing the parse.
package nl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/knesgoda/opql-toolkit/internal/builder"
)

// rule pairs a phrasing pattern with the BuilderQuery it produces. Rules
// are tried in order; the first match wins.
type rule struct {
	pattern *regexp.Regexp
	build   func(m []string) *builder.BuilderQuery
}

var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)^my open (\w+?)s?$`),
		build: func(m []string) *builder.BuilderQuery {
			return findQuery(pluralSource(m[1]), groupAnd(
				clause("assignee", "=", "current_user()", false),
				clause("status", "=", "Open", true),
			))
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^my (\w+?)s?$`),
		build: func(m []string) *builder.BuilderQuery {
			return findQuery(pluralSource(m[1]), groupAnd(
				clause("assignee", "=", "current_user()", false),
			))
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(\w+?)s? assigned to me$`),
		build: func(m []string) *builder.BuilderQuery {
			return findQuery(pluralSource(m[1]), groupAnd(
				clause("assignee", "=", "current_user()", false),
			))
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(\w+?)s? created after (.+)$`),
		build: func(m []string) *builder.BuilderQuery {
			value := strings.TrimSpace(m[2])
			return findQuery(pluralSource(m[1]), groupAnd(
				clause("created_at", ">", value, !looksLikeDateMath(value)),
			))
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(\w+?)s? updated in the last (\d+)\s*(day|days|week|weeks|hour|hours|month|months)$`),
		build: func(m []string) *builder.BuilderQuery {
			n, _ := strconv.Atoi(m[2])
			unit := durationUnit(m[3])
			return findQuery(pluralSource(m[1]), groupAnd(
				clause("updated_at", ">", fmt.Sprintf("now()-%d%s", n, unit), false),
			))
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)^(\w+) is (.+)$`),
		build: func(m []string) *builder.BuilderQuery {
			field := strings.ToLower(m[1])
			value := strings.TrimSpace(m[2])
			return findQuery("tasks", groupAnd(
				clause(field, "=", value, true),
			))
		},
	},
}

// Interpret matches text against the known phrasings in order and returns
// the resulting query. Nothing it sees can fail: an unrecognized phrasing
// degrades to a single full-text clause against the title field.
func Interpret(text string) *builder.BuilderQuery {
	trimmed := strings.TrimSpace(text)
	for _, r := range rules {
		if m := r.pattern.FindStringSubmatch(trimmed); m != nil {
			return r.build(m)
		}
	}
	return fallbackQuery(trimmed)
}

func fallbackQuery(text string) *builder.BuilderQuery {
	return findQuery("tasks", groupAnd(
		&builder.Clause{
			ID:             uuid.NewString(),
			Field:          "title",
			Comparator:     "CONTAINS",
			Value:          text,
			Source:         fmt.Sprintf("contains(title, %s)", quote(text)),
			Confidence:     0.2,
			ValueWasQuoted: true,
		},
	))
}

func findQuery(source string, where *builder.Group) *builder.BuilderQuery {
	return &builder.BuilderQuery{
		Statement: "FIND",
		Source:    source,
		Where:     where,
	}
}

func groupAnd(clauses ...*builder.Clause) *builder.Group {
	children := make([]builder.Node, len(clauses))
	for i, c := range clauses {
		children[i] = c
	}
	return &builder.Group{ID: uuid.NewString(), Operator: builder.GroupAnd, Children: children}
}

func clause(field, comparator, value string, quoted bool) *builder.Clause {
	valueText := value
	if quoted {
		valueText = quote(value)
	}
	return &builder.Clause{
		ID:             uuid.NewString(),
		Field:          field,
		Comparator:     comparator,
		Value:          value,
		Source:         field + " " + comparator + " " + valueText,
		Confidence:     0.9,
		ValueWasQuoted: quoted,
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

// pluralSource lowercases and pluralizes a captured singular entity word
// ("task", "doc", "project") into the canonical source name Repository
// expects ("tasks", "docs", "projects").
func pluralSource(word string) string {
	lower := strings.ToLower(word)
	if strings.HasSuffix(lower, "s") {
		return lower
	}
	return lower + "s"
}

func durationUnit(word string) string {
	switch strings.ToLower(word) {
	case "hour", "hours":
		return "h"
	case "week", "weeks":
		return "w"
	case "month", "months":
		return "mo"
	default:
		return "d"
	}
}

// looksLikeDateMath reports whether s already reads like an OPQL now()
// expression rather than free text that needs quoting as a string literal;
// bare ISO dates still need quotes since OPQL has no bare date literal.
func looksLikeDateMath(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "now(")
}
