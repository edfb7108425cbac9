package builder

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// fallbackQuery builds a best-effort BuilderQuery from text that the
// parser rejected, per spec.md's degrade-to-fallback-tree policy: the UI
// stays responsive with a Where tree built by a regex tokenizer instead of
// a full parse, and the raw text is preserved in each Clause's Source.
func fallbackQuery(text string) *BuilderQuery {
	source := "tasks"
	body := text
	if idx := strings.Index(strings.ToUpper(body), " FROM "); idx >= 0 {
		rest := body[idx+len(" FROM "):]
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			source = fields[0]
		}
		if wIdx := strings.Index(strings.ToUpper(rest), " WHERE "); wIdx >= 0 {
			body = rest[wIdx+len(" WHERE "):]
		} else {
			body = ""
		}
	}

	return &BuilderQuery{
		Statement: "FIND",
		Source:    source,
		Where:     fallbackGroup(body),
	}
}

var clauseRe = regexp.MustCompile(`(?i)^\s*([a-zA-Z_][\w.]*)\s*(!=|<>|<=|>=|~|!~|=|<|>)\s*(.+?)\s*$`)

var betweenRe = regexp.MustCompile(`(?i)^\s*([a-zA-Z_][\w.]*)\s+BETWEEN\s+(.+?)\s+AND\s+(.+?)\s*$`)

var inRe = regexp.MustCompile(`(?i)^\s*([a-zA-Z_][\w.]*)\s+(NOT\s+)?IN\s*\((.+)\)\s*$`)

// fallbackGroup splits body on top-level AND/OR (outside quotes and
// parens) and turns every segment into a Clause via clauseRe/betweenRe/
// inRe, falling back to a raw-text clause when none match.
func fallbackGroup(body string) *Group {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	op, segments := splitTopLevel(body)
	g := &Group{ID: uuid.NewString(), Operator: op}
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "(") && strings.HasSuffix(seg, ")") {
			inner := fallbackGroup(seg[1 : len(seg)-1])
			if inner != nil {
				g.Children = append(g.Children, inner)
			}
			continue
		}
		g.Children = append(g.Children, fallbackClause(seg))
	}
	return g
}

func fallbackClause(seg string) *Clause {
	if m := betweenRe.FindStringSubmatch(seg); m != nil {
		return &Clause{ID: uuid.NewString(), Field: m[1], Comparator: "BETWEEN", Value: m[2] + " AND " + m[3], Source: seg, Confidence: 0.5}
	}
	if m := inRe.FindStringSubmatch(seg); m != nil {
		cmp := "IN"
		if strings.TrimSpace(m[2]) != "" {
			cmp = "NOT IN"
		}
		return &Clause{ID: uuid.NewString(), Field: m[1], Comparator: cmp, Value: m[3], Source: seg, Confidence: 0.5}
	}
	if m := clauseRe.FindStringSubmatch(seg); m != nil {
		value := strings.Trim(m[3], "'\"")
		quoted := value != m[3]
		return &Clause{ID: uuid.NewString(), Field: m[1], Comparator: m[2], Value: value, Source: seg, Confidence: 0.5, ValueWasQuoted: quoted}
	}
	return &Clause{ID: uuid.NewString(), Comparator: "TEXT", Value: seg, Source: seg, Confidence: 0.2}
}

// splitTopLevel splits body on " AND " or " OR " (whichever appears first
// at depth 0, outside quotes/parens), reporting which operator it used.
// A body with no top-level boolean keyword is a single segment under AND.
func splitTopLevel(body string) (GroupOperator, []string) {
	depth := 0
	inQuote := false
	var quoteChar rune
	upper := strings.ToUpper(body)

	var firstOp string
	var segments []string
	last := 0
	runes := []rune(body)
	upperRunes := []rune(upper)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if inQuote {
			if c == quoteChar {
				inQuote = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inQuote = true
			quoteChar = c
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 || inQuote {
			continue
		}
		if matchesWordAt(upperRunes, i, "AND") && (firstOp == "" || firstOp == "AND") {
			segments = append(segments, string(runes[last:i]))
			firstOp = "AND"
			i += 3
			last = i + 1
		} else if matchesWordAt(upperRunes, i, "OR") && (firstOp == "" || firstOp == "OR") {
			segments = append(segments, string(runes[last:i]))
			firstOp = "OR"
			i += 2
			last = i + 1
		}
	}
	segments = append(segments, string(runes[last:]))

	op := GroupAnd
	if firstOp == "OR" {
		op = GroupOr
	}
	return op, segments
}

func matchesWordAt(upper []rune, i int, word string) bool {
	wr := []rune(word)
	if i+len(wr) > len(upper) {
		return false
	}
	if string(upper[i:i+len(wr)]) != word {
		return false
	}
	if i > 0 && !isSpace(upper[i-1]) {
		return false
	}
	end := i + len(wr)
	if end < len(upper) && !isSpace(upper[end]) {
		return false
	}
	return true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
