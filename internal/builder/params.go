package builder

import (
	"fmt"
	"strconv"
	"strings"
)

// numericSentinelBase is added to a parameter's index to produce a literal
// integer token that substitutes for a numeric ":name" placeholder
// (LIMIT/OFFSET/DEPTH/CAP) before parsing. It is large enough that no
// realistic literal value collides with it.
const numericSentinelBase = 919191000000

func stringSentinel(i int) string {
	return fmt.Sprintf("\x01opqlparam%d\x01", i)
}

func numericSentinelValue(i int) int64 {
	return numericSentinelBase + int64(i)
}

func numericSentinelIndex(n int64) (int, bool) {
	if n < numericSentinelBase || n >= numericSentinelBase+100000 {
		return 0, false
	}
	return int(n - numericSentinelBase), true
}

var numericContextKeywords = []string{"LIMIT", "OFFSET", "DEPTH", "CAP"}

type paramRef struct {
	Name    string
	Numeric bool
}

// CollectQueryParameters returns the ordered, de-duplicated list of ":name"
// parameters referenced in text outside quoted string literals, without
// building a BuilderQuery.
func CollectQueryParameters(text string) ([]string, error) {
	_, params, err := extractParameters(text)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(params))
	var names []string
	for _, p := range params {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		names = append(names, ":"+p.Name)
	}
	return names, nil
}

// extractParameters scans text outside of quoted string literals for
// ":name" placeholders and substitutes a sentinel literal for each: a
// quoted string sentinel by default, or a numeric sentinel when the
// placeholder immediately follows a LIMIT/OFFSET/DEPTH/CAP keyword. It
// returns the substituted text plus the ordered list of parameters found,
// so callers can restore them after parsing.
func extractParameters(text string) (string, []paramRef, error) {
	var out strings.Builder
	var params []paramRef

	inQuote := false
	var quoteChar rune
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if inQuote {
			out.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
				continue
			}
			if c == quoteChar {
				inQuote = false
			}
			continue
		}

		if c == '\'' || c == '"' {
			inQuote = true
			quoteChar = c
			out.WriteRune(c)
			continue
		}

		if c == ':' && i+1 < len(runes) && isNameStart(runes[i+1]) {
			j := i + 1
			for j < len(runes) && isNameChar(runes[j]) {
				j++
			}
			name := string(runes[i+1 : j])
			idx := len(params)
			numeric := precedingKeywordIsNumericContext(out.String())
			params = append(params, paramRef{Name: name, Numeric: numeric})
			if numeric {
				out.WriteString(strconv.FormatInt(numericSentinelValue(idx), 10))
			} else {
				out.WriteString("'")
				out.WriteString(stringSentinel(idx))
				out.WriteString("'")
			}
			i = j - 1
			continue
		}

		out.WriteRune(c)
	}

	if inQuote {
		return out.String(), params, &BuilderError{Kind: ErrUnbalancedQuotes, Text: text}
	}
	return out.String(), params, nil
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}

// precedingKeywordIsNumericContext looks at the trailing word of text
// already written (skipping whitespace) to decide whether the placeholder
// about to be substituted sits in a numeric-only grammar position.
func precedingKeywordIsNumericContext(soFar string) bool {
	trimmed := strings.TrimRight(soFar, " \t\r\n")
	upper := strings.ToUpper(trimmed)
	for _, kw := range numericContextKeywords {
		if strings.HasSuffix(upper, kw) {
			return true
		}
	}
	return false
}

// restoreStringValue replaces a value string with ":name" if it is exactly
// a string parameter sentinel, returning the restored value and whether a
// substitution happened.
func restoreStringValue(value string, params []paramRef) (string, bool) {
	for i, p := range params {
		if p.Numeric {
			continue
		}
		if value == stringSentinel(i) {
			return ":" + p.Name, true
		}
	}
	return value, false
}

// restoreNumericValue checks whether n is a numeric parameter sentinel,
// returning the preserved ":name" token when it is.
func restoreNumericValue(n int64, params []paramRef) (string, bool) {
	idx, ok := numericSentinelIndex(n)
	if !ok || idx >= len(params) || !params[idx].Numeric {
		return "", false
	}
	return ":" + params[idx].Name, true
}
