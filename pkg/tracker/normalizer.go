package tracker

import (
	"regexp"
	"strings"
)

// Placeholder replaces every literal value in a cleaned query.
const Placeholder = "???"

// Rule is a single lexical rewrite applied to query text.
type Rule struct {
	Name  string
	Apply func(query string) string
}

const (
	stringLiteral  = `'(?:[^']|'')*'`
	numberLiteral  = `[-+]?(?:\d+(?:\.\d+)?|\.\d+)(?:[eE][-+]?\d+)?\b`
	scalarLiteral  = `(?:` + stringLiteral + `|` + numberLiteral + `)`
	literalListSep = `\s*,\s*`
)

var (
	whitespaceRegex  = regexp.MustCompile(`\s+`)
	valuesRegex      = regexp.MustCompile(`(?i)\bVALUES\s*`)
	wholeLiteral     = regexp.MustCompile(`^` + scalarLiteral + `$`)
	literalListRegex = regexp.MustCompile(`\(\s*` + scalarLiteral + `(?:` + literalListSep + scalarLiteral + `)*\s*\)`)
	comparisonRegex  = regexp.MustCompile(`(!=|<>|<=|>=|=|<|>)(\s*)` + scalarLiteral)
	betweenRegex     = regexp.MustCompile(`(?i)(\bBETWEEN\s+)` + scalarLiteral + `(\s+AND\s+)` + scalarLiteral)
	limitRegex       = regexp.MustCompile(`(?i)(\b(?:LIMIT|OFFSET)\s+)\d+\b(?:(\s*,\s*)\d+\b)?`)
	patternRegex     = regexp.MustCompile(`(?i)(\b(?:I?LIKE|SIMILAR\s+TO)\s+)` + stringLiteral)
)

var rules = []Rule{
	{Name: "collapse-whitespace", Apply: collapseWhitespace},
	// Must run before literal-lists: tuples keep their arity.
	{Name: "values-tuples", Apply: maskValuesTuples},
	{Name: "literal-lists", Apply: func(q string) string {
		return literalListRegex.ReplaceAllLiteralString(q, "("+Placeholder+")")
	}},
	{Name: "comparison-operands", Apply: func(q string) string {
		return comparisonRegex.ReplaceAllString(q, "${1}${2}"+Placeholder)
	}},
	{Name: "between-operands", Apply: func(q string) string {
		return betweenRegex.ReplaceAllString(q, "${1}"+Placeholder+"${2}"+Placeholder)
	}},
	{Name: "limit-offset", Apply: func(q string) string {
		return limitRegex.ReplaceAllStringFunc(q, func(m string) string {
			groups := limitRegex.FindStringSubmatch(m)
			if groups[2] != "" {
				return groups[1] + Placeholder + groups[2] + Placeholder
			}
			return groups[1] + Placeholder
		})
	}},
	{Name: "pattern-operands", Apply: func(q string) string {
		return patternRegex.ReplaceAllString(q, "${1}"+Placeholder)
	}},
}

// Rules returns the ordered rewrite rules used by CleanSQLQuery.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// CleanSQLQuery masks literal values in query so that statements differing only
// in their literals produce the same text. Keywords and identifiers keep their
// original case. Applying it to its own output returns the output unchanged.
func CleanSQLQuery(query string) string {
	for _, rule := range rules {
		query = rule.Apply(query)
	}
	return query
}

// Fingerprint returns the aggregation key for query: the cleaned text folded to
// lower case.
func Fingerprint(query string) string {
	return strings.ToLower(CleanSQLQuery(query))
}

func collapseWhitespace(query string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(query, " "))
}

// maskValuesTuples replaces each literal element of every tuple following a
// VALUES keyword. Non-literal elements such as DEFAULT or function calls are
// left as they are.
func maskValuesTuples(query string) string {
	locs := valuesRegex.FindAllStringIndex(query, -1)
	if len(locs) == 0 {
		return query
	}

	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		if loc[0] < last {
			continue
		}
		sb.WriteString(query[last:loc[1]])
		last = loc[1]

		pos := loc[1]
		for {
			end := matchingParen(query, pos)
			if end < 0 {
				break
			}
			sb.WriteString(maskTuple(query[pos : end+1]))
			pos = end + 1
			last = pos

			next := skipSpaces(query, pos)
			if next >= len(query) || query[next] != ',' {
				break
			}
			afterComma := skipSpaces(query, next+1)
			if afterComma >= len(query) || query[afterComma] != '(' {
				break
			}
			sb.WriteString(query[pos:afterComma])
			pos = afterComma
			last = pos
		}
	}
	sb.WriteString(query[last:])
	return sb.String()
}

// maskTuple masks literal elements of a single parenthesized tuple, keeping the
// whitespace around each element.
func maskTuple(tuple string) string {
	inner := tuple[1 : len(tuple)-1]
	parts := splitTopLevel(inner)
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" || !wholeLiteral.MatchString(trimmed) {
			continue
		}
		lead := part[:strings.Index(part, trimmed)]
		trail := part[len(lead)+len(trimmed):]
		parts[i] = lead + Placeholder + trail
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// matchingParen returns the index of the parenthesis closing the one at start,
// or -1 when query[start] is not '(' or the group is unbalanced.
func matchingParen(query string, start int) int {
	if start >= len(query) || query[start] != '(' {
		return -1
	}
	depth := 0
	inString := false
	for i := start; i < len(query); i++ {
		c := query[i]
		switch {
		case inString:
			if c == '\'' {
				if i+1 < len(query) && query[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on commas that are outside quotes and parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func skipSpaces(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
