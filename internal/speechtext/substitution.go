package speechtext

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// substitution is one rule line: either `from => to` (case-insensitive
// literal) or `s/pattern/replacement/flags` with any punctuation delimiter.
type substitution struct {
	re          *regexp.Regexp
	replacement string
	firstOnly   bool
}

func (s substitution) apply(text string) string {
	if !s.firstOnly {
		return s.re.ReplaceAllString(text, s.replacement)
	}
	loc := s.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	var expanded []byte
	expanded = s.re.ExpandString(expanded, s.replacement, text, loc)
	return text[:loc[0]] + string(expanded) + text[loc[1]:]
}

func parseSubstitutions(contents string) ([]substitution, error) {
	var subs []substitution
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			sub substitution
			err error
		)
		switch {
		case isSedRule(line):
			sub, err = parseSedRule(line)
		case strings.Contains(line, "=>"):
			sub, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseLiteralRule(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return substitution{}, errors.New("literal rule source cannot be empty")
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(from))
	return substitution{re: re, replacement: strings.ReplaceAll(strings.TrimSpace(to), "$", "$$")}, nil
}

func isSedRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && isDelimiter(line[1])
}

func isDelimiter(char byte) bool {
	return strings.IndexByte("/|#!,:;@%", char) >= 0
}

func parseSedRule(line string) (substitution, error) {
	delim := line[1]
	fields, rest, err := splitDelimited(line[2:], delim, 2)
	if err != nil {
		return substitution{}, err
	}

	prefix := "i"
	firstOnly := true
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			firstOnly = false
		case 'i':
		case 'm', 's':
			prefix += string(flag)
		default:
			return substitution{}, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + prefix + ")" + fields[0])
	if err != nil {
		return substitution{}, fmt.Errorf("invalid regex: %w", err)
	}
	return substitution{re: re, replacement: fields[1], firstOnly: firstOnly}, nil
}

// splitDelimited reads count delimiter-terminated fields, honouring
// backslash escapes, and returns the remainder after the last delimiter.
func splitDelimited(input string, delim byte, count int) ([]string, string, error) {
	fields := make([]string, 0, count)
	var current strings.Builder
	escaped := false
	for i := 0; i < len(input); i++ {
		char := input[i]
		switch {
		case escaped:
			if char != delim {
				current.WriteByte('\\')
			}
			current.WriteByte(char)
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			fields = append(fields, current.String())
			current.Reset()
			if len(fields) == count {
				return fields, input[i+1:], nil
			}
		default:
			current.WriteByte(char)
		}
	}
	return nil, "", errors.New("unterminated expression")
}
