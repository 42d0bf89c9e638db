package matcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultPattern  = `[^/#?]+?`
	wildcardPattern = `.*`
	prefixChars     = "./"
)

var compiled sync.Map // pattern string -> *regexp.Regexp

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenKey
)

type token struct {
	kind     tokenKind
	literal  string
	name     string
	prefix   string
	pattern  string
	modifier byte
	named    bool
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := compiled.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	tokens, err := parse(pattern)
	if err != nil {
		return nil, err
	}
	source, keys := toRegexp(tokens)
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile path %q: %w", pattern, err)
	}
	if re.NumSubexp() != keys {
		return nil, fmt.Errorf("compile path %q: capturing groups are not allowed in parameter patterns", pattern)
	}
	compiled.Store(pattern, re)
	return re, nil
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9'
}

// parse splits a string template into literals and keys. A "/" or "."
// directly before a key becomes its prefix, so optional and repeated
// keys swallow their leading separator.
func parse(pattern string) ([]token, error) {
	var (
		tokens   []token
		literal  strings.Builder
		plainEnd bool // literal ends with an unescaped character
		position int
	)

	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, literal: literal.String()})
			literal.Reset()
		}
	}

	takePrefix := func() string {
		s := literal.String()
		if !plainEnd || s == "" || !strings.ContainsRune(prefixChars, rune(s[len(s)-1])) {
			return ""
		}
		literal.Reset()
		literal.WriteString(s[:len(s)-1])
		return s[len(s)-1:]
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			literal.WriteByte(pattern[i+1])
			plainEnd = false
			i += 2

		case c == ':' && i+1 < len(pattern) && isNameStart(pattern[i+1]):
			j := i + 1
			for j < len(pattern) && isNameChar(pattern[j]) {
				j++
			}
			key := token{kind: tokenKey, name: pattern[i+1 : j], pattern: defaultPattern, named: true}
			if j < len(pattern) && pattern[j] == '(' {
				group, end, err := readGroup(pattern, j)
				if err != nil {
					return nil, err
				}
				key.pattern = group
				j = end
			}
			key.prefix = takePrefix()
			key.modifier, j = readModifier(pattern, j)
			flush()
			tokens = append(tokens, key)
			plainEnd = false
			i = j

		case c == '(':
			group, end, err := readGroup(pattern, i)
			if err != nil {
				return nil, err
			}
			key := token{kind: tokenKey, name: strconv.Itoa(position), pattern: group}
			position++
			key.prefix = takePrefix()
			key.modifier, end = readModifier(pattern, end)
			flush()
			tokens = append(tokens, key)
			plainEnd = false
			i = end

		case c == '*':
			j := i
			for j < len(pattern) && pattern[j] == '*' {
				j++
			}
			key := token{kind: tokenKey, name: strconv.Itoa(position), pattern: wildcardPattern}
			position++
			key.prefix = takePrefix()
			flush()
			tokens = append(tokens, key)
			plainEnd = false
			i = j

		default:
			literal.WriteByte(c)
			plainEnd = true
			i++
		}
	}
	flush()
	return tokens, nil
}

func readModifier(pattern string, i int) (byte, int) {
	if i < len(pattern) {
		switch pattern[i] {
		case '?', '+', '*':
			return pattern[i], i + 1
		}
	}
	return 0, i
}

// readGroup reads a balanced "(...)" starting at i and returns its body
// and the index after the closing parenthesis.
func readGroup(pattern string, i int) (string, int, error) {
	depth := 0
	for j := i; j < len(pattern); j++ {
		switch pattern[j] {
		case '\\':
			j++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				body := pattern[i+1 : j]
				if body == "" {
					return "", 0, fmt.Errorf("missing pattern at %d in %q", i, pattern)
				}
				return body, j + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("unbalanced pattern at %d in %q", i, pattern)
}

// toRegexp renders tokens as an anchored, case-insensitive expression that
// tolerates one trailing delimiter. It returns the number of keys.
func toRegexp(tokens []token) (string, int) {
	var b strings.Builder
	b.WriteString("(?i)^")
	keys := 0
	for _, t := range tokens {
		if t.kind == tokenLiteral {
			b.WriteString(regexp.QuoteMeta(t.literal))
			continue
		}
		keys++
		open := "("
		if t.named {
			open = "(?P<" + t.name + ">"
		}
		prefix := regexp.QuoteMeta(t.prefix)
		repeated := t.modifier == '+' || t.modifier == '*'
		switch {
		case prefix != "" && repeated:
			fmt.Fprintf(&b, "(?:%s%s(?:%s)(?:%s(?:%s))*))", prefix, open, t.pattern, prefix, t.pattern)
			if t.modifier == '*' {
				b.WriteByte('?')
			}
		case prefix != "":
			fmt.Fprintf(&b, "(?:%s%s%s))", prefix, open, t.pattern)
			if t.modifier != 0 {
				b.WriteByte(t.modifier)
			}
		case repeated:
			fmt.Fprintf(&b, "%s(?:%s)%c)", open, t.pattern, t.modifier)
		default:
			fmt.Fprintf(&b, "%s%s)", open, t.pattern)
			if t.modifier != 0 {
				b.WriteByte(t.modifier)
			}
		}
	}
	b.WriteString("[/#?]?$")
	return b.String(), keys
}
