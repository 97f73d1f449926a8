// Package plate turns noisy recognized text into plate-shaped candidates.
package plate

import (
	"strings"
	"unicode"
)

// Candidate length bounds, inclusive.
const (
	MinLength = 5
	MaxLength = 8
)

// Extract returns plate candidates from text in priority order: every
// qualifying whitespace-separated token as it appears, then the whole text
// with whitespace removed. Duplicates are dropped.
func Extract(text string) []string {
	cleaned := clean(text)

	var candidates []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if !IsCandidate(s) {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		candidates = append(candidates, s)
	}

	fields := strings.Fields(cleaned)
	for _, token := range fields {
		add(token)
	}
	add(strings.Join(fields, ""))
	return candidates
}

// IsCandidate reports whether s is 5 to 8 characters of A-Z and 0-9 with at
// least one letter and one digit.
func IsCandidate(s string) bool {
	if len(s) < MinLength || len(s) > MaxLength {
		return false
	}
	var letter, digit bool
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= 'A' && c <= 'Z':
			letter = true
		case c >= '0' && c <= '9':
			digit = true
		default:
			return false
		}
	}
	return letter && digit
}

// Normalize uppercases a plate and removes dashes and spaces, the form the
// registry compares on.
func Normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}

// clean uppercases text and keeps only A-Z, 0-9 and whitespace.
func clean(text string) string {
	upper := strings.ToUpper(text)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case isSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}
