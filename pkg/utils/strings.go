package utils

import (
	"regexp"
	"strings"
)

var (
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entityRe = regexp.MustCompile(`&[a-zA-Z#0-9]+;`)
)

// ContainsAny checks if the text contains any of the given keywords
func ContainsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// StripHTML removes markup and common entities from feed descriptions,
// collapsing the remaining whitespace.
func StripHTML(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = entityRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts a string to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// IntersectionSize returns the number of distinct strings present in both
// sets, case-insensitively.
func IntersectionSize(a, b []string) int {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[strings.ToLower(s)] = true
	}
	count := 0
	matched := make(map[string]bool)
	for _, s := range b {
		k := strings.ToLower(s)
		if seen[k] && !matched[k] {
			matched[k] = true
			count++
		}
	}
	return count
}
