package util

import "unicode/utf8"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate cuts s to at most n runes. Audit details store user text through
// it, so multi-byte characters are never split.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
