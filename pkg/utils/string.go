package utils

import (
	"strings"
	"unicode"
)

// SanitizeString drops control runes except line breaks and tabs, then
// trims surrounding whitespace.
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\n', r == '\r', r == '\t':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s))
}
