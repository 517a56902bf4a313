// Package phone canonicalizes caller numbers into reputation lookup keys.
//
// Normalization only strips whitespace. It does not parse or reformat
// numbers (no E.164 handling), so "+7 937..." and "8 937..." remain
// different keys.
package phone

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize returns the lookup key for a raw number. A nil raw number
// (withheld caller) stays nil.
func Normalize(raw *string) *string {
	if raw == nil {
		return nil
	}
	key := NormalizeString(*raw)
	return &key
}

// NormalizeString removes every whitespace rune from s and leaves all
// other bytes, including a leading '+' and invalid UTF-8, untouched.
func NormalizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		if !unicode.IsSpace(r) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}
