// Package textnorm cleans raw extracted document text before chunking.
package textnorm

import "strings"

// Normalize removes every character outside [A-Za-z0-9.,!? ], collapses runs
// of whitespace to a single space and trims the result.
//
// Disallowed characters are dropped before whitespace is collapsed, so a
// newline or tab between two words is deleted rather than turned into a space.
// An empty result means the document has no usable content.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		if allowed(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '.', ',', '!', '?', ' ':
		return true
	}
	return false
}
