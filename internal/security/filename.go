// Package security guards file paths built from user-supplied identifiers.
package security

import "strings"

// maxFilenameLen bounds the length of a sanitized name in bytes.
const maxFilenameLen = 128

// SanitizeFilename turns an arbitrary identifier, such as a source ID,
// into a single path element. Runs of characters other than ASCII letters,
// digits, dot, underscore and dash become one underscore. Leading and
// trailing dots and underscores are trimmed, so the result never names a
// parent directory. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
