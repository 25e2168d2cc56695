package todo

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTextLength is the longest accepted text, in runes, after sanitizing.
const MaxTextLength = 4096

// SanitizeText normalizes user-supplied text to NFC, removes control,
// bidirectional-override and zero-width characters, collapses line breaks and
// tabs to spaces, and trims the result.
//
// Returns ErrEmptyText if nothing printable remains.
func SanitizeText(s string) (string, error) {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case isInvisible(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyText
	}
	if n := utf8.RuneCountInString(out); n > MaxTextLength {
		return "", fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, n, MaxTextLength)
	}
	return out, nil
}

// isInvisible reports control characters and the format characters that can
// reorder or hide text (bidi embeddings, overrides, isolates, zero-width
// joiners, BOM).
func isInvisible(r rune) bool {
	switch {
	case unicode.IsControl(r):
		return true
	case r >= '\u202A' && r <= '\u202E': // LRE, RLE, PDF, LRO, RLO
		return true
	case r >= '\u2066' && r <= '\u2069': // LRI, RLI, FSI, PDI
		return true
	case r >= '\u200B' && r <= '\u200F': // ZWSP, ZWNJ, ZWJ, LRM, RLM
		return true
	case r == '\u2060' || r == '\uFEFF' || r == '\u061C':
		return true
	}
	return false
}
