package silver

import "strings"

// Clean normalizes an opinion body for downstream model preparation.
// OCR'd dumps carry NUL bytes, CRLF line endings, and long runs of blank
// lines and padding spaces; none of it is signal.
func Clean(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	newlines := 0 // consecutive newlines emitted
	spaces := 0   // consecutive spaces/tabs pending
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case 0:
			// drop NUL
		case '\r':
			// CRLF and bare CR both normalize to LF; the LF branch
			// handles the collapse.
			if i+1 < len(s) && s[i+1] == '\n' {
				continue
			}
			fallthrough
		case '\n':
			spaces = 0
			if newlines < 2 {
				b.WriteByte('\n')
			}
			newlines++
		case ' ', '\t':
			spaces++
		default:
			if spaces > 0 && b.Len() > 0 && newlines == 0 {
				b.WriteByte(' ')
			}
			spaces = 0
			newlines = 0
			b.WriteByte(c)
		}
	}

	return strings.TrimSpace(b.String())
}
