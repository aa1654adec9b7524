// Package layout formats text into fixed-width lines for narrow thermal
// printers. Every function is pure: the same input always gives the same
// line, so callers can build receipts without touching a device.
package layout

import (
	"strings"
	"unicode/utf8"
)

// DefaultWidth is the column count of a 58mm printer with the default font.
const DefaultWidth = 32

// Layout formats lines for a printer with Width columns.
// Lengths are measured in runes, not bytes.
type Layout struct {
	Width int
}

// New returns a Layout for width columns. Non-positive widths use DefaultWidth.
func New(width int) Layout {
	if width <= 0 {
		width = DefaultWidth
	}
	return Layout{Width: width}
}

func (l Layout) width() int {
	if l.Width <= 0 {
		return DefaultWidth
	}
	return l.Width
}

// Center truncates text to the line width, or left-pads it so it sits in the
// middle of the line. The right side is never padded.
func (l Layout) Center(text string) string {
	w := l.width()
	n := utf8.RuneCountInString(text)
	if n >= w {
		return truncate(text, w)
	}
	return strings.Repeat(" ", (w-n)/2) + text
}

// LeftRight places left at the start of the line and right at the end with
// at least one space between them. If the two do not fit together the result
// is longer than the line width; nothing is truncated.
func (l Layout) LeftRight(left, right string) string {
	pad := l.width() - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// Rule returns a full-width divider.
func (l Layout) Rule() string {
	return strings.Repeat("-", l.width())
}

// Wrap splits text into consecutive chunks of at most the line width.
// Joining the chunks gives back text exactly. Returns nil for empty text.
func (l Layout) Wrap(text string) []string {
	if text == "" {
		return nil
	}
	w := l.width()

	var out []string
	for text != "" {
		cut := byteOffset(text, w)
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	return s[:byteOffset(s, n)]
}

// byteOffset returns the byte index just past the first n runes of s,
// or len(s) if s is shorter.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
