package subtitles

import (
	"strings"
	"unicode"
)

// ReflowOptions controls plain-text layout. Zero value passes text through.
type ReflowOptions struct {
	ByPunct bool
	Width   int
}

// Reflow lays out a full transcript for the .txt artifact. The result always
// ends with exactly one newline.
func Reflow(text string, opt ReflowOptions) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "\n"
	}
	if !opt.ByPunct && opt.Width <= 0 {
		return text + "\n"
	}

	var lines []string
	if opt.ByPunct {
		for _, s := range SplitSentences(text) {
			if opt.Width > 0 {
				lines = append(lines, wrap(s, opt.Width)...)
			} else {
				lines = append(lines, s)
			}
		}
	} else {
		lines = wrap(text, opt.Width)
	}
	return strings.Join(lines, "\n") + "\n"
}

// WrapEntry wraps the text of a single subtitle entry. width <= 0 disables
// wrapping.
func WrapEntry(text string, width int) string {
	text = strings.TrimSpace(text)
	if width <= 0 || text == "" {
		return text
	}
	return strings.Join(wrap(text, width), "\n")
}

// SplitSentences splits text after each sentence terminator, keeping the
// terminator with its sentence. A "." between two digits is a decimal point,
// not a terminator. Returned sentences are trimmed and non-empty.
func SplitSentences(text string) []string {
	rs := []rune(text)
	var out []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, s)
		}
		buf.Reset()
	}
	for i, r := range rs {
		buf.WriteRune(r)
		if isTerminator(rs, i) {
			flush()
		}
	}
	flush()
	return out
}

func isTerminator(rs []rune, i int) bool {
	switch rs[i] {
	case '。', '！', '？', '；', '…':
		return true
	case '.':
		decimal := i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1])
		return !decimal
	}
	return false
}

// wrap is a greedy word wrapper measured in runes. Whitespace runs between
// words collapse to one space; a word longer than width is split, first
// filling whatever room is left on the current line.
func wrap(text string, width int) []string {
	var (
		lines  []string
		b      strings.Builder
		curLen int
	)
	flush := func() {
		lines = append(lines, b.String())
		b.Reset()
		curLen = 0
	}

	for _, word := range strings.Fields(text) {
		wr := []rune(word)
		for len(wr) > 0 {
			sep := 0
			if curLen > 0 {
				sep = 1
			}
			if curLen+sep+len(wr) <= width {
				if sep == 1 {
					b.WriteByte(' ')
				}
				b.WriteString(string(wr))
				curLen += sep + len(wr)
				break
			}
			if curLen > 0 && len(wr) <= width {
				flush()
				continue
			}
			room := width - curLen - sep
			if room <= 0 {
				flush()
				continue
			}
			if sep == 1 {
				b.WriteByte(' ')
			}
			b.WriteString(string(wr[:room]))
			wr = wr[room:]
			flush()
		}
	}
	if curLen > 0 {
		flush()
	}
	return lines
}
