package subtitles

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/forPelevin/yt2text/internal/types"
)

var (
	reSeqLine   = regexp.MustCompile(`^\d+$`)
	reRangeLine = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}[,.]\d{3} --> `)
)

// RenderSRT renders one numbered block per segment, starting at 1. Entry text
// is wrapped at width (0 disables wrapping).
func RenderSRT(segs []types.Segment, width int) string {
	var b strings.Builder
	for i, s := range segs {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(FormatTimestamp(s.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(s.End))
		b.WriteString("\n")
		b.WriteString(WrapEntry(s.Text, width))
		b.WriteString("\n\n")
	}
	return b.String()
}

// CaptionText drops sequence numbers, timestamp ranges and blank lines from a
// caption track and joins what is left with newlines.
func CaptionText(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || reSeqLine.MatchString(t) || reRangeLine.MatchString(t) {
			continue
		}
		kept = append(kept, t)
	}
	return strings.Join(kept, "\n")
}

// JoinSegments concatenates segment texts in order with no separator.
func JoinSegments(segs []types.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.Text)
	}
	return strings.TrimSpace(b.String())
}
