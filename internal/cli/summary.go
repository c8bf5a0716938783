package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/forPelevin/yt2text/internal/types"
)

const maxDetailRunes = 60

// renderSummary formats one row per report entry plus a totals footer.
func renderSummary(r types.BatchReport, colorize bool) string {
	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"#", "Title", "Outcome", "Detail"})

	for i, e := range r.Entries {
		name := e.Title
		if name == "" {
			name = e.Reference
		}
		tw.AppendRow(table.Row{i + 1, truncateRunes(name, maxDetailRunes), outcomeLabel(e.Outcome, colorize), truncateRunes(detail(e), maxDetailRunes)})
	}

	ok, failed := r.Counts()
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d ok", ok), fmt.Sprintf("%d failed", failed)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func detail(e types.ReportEntry) string {
	switch {
	case !e.Succeeded():
		if e.Stage != "" {
			return string(e.Stage) + ": " + firstLine(stripStagePrefix(e.Error, e.Stage))
		}
		return firstLine(e.Error)
	case e.CaptionLanguage != "":
		return "captions (" + e.CaptionLanguage + ")"
	default:
		return strconv.Itoa(e.Segments) + " segments"
	}
}

func outcomeLabel(outcome string, colorize bool) string {
	if !colorize {
		return outcome
	}
	switch outcome {
	case types.OutcomeFailed.String():
		return text.Colors{text.FgRed}.Sprint(outcome)
	case types.OutcomeCaptionHit.String():
		return text.Colors{text.FgCyan}.Sprint(outcome)
	default:
		return text.Colors{text.FgGreen}.Sprint(outcome)
	}
}

func stripStagePrefix(msg string, stage types.Stage) string {
	prefix := string(stage) + ": "
	if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
