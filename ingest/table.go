package main

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/DeafMist/podcast-radar/internal/ingest"
)

const maxTitleWidth = 48

// renderSummary draws the per-episode outcomes of a run as a table, feed order preserved.
func renderSummary(summary *ingest.RunSummary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "Episode", "Title", "Outcome", "Stage", "Keywords", "Took"})

	for i, o := range summary.Outcomes {
		outcome, stage, keywords := "success", "", strconv.Itoa(o.Keywords)
		if !o.OK() {
			outcome, stage, keywords = "failure", string(o.Stage), ""
		}
		tw.AppendRow(table.Row{i + 1, o.EpisodeID, o.Title, outcome, stage, keywords, o.Duration.Round(time.Millisecond).String()})
	}

	tw.AppendFooter(table.Row{"", "", "",
		strconv.Itoa(summary.Succeeded()) + " ok / " + strconv.Itoa(summary.Failed()) + " failed",
		"", "", "deferred " + strconv.Itoa(summary.Deferred),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: maxTitleWidth},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
