package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/zero-models/zerogen/internal/generate"
	"github.com/zero-models/zerogen/internal/generate/writer"
)

// SummaryOptions controls run summary rendering.
type SummaryOptions struct {
	Verbose bool
	NoColor bool
}

// RenderRunSummary writes the outcome of a generation run: a per-model table
// in verbose mode, the run stats, warnings, errors, and a final status line.
func RenderRunSummary(w io.Writer, res *generate.Result, opts SummaryOptions) {
	if res == nil {
		return
	}

	if opts.Verbose && len(res.Models) > 0 {
		table := NewTable(w, []string{"Model", "Table", "Files", "Patterns"}, opts.NoColor)
		for _, m := range res.Models {
			table.AddRow(m.Model, m.Table, summarizeActions(m.Files), strings.Join(m.Patterns, ", "))
		}
		table.Render()
		fmt.Fprintln(w)
	}

	stats := NewKeyValueTable(w, opts.NoColor)
	stats.AddRow("models", fmt.Sprintf("%d", len(res.Models)))
	stats.AddRow("files written", fmt.Sprintf("%d", res.Stats.FilesWritten))
	stats.AddRow("files identical", fmt.Sprintf("%d", res.Stats.FilesIdentical))
	if res.Stats.FilesSkipped > 0 {
		stats.AddRow("files skipped", fmt.Sprintf("%d", res.Stats.FilesSkipped))
	}
	stats.AddRow("elapsed", res.Stats.Elapsed.Round(time.Millisecond).String())
	stats.Render()
	fmt.Fprintln(w)

	if res.Stats.FilesSkipped > 0 && res.Stats.FilesWritten == 0 {
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(w, "dry run: %d files would be written\n\n", res.Stats.FilesSkipped)
	}

	if len(res.Warnings) > 0 {
		section := NewSection(w, fmt.Sprintf("Warnings (%d)", len(res.Warnings)), opts.NoColor)
		for _, warning := range res.Warnings {
			section.AddLine(warning)
		}
		section.Render()
	}

	if len(res.Errors) > 0 {
		section := NewSection(w, fmt.Sprintf("Errors (%d)", len(res.Errors)), opts.NoColor)
		for _, msg := range res.Errors {
			section.AddLine(msg)
		}
		section.Render()
	}

	if res.Success {
		WriteSuccess(w, fmt.Sprintf("Generated %d models in %s",
			len(res.Models), res.Stats.Elapsed.Round(time.Millisecond)), opts.NoColor)
		return
	}

	red := color.New(color.FgRed, color.Bold)
	if opts.NoColor {
		red.DisableColor()
	}
	red.Fprintf(w, "✗ Generation failed: %d errors across %d tables\n", len(res.Errors), countFailedTables(res))
}

// summarizeActions folds a model's file reports into a short cell like
// "2 written, 1 identical".
func summarizeActions(files []generate.FileReport) string {
	counts := make(map[writer.Action]int)
	for _, f := range files {
		counts[f.Action]++
	}

	var parts []string
	if n := counts[writer.ActionWritten]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d written", n))
	}
	if n := counts[writer.ActionIdentical]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d identical", n))
	}
	if n := counts[writer.ActionSkippedDryRun]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// countFailedTables approximates how many tables errored: each recorded
// error is table-scoped, but a table can record several.
func countFailedTables(res *generate.Result) int {
	seen := make(map[string]bool)
	for _, msg := range res.Errors {
		table, _, found := strings.Cut(msg, ":")
		if !found {
			table = msg
		}
		seen[table] = true
	}
	return len(seen)
}
