// Package ui renders CLI output: run summaries, tables, progress
// indicators, and the standard error message format. Everything takes an
// io.Writer and a noColor flag so tests and non-tty runs get plain text.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders aligned columnar output, used for per-model run summaries
// and schema listings.
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given column headers.
func NewTable(w io.Writer, headers []string, noColor bool) *Table {
	return &Table{
		writer:  w,
		headers: headers,
		noColor: noColor,
	}
}

// AddRow appends a row. Rows wider than the header list are truncated.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render writes the table.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	if t.noColor {
		bold.DisableColor()
	}
	for i, header := range t.headers {
		bold.Fprint(t.writer, padRight(header, widths[i]))
		if i < len(t.headers)-1 {
			fmt.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	gray := color.New(color.FgHiBlack)
	if t.noColor {
		gray.DisableColor()
	}
	for i, width := range widths {
		gray.Fprint(t.writer, strings.Repeat("─", width))
		if i < len(widths)-1 {
			gray.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprint(t.writer, padRight(cell, widths[i]))
				if i < len(row)-1 && i < len(widths)-1 {
					fmt.Fprint(t.writer, "  ")
				}
			}
		}
		fmt.Fprintln(t.writer)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// KeyValueTable renders aligned key: value pairs, used for run stats and
// the migration status readout.
type KeyValueTable struct {
	writer  io.Writer
	rows    []kvRow
	noColor bool
}

type kvRow struct {
	key   string
	value string
}

// NewKeyValueTable creates an empty key-value table.
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow appends a key-value pair.
func (t *KeyValueTable) AddRow(key, value string) {
	t.rows = append(t.rows, kvRow{key: key, value: value})
}

// Render writes the pairs with keys right-padded to a common width.
func (t *KeyValueTable) Render() {
	if len(t.rows) == 0 {
		return
	}

	maxKeyWidth := 0
	for _, row := range t.rows {
		if len(row.key) > maxKeyWidth {
			maxKeyWidth = len(row.key)
		}
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for _, row := range t.rows {
		cyan.Fprint(t.writer, padRight(row.key+":", maxKeyWidth+1))
		fmt.Fprintf(t.writer, " %s\n", row.value)
	}
}

// Section renders a titled block with indented content lines, used for the
// warnings and errors blocks of the run summary.
type Section struct {
	writer  io.Writer
	title   string
	content []string
	noColor bool
}

// NewSection creates a section with the given title.
func NewSection(w io.Writer, title string, noColor bool) *Section {
	return &Section{writer: w, title: title, noColor: noColor}
}

// AddLine appends a content line.
func (s *Section) AddLine(line string) {
	s.content = append(s.content, line)
}

// Render writes the title and indented content, followed by a blank line.
func (s *Section) Render() {
	bold := color.New(color.Bold, color.FgCyan)
	if s.noColor {
		bold.DisableColor()
	}
	bold.Fprintln(s.writer, s.title)

	for _, line := range s.content {
		fmt.Fprintf(s.writer, "  %s\n", line)
	}
	fmt.Fprintln(s.writer)
}

// List renders a bulleted or numbered list, used for validation findings.
type List struct {
	writer   io.Writer
	items    []string
	numbered bool
	noColor  bool
}

// NewList creates an empty list.
func NewList(w io.Writer, numbered, noColor bool) *List {
	return &List{writer: w, numbered: numbered, noColor: noColor}
}

// AddItem appends an item.
func (l *List) AddItem(item string) {
	l.items = append(l.items, item)
}

// Render writes the items.
func (l *List) Render() {
	if len(l.items) == 0 {
		return
	}

	cyan := color.New(color.FgCyan)
	if l.noColor {
		cyan.DisableColor()
	}
	for i, item := range l.items {
		if l.numbered {
			cyan.Fprintf(l.writer, "%d. ", i+1)
		} else {
			cyan.Fprint(l.writer, "• ")
		}
		fmt.Fprintln(l.writer, item)
	}
}

// Divider renders a horizontal rule. Zero width means 80 columns.
func Divider(w io.Writer, width int, noColor bool) {
	if width == 0 {
		width = 80
	}

	gray := color.New(color.FgHiBlack)
	if noColor {
		gray.DisableColor()
	}
	gray.Fprintln(w, strings.Repeat("─", width))
}

// Header renders a bold title with an underline divider.
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	if noColor {
		bold.DisableColor()
	}
	bold.Fprintln(w, title)
	Divider(w, len(title), noColor)
}
