package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Printer writes run-once output to a terminal or a pipe. When Quiet is set
// only tables and raw output are written.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Quiet bool
	Width int
}

// NewPrinter returns a Printer for stdout and stderr.
func NewPrinter(quiet bool) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Quiet: quiet, Width: GetTerminalWidth()}
}

// Header prints the command banner.
func (p *Printer) Header(title, command string, params map[string]string) {
	if p.Quiet {
		return
	}
	fmt.Fprintln(p.Out, NewHeader(title, command, params).SetWidth(p.Width).Render())
	fmt.Fprintln(p.Out)
}

// Success prints a success box.
func (p *Printer) Success(title string, details map[string]string) {
	if p.Quiet {
		return
	}
	fmt.Fprintln(p.Out, NewSuccessResult(title, details).SetWidth(p.Width).Render())
}

// Warning prints a warning box.
func (p *Printer) Warning(title string, details map[string]string) {
	fmt.Fprintln(p.Err, NewWarningResult(title, details).SetWidth(p.Width).Render())
}

// Failure prints a failure box to the error stream. Quiet does not suppress it.
func (p *Printer) Failure(title string, err error, hints ...string) {
	if p.Quiet {
		fmt.Fprintf(p.Err, "%s: %v\n", title, err)
		return
	}
	fmt.Fprintln(p.Err, NewFailureResult(title, err, hints).SetWidth(p.Width).Render())
}

// Table prints rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	fmt.Fprintln(p.Out, RenderTable(headers, rows))
}

// Raw writes s followed by a newline.
func (p *Printer) Raw(s string) {
	fmt.Fprintln(p.Out, s)
}

// RenderTable renders rows under headers with a rounded border. Rows shorter
// than headers are padded.
func RenderTable(headers []string, rows [][]string) string {
	padded := make([][]string, len(rows))
	for i, r := range rows {
		row := make([]string, len(headers))
		copy(row, r)
		padded[i] = row
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		}).
		Headers(headers...).
		Rows(padded...).
		Render()
}
