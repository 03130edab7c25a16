// Package output formats short CLI status messages.
package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Writer prints prefixed status lines. Errors from writing are ignored
// for console output.
type Writer struct {
	out     io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	hint    lipgloss.Style
}

// New creates a Writer. With noColor set, prefixes are printed unstyled.
func New(out io.Writer, noColor bool) *Writer {
	w := &Writer{
		out:     out,
		success: lipgloss.NewStyle(),
		warning: lipgloss.NewStyle(),
		failure: lipgloss.NewStyle(),
		hint:    lipgloss.NewStyle(),
	}
	if !noColor {
		w.success = w.success.Foreground(lipgloss.Color("42"))
		w.warning = w.warning.Foreground(lipgloss.Color("220"))
		w.failure = w.failure.Foreground(lipgloss.Color("196"))
		w.hint = w.hint.Foreground(lipgloss.Color("245"))
	}
	return w
}

// Status prints msg after prefix, or indented when prefix is empty.
func (w *Writer) Status(prefix, msg string) {
	if prefix == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", prefix, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(prefix, format string, args ...any) {
	w.Status(prefix, fmt.Sprintf(format, args...))
}

// Success prints a line prefixed with a check mark.
func (w *Writer) Success(msg string) {
	w.Status(w.success.Render("✓"), msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a line prefixed with a warning sign.
func (w *Writer) Warning(msg string) {
	w.Status(w.warning.Render("!"), msg)
}

// Warningf prints a formatted warning line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a line prefixed with a cross.
func (w *Writer) Error(msg string) {
	w.Status(w.failure.Render("✗"), msg)
}

// Hint prints an indented, dimmed suggestion.
func (w *Writer) Hint(msg string) {
	w.Status("", w.hint.Render(msg))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
