// Package output provides consistent CLI output formatting with colors and progress indicators.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/amannotes/internal/index"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	styles   Styles
}

// New creates a Writer that colors output only on a terminal and when
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, IsTTY(out) && !DetectNoColor())
}

// NewWithColor creates a Writer with explicit color handling.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	styles := NoColorStyles()
	if useColor {
		styles = DefaultStyles()
	}
	return &Writer{out: out, useColor: useColor, styles: styles}
}

// UseColor reports whether the writer emits styled text.
func (w *Writer) UseColor() bool { return w.useColor }

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", w.styles.Success.Render(msg))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", w.styles.Warning.Render(msg))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", w.styles.Error.Render(msg))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// KeyValue prints an aligned label and value.
func (w *Writer) KeyValue(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(fmt.Sprintf("%-18s", label+":")), value)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress prints a progress bar with message.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	// Carriage return for in-place updates
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)

	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// SearchResults prints ranked hits, one block per chunk.
func (w *Writer) SearchResults(query string, hits []index.SearchHit) {
	if len(hits) == 0 {
		w.Warningf("No notes found for %q", query)
		return
	}
	w.Header(fmt.Sprintf("%d result(s) for %q", len(hits), query))
	for i, h := range hits {
		_, _ = fmt.Fprintf(w.out, "\n%2d. %s %s\n", i+1, h.NoteID,
			w.styles.Score.Render(fmt.Sprintf("[%s %.3f]", h.Source, h.Score)))
		for _, line := range strings.Split(snippet(h.ChunkText, 240), "\n") {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
	}
}

// IndexStatus prints a coordinator status.
func (w *Writer) IndexStatus(st index.Status) {
	w.Header("Index status")
	w.KeyValue("Merge policy", string(st.MergePolicy))
	if st.Indexing {
		w.KeyValue("Full reindex", "running")
	}
	if st.LastFullReindexAt.IsZero() {
		w.KeyValue("Last full reindex", "never")
	} else {
		w.KeyValue("Last full reindex", st.LastFullReindexAt.Local().Format(time.RFC3339))
	}
	if st.Queued > 0 {
		w.KeyValue("Queued changes", fmt.Sprintf("%d", st.Queued))
	}
	if p := st.Progress; p != nil {
		bar := renderProgressBar(p.NotesProcessed, p.NotesTotal, 20)
		value := fmt.Sprintf("[%s] %.0f%% %d/%d notes (%s)", bar, p.ProgressPct, p.NotesProcessed, p.NotesTotal, p.Status)
		if p.NotesFailed > 0 {
			value += fmt.Sprintf(", %d failed", p.NotesFailed)
		}
		w.KeyValue("Progress", value)
		if p.ErrorMessage != "" {
			w.KeyValue("Error", w.styles.Error.Render(p.ErrorMessage))
		}
	}

	names := make([]string, 0, len(st.Backends))
	for name := range st.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := st.Backends[name]
		w.KeyValue(name, fmt.Sprintf("%d notes, %d chunks", b.Notes, b.Chunks))
	}
}

// snippet trims text to max runes.
func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
