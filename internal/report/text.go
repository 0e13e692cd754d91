package report

import (
	"fmt"
	"io"
	"os"

	"wanemu/internal/analysis"
)

// TextWriter prints the plain analysis listing.
type TextWriter struct {
	out io.Writer
}

// NewTextWriter writes to out, or STDOUT when out is nil.
func NewTextWriter(out io.Writer) *TextWriter {
	if out == nil {
		out = os.Stdout
	}
	return &TextWriter{out: out}
}

// WriteReport implements Writer.
func (w *TextWriter) WriteReport(rep *analysis.Report) error {
	for _, d := range rep.Diagnostics {
		fmt.Fprintln(w.out, d.Message)
	}
	for _, s := range rep.Samples {
		fmt.Fprintf(w.out, "Node %d: stretch=%.2f (delay=%.2f ms, ping=%g ms)\n", s.Node, s.Stretch, s.DelayMillis, s.PingMillis)
	}
	if rep.Summary.Count == 0 {
		_, err := fmt.Fprintln(w.out, "No stretches calculated.")
		return err
	}
	_, err := fmt.Fprintf(w.out, "\nAverage stretch: %.2f\n", rep.Summary.Mean)
	return err
}
