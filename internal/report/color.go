package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/wordwrap"

	"wanemu/internal/analysis"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	fairStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	poorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// Stretch bands used for coloring.
const (
	goodStretch = 1.5
	fairStretch = 3.0
)

// ColorWriter renders the report as a table for terminals.
type ColorWriter struct {
	out   io.Writer
	width int
}

// NewColorWriter writes to out (STDOUT when nil), wrapping diagnostics at
// width columns.
func NewColorWriter(out io.Writer, width int) *ColorWriter {
	if out == nil {
		out = os.Stdout
	}
	if width <= 0 {
		width = 80
	}
	return &ColorWriter{out: out, width: width}
}

func stretchStyle(v float64) lipgloss.Style {
	switch {
	case v <= goodStretch:
		return goodStyle
	case v <= fairStretch:
		return fairStyle
	}
	return poorStyle
}

// WriteReport implements Writer.
func (w *ColorWriter) WriteReport(rep *analysis.Report) error {
	var b strings.Builder
	head := fmt.Sprintf("Source node %d", rep.Source.Node)
	if rep.RunID != "" {
		head += "  run " + rep.RunID
	}
	b.WriteString(titleStyle.Render(head))
	b.WriteString("\n")
	if rep.Source.PeerID != "" {
		b.WriteString(dimStyle.Render(rep.Source.PeerID))
		b.WriteString("\n")
	}

	rows := make([][]string, 0, len(rep.Samples))
	for _, s := range rep.Samples {
		rows = append(rows, []string{
			strconv.Itoa(s.Node),
			fmt.Sprintf("%.2f", s.DelayMillis),
			fmt.Sprintf("%g", s.PingMillis),
			fmt.Sprintf("%.2f", s.Stretch),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("NODE", "DELAY MS", "PING MS", "STRETCH").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 3 && row >= 0 && row < len(rep.Samples) {
				return stretchStyle(rep.Samples[row].Stretch).Padding(0, 1)
			}
			return cellStyle
		})
	b.WriteString(t.String())
	b.WriteString("\n")

	if rep.Summary.Count == 0 {
		b.WriteString(poorStyle.Render("No stretches calculated."))
		b.WriteString("\n")
	} else {
		s := rep.Summary
		fmt.Fprintf(&b, "%s %s  median %.2f  stddev %.2f  min %.2f  max %.2f  n=%d\n",
			titleStyle.Render("Average stretch:"),
			stretchStyle(s.Mean).Render(fmt.Sprintf("%.2f", s.Mean)),
			s.Median, s.StdDev, s.Min, s.Max, s.Count)
	}
	for _, d := range rep.Diagnostics {
		b.WriteString(fairStyle.Render(wordwrap.String("! "+d.Message, w.width)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w.out, b.String())
	return err
}
