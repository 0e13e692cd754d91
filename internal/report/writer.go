// Package report publishes stretch analysis results.
package report

import (
	"errors"

	"wanemu/internal/analysis"
)

// Writer consumes a finished analysis.
type Writer interface {
	WriteReport(rep *analysis.Report) error
}

// MultiWriter fans a report out to several writers. Every writer is tried
// even when an earlier one fails.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter drops nil writers.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Len is the number of wrapped writers.
func (m *MultiWriter) Len() int { return len(m.writers) }

// WriteReport implements Writer.
func (m *MultiWriter) WriteReport(rep *analysis.Report) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.WriteReport(rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
