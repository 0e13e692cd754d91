package report

import (
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"wanemu/internal/analysis"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one JSONL line: the full report stamped with its write time.
type Record struct {
	WrittenAt time.Time `json:"written_at"`
	*analysis.Report
}

// JSONLWriter appends one record per report to a file.
type JSONLWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *jsoniter.Encoder
	now func() time.Time
}

// NewJSONLWriter opens path for appending.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{f: f, enc: json.NewEncoder(f), now: time.Now}, nil
}

// WriteReport implements Writer.
func (w *JSONLWriter) WriteReport(rep *analysis.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(Record{WrittenAt: w.now().UTC(), Report: rep})
}

// Close closes the file.
func (w *JSONLWriter) Close() error {
	return w.f.Close()
}
