// Package pingmatrix loads real-world round-trip measurements between
// numbered hosts.
package pingmatrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Column positions in the ping table. Extra columns are ignored.
const (
	colSource = 0
	colDest   = 1
	colAvg    = 4
	colStdDev = 6
)

// Latency is one directed measurement in milliseconds.
type Latency struct {
	Avg    float64 `yaml:"avg" json:"avg"`
	StdDev float64 `yaml:"std_dev" json:"std_dev"`
}

// Pair is an ordered (source, destination) host pair.
type Pair struct {
	Src int
	Dst int
}

// Matrix is an immutable, asymmetric lookup of measured latencies.
type Matrix struct {
	entries map[Pair]Latency
}

// New copies entries into a Matrix.
func New(entries map[Pair]Latency) *Matrix {
	m := &Matrix{entries: make(map[Pair]Latency, len(entries))}
	for k, v := range entries {
		m.entries[k] = v
	}
	return m
}

// Lookup returns the measurement for src->dst. The reverse direction is
// never consulted.
func (m *Matrix) Lookup(src, dst int) (Latency, bool) {
	if m == nil {
		return Latency{}, false
	}
	l, ok := m.entries[Pair{Src: src, Dst: dst}]
	return l, ok
}

// Len returns the number of directed measurements.
func (m *Matrix) Len() int { return len(m.entries) }

// Hosts returns every host id appearing as source or destination, sorted.
func (m *Matrix) Hosts() []int {
	seen := make(map[int]struct{})
	for p := range m.entries {
		seen[p.Src] = struct{}{}
		seen[p.Dst] = struct{}{}
	}
	hosts := make([]int, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Ints(hosts)
	return hosts
}

// Load reads a ping table from path.
func Load(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ping table: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse reads a comma-separated ping table with a header row. Values may be
// quoted and rows may carry any number of extra columns.
func Parse(r io.Reader) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	entries := make(map[Pair]Latency)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) <= colStdDev {
			return nil, fmt.Errorf("line %d: expected at least %d columns, got %d", line, colStdDev+1, len(rec))
		}
		src, err := strconv.Atoi(clean(rec[colSource]))
		if err != nil {
			return nil, fmt.Errorf("line %d: source: %w", line, err)
		}
		dst, err := strconv.Atoi(clean(rec[colDest]))
		if err != nil {
			return nil, fmt.Errorf("line %d: destination: %w", line, err)
		}
		avg, err := strconv.ParseFloat(clean(rec[colAvg]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: average: %w", line, err)
		}
		std, err := strconv.ParseFloat(clean(rec[colStdDev]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: std dev: %w", line, err)
		}
		entries[Pair{Src: src, Dst: dst}] = Latency{Avg: avg, StdDev: std}
	}
	return &Matrix{entries: entries}, nil
}

func clean(field string) string {
	return strings.TrimSpace(strings.ReplaceAll(field, `"`, ""))
}
