package shaping

import (
	"math"

	"wanemu/internal/pingmatrix"
)

// Delay is the artificial latency applied to one directed pair.
type Delay struct {
	Millis       int  `yaml:"ms" json:"ms"`
	JitterMillis int  `yaml:"jitter_ms,omitempty" json:"jitter_ms,omitempty"`
	Measured     bool `yaml:"measured" json:"measured"`
}

// DelayEntry is a flattened matrix cell used for manifests.
type DelayEntry struct {
	Src   int   `yaml:"src" json:"src"`
	Dst   int   `yaml:"dst" json:"dst"`
	Delay Delay `yaml:",inline" json:"delay"`
}

// Matrix holds a delay for every ordered pair of distinct participants.
type Matrix struct {
	order   []int
	entries map[pingmatrix.Pair]Delay
}

// BuildMatrix derives delays from measured averages, rounded to whole
// milliseconds. Pairs without a measurement get defaultMillis. With jitter
// set, the rounded standard deviation becomes the netem jitter.
func BuildMatrix(pings *pingmatrix.Matrix, participants []int, defaultMillis int, jitter bool) *Matrix {
	m := &Matrix{
		order:   append([]int(nil), participants...),
		entries: make(map[pingmatrix.Pair]Delay, len(participants)*len(participants)),
	}
	for _, i := range participants {
		for _, j := range participants {
			if i == j {
				continue
			}
			d := Delay{Millis: defaultMillis}
			if l, ok := pings.Lookup(i, j); ok {
				d = Delay{Millis: int(math.Round(l.Avg)), Measured: true}
				if jitter {
					d.JitterMillis = int(math.Round(l.StdDev))
				}
			}
			m.entries[pingmatrix.Pair{Src: i, Dst: j}] = d
		}
	}
	return m
}

// Lookup returns the delay for src->dst.
func (m *Matrix) Lookup(src, dst int) (Delay, bool) {
	d, ok := m.entries[pingmatrix.Pair{Src: src, Dst: dst}]
	return d, ok
}

// Len is the number of defined pairs.
func (m *Matrix) Len() int { return len(m.entries) }

// Entries lists every pair in participant order.
func (m *Matrix) Entries() []DelayEntry {
	out := make([]DelayEntry, 0, len(m.entries))
	for _, i := range m.order {
		for _, j := range m.order {
			if d, ok := m.Lookup(i, j); ok {
				out = append(out, DelayEntry{Src: i, Dst: j, Delay: d})
			}
		}
	}
	return out
}
