// Package analysis computes the propagation stretch of one published
// message from the peer logs of a finished run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"wanemu/internal/logging"
	"wanemu/internal/pingmatrix"
)

var (
	// ErrNoSource means no log contains a publish event.
	ErrNoSource = errors.New("could not determine source node or publish time")
	// ErrMultipleSources means more than one log contains a publish event.
	ErrMultipleSources = errors.New("more than one node published")
)

// DiagKind names a data gap found during analysis.
type DiagKind string

const (
	DiagDidNotReceive DiagKind = "did-not-receive"
	DiagNoPingData    DiagKind = "no-ping-data"
	DiagBadTimestamp  DiagKind = "bad-timestamp"
	DiagNoPeerID      DiagKind = "no-peer-id"
	DiagUnreadableLog DiagKind = "unreadable-log"
	DiagLongLine      DiagKind = "long-line"
)

// Diagnostic is a non-fatal gap that excluded data from the result.
type Diagnostic struct {
	Node    int      `json:"node"`
	Kind    DiagKind `json:"kind"`
	Message string   `json:"message"`
}

// Source is the publishing node.
type Source struct {
	Node        int       `json:"node"`
	PublishedAt time.Time `json:"published_at"`
	PeerID      string    `json:"peer_id,omitempty"`
}

// Sample is the stretch observed at one receiving node.
type Sample struct {
	Node        int     `json:"node"`
	DelayMillis float64 `json:"delay_ms"`
	PingMillis  float64 `json:"ping_ms"`
	Stretch     float64 `json:"stretch"`
}

// Summary aggregates stretch samples. Mean is the reported average.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Report is the result of one analysis pass.
type Report struct {
	RunID       string       `json:"run_id,omitempty"`
	Dir         string       `json:"dir,omitempty"`
	Source      Source       `json:"source"`
	Samples     []Sample     `json:"samples"`
	Summary     Summary      `json:"summary"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Fingerprint identifies the analyzed log contents.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Stretches returns the stretch values in sample order.
func (r *Report) Stretches() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Stretch
	}
	return out
}

// Analyze reads the peer logs in dir and computes stretches against pings.
// When no single source exists the returned report still carries the scan
// diagnostics alongside the error.
func Analyze(ctx context.Context, dir string, pings *pingmatrix.Matrix) (*Report, error) {
	logs, err := ScanDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	rep, err := AnalyzeLogs(logs, pings)
	rep.Dir = dir
	if fp, ferr := Fingerprint(dir); ferr == nil {
		rep.Fingerprint = fp
	} else {
		logging.FromContext(ctx).Warn("fingerprint failed", "dir", dir, "err", ferr)
	}
	return rep, err
}

// AnalyzeLogs computes stretches from already scanned logs. Exactly one
// log may contain a publish event.
func AnalyzeLogs(logs []NodeLog, pings *pingmatrix.Matrix) (*Report, error) {
	rep := &Report{}
	logs = append([]NodeLog(nil), logs...)
	sort.Slice(logs, func(i, j int) bool { return logs[i].Node < logs[j].Node })

	var sources []NodeLog
	for _, nl := range logs {
		rep.Diagnostics = append(rep.Diagnostics, nl.Diagnostics...)
		if nl.Published != nil {
			sources = append(sources, nl)
		}
	}
	switch {
	case len(sources) == 0:
		return rep, ErrNoSource
	case len(sources) > 1:
		nodes := make([]int, len(sources))
		for i, s := range sources {
			nodes[i] = s.Node
		}
		return rep, fmt.Errorf("%w: nodes %v", ErrMultipleSources, nodes)
	}
	src := sources[0]
	rep.Source = Source{Node: src.Node, PublishedAt: *src.Published, PeerID: src.PeerID}
	if src.PeerID == "" {
		rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
			Node: src.Node, Kind: DiagNoPeerID,
			Message: fmt.Sprintf("Node %d logged no peer ID", src.Node),
		})
	}

	for _, nl := range logs {
		if nl.Node == src.Node {
			continue
		}
		if nl.Received == nil {
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Node: nl.Node, Kind: DiagDidNotReceive,
				Message: fmt.Sprintf("Node %d did not receive the message", nl.Node),
			})
			continue
		}
		lat, ok := pings.Lookup(src.Node, nl.Node)
		if !ok || lat.Avg <= 0 {
			rep.Diagnostics = append(rep.Diagnostics, Diagnostic{
				Node: nl.Node, Kind: DiagNoPingData,
				Message: fmt.Sprintf("No ping data for %d->%d", src.Node, nl.Node),
			})
			continue
		}
		delay := float64(nl.Received.Sub(*src.Published)) / float64(time.Millisecond)
		rep.Samples = append(rep.Samples, Sample{
			Node:        nl.Node,
			DelayMillis: delay,
			PingMillis:  lat.Avg,
			Stretch:     delay / lat.Avg,
		})
	}
	rep.Summary = Summarize(rep.Stretches())
	return rep, nil
}

// Summarize computes summary statistics of xs. An empty slice yields a zero
// Summary.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	s := Summary{
		Count:  len(xs),
		Mean:   stat.Mean(xs, nil),
		Median: median(sorted),
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
