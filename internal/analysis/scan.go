package analysis

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// NodeLog is what one peer log says about its node. Only the first event of
// each kind with a parseable timestamp counts.
type NodeLog struct {
	Node      int        `json:"node"`
	Path      string     `json:"path,omitempty"`
	PeerID    string     `json:"peer_id,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Received  *time.Time `json:"received,omitempty"`
	// Peers lists every distinct peer the node reported a connection to.
	Peers       []string     `json:"peers,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// MaxLineBytes is how much of a log line is classified. Longer lines are
// cut to this prefix; the timestamp and event marker lead every line.
const MaxLineBytes = 64 * 1024

// Scan classifies every line of one log. On a read error the events seen
// so far are returned with the error.
func Scan(node int, r io.Reader) (NodeLog, error) {
	nl := NodeLog{Node: node}
	seen := make(map[string]struct{})
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, truncated, err := readLine(br, MaxLineBytes)
		if line != "" || err == nil {
			nl.observe(line, seen)
			if truncated {
				nl.Diagnostics = append(nl.Diagnostics, Diagnostic{
					Node:    node,
					Kind:    DiagLongLine,
					Message: fmt.Sprintf("Line %d longer than %d bytes, truncated", n, MaxLineBytes),
				})
			}
		}
		if errors.Is(err, io.EOF) {
			return nl, nil
		}
		if err != nil {
			return nl, err
		}
	}
}

// readLine returns the next line without its terminator, keeping at most
// limit bytes and discarding the rest.
func readLine(br *bufio.Reader, limit int) (string, bool, error) {
	var buf []byte
	truncated := false
	for {
		chunk, err := br.ReadSlice('\n')
		if err == nil {
			chunk = chunk[:len(chunk)-1]
		}
		if room := limit - len(buf); len(chunk) > room {
			buf = append(buf, chunk[:room]...)
			truncated = true
		} else {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(bytes.TrimSuffix(buf, []byte("\r"))), truncated, err
	}
}

func (nl *NodeLog) observe(line string, seen map[string]struct{}) {
	ev := Classify(line)
	switch ev.Kind {
	case KindIdentity:
		if nl.PeerID == "" && ev.Value != "" {
			nl.PeerID = ev.Value
		}
	case KindConnect:
		if _, ok := seen[ev.Value]; ev.Value != "" && !ok {
			seen[ev.Value] = struct{}{}
			nl.Peers = append(nl.Peers, ev.Value)
		}
	case KindPublish, KindReceive:
		slot := &nl.Published
		if ev.Kind == KindReceive {
			slot = &nl.Received
		}
		if *slot != nil {
			return
		}
		t, err := ParseTimestamp(ev.Stamp)
		if err != nil {
			nl.Diagnostics = append(nl.Diagnostics, Diagnostic{
				Node:    nl.Node,
				Kind:    DiagBadTimestamp,
				Message: fmt.Sprintf("Could not parse timestamp %s", line),
			})
			return
		}
		*slot = &t
	}
}

var logNameRe = regexp.MustCompile(`^node(\d+)\.log$`)

// LogFiles returns the peer logs in dir keyed by node id, in ascending
// node order.
func LogFiles(dir string) ([]int, map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	paths := make(map[int]string)
	var nodes []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := logNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		paths[id] = filepath.Join(dir, e.Name())
		nodes = append(nodes, id)
	}
	sort.Ints(nodes)
	return nodes, paths, nil
}

// ScanDir scans every peer log in dir. A log that cannot be read to the end
// keeps what was read and gains a diagnostic.
func ScanDir(ctx context.Context, dir string) ([]NodeLog, error) {
	nodes, paths, err := LogFiles(dir)
	if err != nil {
		return nil, err
	}
	out := make([]NodeLog, 0, len(nodes))
	for _, id := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nl, err := scanFile(id, paths[id])
		if err != nil {
			nl.Node, nl.Path = id, paths[id]
			nl.Diagnostics = append(nl.Diagnostics, Diagnostic{
				Node: id, Kind: DiagUnreadableLog, Message: err.Error(),
			})
		}
		out = append(out, nl)
	}
	return out, nil
}

func scanFile(id int, path string) (NodeLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return NodeLog{}, err
	}
	defer f.Close()
	nl, err := Scan(id, f)
	nl.Path = path
	return nl, err
}
