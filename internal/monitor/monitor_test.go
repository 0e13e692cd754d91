package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"wanemu/internal/analysis"
	"wanemu/internal/logging"
)

func at(ms int) *time.Time {
	t := time.Unix(1700000000, 0).Add(time.Duration(ms) * time.Millisecond)
	return &t
}

func TestBuildRows(t *testing.T) {
	logs := []analysis.NodeLog{
		{Node: 1, PeerID: "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ", Peers: []string{"a", "b"}, Published: at(0)},
		{Node: 2, Peers: []string{"a"}, Received: at(42)},
	}
	rows := buildRows([]int{1, 2, 3}, logs)
	want := []table.Row{
		{"1", "QmaC…QLuvuJ", "2", "yes", "-", ""},
		{"2", "", "1", "-", "yes", "42.0"},
		{"3", "", "0", "-", "-", ""},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestFindSourceRequiresSinglePublisher(t *testing.T) {
	logs := []analysis.NodeLog{{Node: 1, Published: at(0)}, {Node: 2, Published: at(1)}}
	if findSource(logs) != nil {
		t.Fatalf("two publishers must not yield a source")
	}
	if src := findSource(logs[:1]); src == nil || src.Node != 1 {
		t.Fatalf("source = %+v", src)
	}
}

func TestModelUpdate(t *testing.T) {
	m := newModel(Options{RunID: "r1", Participants: []int{1, 2}, Interval: time.Hour})
	if !strings.Contains(m.View(), "waiting for publish") {
		t.Fatalf("initial view:\n%s", m.View())
	}
	next, cmd := m.Update(scanMsg{logs: []analysis.NodeLog{
		{Node: 1, Published: at(0)},
		{Node: 2, Received: at(10)},
	}})
	if cmd == nil {
		t.Fatalf("scan must schedule the next tick")
	}
	view := next.View()
	if !strings.Contains(view, "node 1 published, 1/1 received") {
		t.Fatalf("view:\n%s", view)
	}

	next, _ = next.Update(scanMsg{err: errors.New("gone")})
	if !strings.Contains(next.View(), "scan failed: gone") {
		t.Fatalf("error not shown")
	}
}

func TestQuitKey(t *testing.T) {
	m := newModel(Options{Participants: []int{1}})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestWaitNonInteractive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := Wait(ctx, Options{Mode: ModeOff}); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("Wait returned before context was done")
	}
}

func TestRedirectLogs(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	out := logging.NewOutput(&stderr)
	ctx := logging.WithOutput(context.Background(), out)
	log := logging.New(out, slog.LevelInfo)

	restore := redirectLogs(ctx, dir)
	log.Info("during monitor")
	restore()
	log.Info("after monitor")

	data, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(data), "during monitor") || strings.Contains(string(data), "after monitor") {
		t.Fatalf("log file = %q", data)
	}
	if strings.Contains(stderr.String(), "during monitor") || !strings.Contains(stderr.String(), "after monitor") {
		t.Fatalf("stderr = %q", stderr.String())
	}

	out2 := logging.NewOutput(&stderr)
	restore = redirectLogs(logging.WithOutput(context.Background(), out2), filepath.Join(dir, "missing"))
	stderr.Reset()
	logging.New(out2, slog.LevelInfo).Info("discarded")
	restore()
	if stderr.Len() != 0 {
		t.Fatalf("expected logs discarded when the file cannot be opened, got %q", stderr.String())
	}
}
