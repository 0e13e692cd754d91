package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"wanemu/internal/config"
	"wanemu/internal/emulation"
	"wanemu/internal/emulation/emulationtest"
	"wanemu/internal/identity"
	"wanemu/internal/manifest"
	"wanemu/internal/monitor"
	"wanemu/internal/participants"
)

const pingsCSV = `source,destination,timestamp,samples,avg,min,stddev
"1","2","t","5","25.2","20","1.1"
"2","1","t","5","30.0","20","1.4"
"1","3","t","5","12.6","10","0.2"
`

var peerIDs = map[int]string{
	1: "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ",
	2: "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
	3: "QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa",
}

type firstRand struct{}

func (firstRand) RandInt(lo, hi int) int { return lo }

type fixture struct {
	cfg    *config.Config
	net    *emulationtest.Recorder
	runner *emulationtest.Runner
	waited []monitor.Options
}

func newFixture(t *testing.T, parts string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PeerBinary = filepath.Join(dir, "gossip-peer")
	cfg.Pings = filepath.Join(dir, "pings.csv")
	cfg.Participants = filepath.Join(dir, "participants.txt")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.Monitor = "off"
	for path, body := range map[string]string{
		cfg.PeerBinary:   "#!/bin/sh\n",
		cfg.Pings:        pingsCSV,
		cfg.Participants: parts,
	} {
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	var gen strings.Builder
	for id := 1; id <= 3; id++ {
		gen.WriteString(strconv.Itoa(id) + ":" + peerIDs[id] + "\n")
	}
	outputs := make(map[string]string)
	for max := 1; max <= 3; max++ {
		outputs[identity.GenerateCommand(cfg.PeerBinary, max).String()] = gen.String()
	}
	return &fixture{
		cfg:    cfg,
		net:    &emulationtest.Recorder{StartOut: "[2024-05-01T12:00:00Z] started"},
		runner: &emulationtest.Runner{Outputs: outputs},
	}
}

func (f *fixture) orchestrator() *Orchestrator {
	return &Orchestrator{
		Config: f.cfg,
		Net:    f.net,
		Runner: f.runner,
		Rand:   firstRand{},
		Now:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		Sleep:  func(context.Context, time.Duration) error { return nil },
		Wait: func(ctx context.Context, opts monitor.Options) error {
			f.waited = append(f.waited, opts)
			return nil
		},
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, "1\n\n2\n3\n")
	old := filepath.Join(f.cfg.LogDir, "node99.log")
	os.MkdirAll(f.cfg.LogDir, 0o755)
	os.WriteFile(old, []byte("stale"), 0o644)

	m, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := append([]int(nil), m.Participants...)
	sort.Ints(got)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("participants = %v", m.Participants)
	}
	if len(f.net.Routers) != 1 || len(f.net.Hosts) != 3 {
		t.Fatalf("topology not built: routers=%v hosts=%v", f.net.Routers, f.net.Hosts)
	}
	for _, h := range f.net.Hosts {
		if n := f.net.CountOn(h, "tc filter add"); n != 2 {
			t.Errorf("%s: %d filters, want 2", h, n)
		}
	}
	if len(f.net.Started) != 3 {
		t.Fatalf("started %d peers", len(f.net.Started))
	}
	if f.net.Stopped != 1 {
		t.Fatalf("network stopped %d times", f.net.Stopped)
	}
	if len(f.waited) != 1 || f.waited[0].RunID != m.RunID || f.waited[0].Mode != monitor.ModeOff {
		t.Fatalf("wait options = %+v", f.waited)
	}
	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale log not removed")
	}
	written, err := manifest.Read(f.cfg.LogDir)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if written.RunID != m.RunID || len(written.Shaped) != 3 || written.Degraded() {
		t.Fatalf("manifest = %+v", written)
	}
	if written.Identities[2] != peerIDs[2] {
		t.Fatalf("identities = %v", written.Identities)
	}
	data, _ := os.ReadFile(filepath.Join(f.cfg.LogDir, "node1.log"))
	if !strings.Contains(string(data), "started") {
		t.Fatalf("peer output not captured: %q", data)
	}
}

func TestRunEmptyParticipants(t *testing.T) {
	f := newFixture(t, "\n\n")
	_, err := f.orchestrator().Run(context.Background())
	if !errors.Is(err, participants.ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if len(f.net.Hosts) != 0 || len(f.net.Routers) != 0 || len(f.runner.Ran) != 0 {
		t.Fatalf("nothing may run without participants")
	}
}

func TestRunMissingParticipants(t *testing.T) {
	f := newFixture(t, "1\n")
	os.Remove(f.cfg.Participants)
	_, err := f.orchestrator().Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "participants.txt not found") {
		t.Fatalf("err = %v", err)
	}
	if len(f.net.Hosts) != 0 {
		t.Fatalf("topology built without participants")
	}
}

func TestRunMissingBinary(t *testing.T) {
	f := newFixture(t, "1\n2\n")
	os.Remove(f.cfg.PeerBinary)
	var cerr *config.ConfigurationError
	if _, err := f.orchestrator().Run(context.Background()); !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRunIdentityFailure(t *testing.T) {
	f := newFixture(t, "1\n2\n3\n")
	f.runner.Errors = map[string]error{
		identity.GenerateCommand(f.cfg.PeerBinary, 3).String(): errors.New("exit status 1"),
	}
	_, err := f.orchestrator().Run(context.Background())
	var terr *emulation.ExternalToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ExternalToolError, got %v", err)
	}
	if len(f.net.Hosts) != 0 || len(f.net.Started) != 0 || f.net.Stopped != 0 {
		t.Fatalf("network touched after identity failure")
	}
}

func TestRunContinuesWithUnshapedHost(t *testing.T) {
	f := newFixture(t, "1\n2\n3\n")
	f.net.Fail = func(node string, cmd emulation.Command) error {
		if node == "h3" && strings.Contains(cmd.String(), "netem") {
			return errors.New("RTNETLINK answers: No such file or directory")
		}
		return nil
	}
	m, err := f.orchestrator().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !m.Degraded() || m.Unshaped[0].Node != 3 {
		t.Fatalf("unshaped = %+v", m.Unshaped)
	}
	if len(f.net.Started) != 3 {
		t.Fatalf("peers must still launch, started %d", len(f.net.Started))
	}
}

func TestRunTearsDownOnWaitError(t *testing.T) {
	f := newFixture(t, "1\n2\n")
	o := f.orchestrator()
	o.Wait = func(context.Context, monitor.Options) error { return errors.New("tui crashed") }
	if _, err := o.Run(context.Background()); err == nil {
		t.Fatalf("expected wait error")
	}
	if f.net.Stopped != 1 {
		t.Fatalf("network not stopped")
	}
}

func TestRunTearsDownWhenInterruptedWhileSettling(t *testing.T) {
	f := newFixture(t, "1\n2\n3\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := f.orchestrator()
	o.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleep(ctx, d)
	}
	_, err := o.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.net.Stopped != 1 {
		t.Fatalf("network stopped %d times, want 1", f.net.Stopped)
	}
	if len(f.net.Started) != 0 || len(f.waited) != 0 {
		t.Fatalf("peers launched after interrupt: started=%d waited=%d", len(f.net.Started), len(f.waited))
	}
}

func TestRunTearsDownWhenInterruptedWhileShaping(t *testing.T) {
	f := newFixture(t, "1\n2\n3\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.net.Fail = func(node string, cmd emulation.Command) error {
		if strings.Contains(cmd.String(), "netem") {
			cancel()
		}
		return nil
	}
	_, err := f.orchestrator().Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.net.Stopped != 1 {
		t.Fatalf("network stopped %d times, want 1", f.net.Stopped)
	}
	if len(f.net.Started) != 0 {
		t.Fatalf("started %d peers after interrupt", len(f.net.Started))
	}
}
