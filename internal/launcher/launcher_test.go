package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"

	"wanemu/internal/emulation"
	"wanemu/internal/emulation/emulationtest"
	"wanemu/internal/identity"
	"wanemu/internal/topology"
)

func testIdentities(t *testing.T) identity.Identities {
	t.Helper()
	raw := map[int]string{
		3: "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ",
		7: "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
		9: "QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa",
	}
	ids := make(identity.Identities)
	for k, v := range raw {
		p, err := peer.Decode(v)
		if err != nil {
			t.Fatalf("decode %s: %v", v, err)
		}
		ids[k] = p
	}
	return ids
}

func TestCommand(t *testing.T) {
	topo, _ := topology.Plan("r1", []int{7, 3, 9})
	ids := testIdentities(t)
	l := &Launcher{Binary: "./bin/gossip-peer", BasePort: 4000}
	peers, err := l.PeerList(topo, 7, ids)
	if err != nil {
		t.Fatalf("PeerList: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("peers = %v", peers)
	}
	want := "/ip4/10.1.4.1/tcp/4003/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"
	if peers[0].String() != want {
		t.Fatalf("peer[0] = %s, want %s", peers[0], want)
	}
	cmd := l.Command(7, 3, peers)
	args := strings.Join(cmd.Args, " ")
	if !strings.HasPrefix(args, "-port 4007 -node 7 -minnode 3 -peers /ip4/10.1.4.1/") {
		t.Fatalf("args = %s", args)
	}
	if strings.Count(cmd.Args[len(cmd.Args)-1], ",") != 1 {
		t.Fatalf("peer list not comma separated: %s", cmd.Args[len(cmd.Args)-1])
	}
}

func TestPeerListMissingIdentity(t *testing.T) {
	topo, _ := topology.Plan("r1", []int{3, 4})
	l := &Launcher{BasePort: 4000}
	if _, err := l.PeerList(topo, 3, testIdentities(t)); err == nil {
		t.Fatalf("expected error for node without identity")
	}
}

func TestLaunch(t *testing.T) {
	dir := t.TempDir()
	topo, _ := topology.Plan("r1", []int{9, 3, 7})
	rec := &emulationtest.Recorder{StartOut: "[2024-01-01T00:00:00Z] started"}
	l := &Launcher{Binary: "peer", BasePort: 4000, LogDir: dir}
	s, err := l.Launch(context.Background(), rec, topo, testIdentities(t))
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	defer s.Close()
	if len(rec.Started) != 3 {
		t.Fatalf("started %d", len(rec.Started))
	}
	for _, c := range rec.Started {
		if !strings.Contains(c.Cmd.String(), "-minnode 3") {
			t.Fatalf("min node not passed: %s", c.Cmd)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "node9.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "started") {
		t.Fatalf("log content %q", data)
	}
}

func TestLaunchAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogName(3))
	if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	topo, _ := topology.Plan("r1", []int{3, 7})
	rec := &emulationtest.Recorder{StartOut: "new"}
	l := &Launcher{Binary: "peer", BasePort: 4000, LogDir: dir}
	s, err := l.Launch(context.Background(), rec, topo, testIdentities(t))
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	s.Close()
	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Fatalf("log = %q", data)
	}
}

type failingStart struct{ emulationtest.Recorder }

func (f *failingStart) Start(ctx context.Context, node string, cmd emulation.Command, out io.Writer) error {
	if node == "h7" {
		return errors.New("no such namespace")
	}
	return f.Recorder.Start(ctx, node, cmd, out)
}

func TestLaunchFailureClosesFiles(t *testing.T) {
	topo, _ := topology.Plan("r1", []int{3, 7})
	l := &Launcher{Binary: "peer", BasePort: 4000, LogDir: t.TempDir()}
	if _, err := l.Launch(context.Background(), &failingStart{}, topo, testIdentities(t)); err == nil {
		t.Fatalf("expected launch error")
	}
}
