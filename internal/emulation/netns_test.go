package emulation_test

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"reflect"
	"strings"
	"testing"

	"wanemu/internal/emulation"
	"wanemu/internal/emulation/emulationtest"
)

func TestCommandString(t *testing.T) {
	c := emulation.Cmd("tc", "qdisc", "add", "dev", "h1-eth0", "root")
	if got := c.String(); got != "tc qdisc add dev h1-eth0 root" {
		t.Fatalf("String = %q", got)
	}
	q := emulation.Cmd("echo", "a b", "")
	if got := q.String(); got != `echo "a b" ""` {
		t.Fatalf("String = %q", got)
	}
	p := c.Prefix("ip", "netns", "exec", "h1")
	if p.Name != "ip" || !reflect.DeepEqual(p.Args[:4], []string{"netns", "exec", "h1", "tc"}) {
		t.Fatalf("Prefix = %+v", p)
	}
	if len(c.Args) != 5 {
		t.Fatalf("Prefix mutated receiver")
	}
}

func TestExternalToolError(t *testing.T) {
	cause := errors.New("exit status 2")
	err := error(&emulation.ExternalToolError{Cmd: emulation.Cmd("tc", "x"), Output: "RTNETLINK answers: File exists\n", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if !strings.Contains(err.Error(), "File exists") || !strings.Contains(err.Error(), "tc x") {
		t.Fatalf("Error = %q", err.Error())
	}
}

func TestNetnsLinkSequence(t *testing.T) {
	r := &emulationtest.Runner{}
	n := emulation.NewNetns(r)
	ctx := context.Background()
	if err := n.AddRouter(ctx, "r1"); err != nil {
		t.Fatalf("AddRouter: %v", err)
	}
	if err := n.AddHost(ctx, "h3"); err != nil {
		t.Fatalf("AddHost: %v", err)
	}
	l := emulation.Link{
		Host: "h3", HostIntf: "h3-eth0", HostAddr: netip.MustParsePrefix("10.1.4.1/24"),
		Router: "r1", RouterIntf: "r1-eth0", RouterAddr: netip.MustParsePrefix("10.1.4.2/24"),
	}
	if err := n.AddLink(ctx, l); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	want := []string{
		"ip netns del r1",
		"ip netns add r1",
		"ip -n r1 link set lo up",
		"ip netns del h3",
		"ip netns add h3",
		"ip -n h3 link set lo up",
		"ip link add h3-eth0 type veth peer name r1-eth0",
		"ip link set h3-eth0 netns h3",
		"ip link set r1-eth0 netns r1",
		"ip -n h3 addr replace 10.1.4.1/24 dev h3-eth0",
		"ip -n h3 link set h3-eth0 up",
		"ip -n r1 addr replace 10.1.4.2/24 dev r1-eth0",
		"ip -n r1 link set r1-eth0 up",
	}
	if !reflect.DeepEqual(r.Ran, want) {
		t.Fatalf("commands:\n%s\nwant:\n%s", strings.Join(r.Ran, "\n"), strings.Join(want, "\n"))
	}
}

func TestNetnsRunStartStop(t *testing.T) {
	r := &emulationtest.Runner{Outputs: map[string]string{
		"ip netns exec h1 tc qdisc show": "qdisc noqueue 0: dev lo root",
		"ip netns exec h1 peer -port 4001": "started\n",
	}}
	n := emulation.NewNetns(r)
	ctx := context.Background()
	_ = n.AddRouter(ctx, "r1")
	_ = n.AddHost(ctx, "h1")

	out, err := n.Run(ctx, "h1", emulation.Cmd("tc", "qdisc", "show"))
	if err != nil || !strings.Contains(out, "noqueue") {
		t.Fatalf("Run = %q, %v", out, err)
	}
	var buf bytes.Buffer
	if err := n.Start(ctx, "h1", emulation.Cmd("peer", "-port", "4001"), &buf); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if buf.String() != "started\n" {
		t.Fatalf("process output = %q", buf.String())
	}

	r.Ran = nil
	if err := n.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !r.Procs[0].Killed {
		t.Fatalf("process not killed")
	}
	want := []string{
		"ip netns exec r1 sysctl -w net.ipv4.ip_forward=0",
		"ip netns del h1",
		"ip netns del r1",
	}
	if !reflect.DeepEqual(r.Ran, want) {
		t.Fatalf("stop commands = %v", r.Ran)
	}
	r.Ran = nil
	if err := n.Stop(ctx); err != nil || len(r.Ran) != 0 {
		t.Fatalf("second Stop should be a no-op: %v %v", err, r.Ran)
	}
}

func TestNetnsAddHostFailure(t *testing.T) {
	cause := errors.New("permission denied")
	r := &emulationtest.Runner{Errors: map[string]error{"ip netns add h1": cause}}
	n := emulation.NewNetns(r)
	err := n.AddHost(context.Background(), "h1")
	var terr *emulation.ExternalToolError
	if !errors.As(err, &terr) || !errors.Is(err, cause) {
		t.Fatalf("expected ExternalToolError wrapping cause, got %v", err)
	}
}
