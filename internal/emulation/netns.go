package emulation

import (
	"context"
	"errors"
	"io"
	"sync"

	"wanemu/internal/logging"
)

// Netns implements Network with Linux network namespaces, veth pairs and
// iproute2. It needs CAP_NET_ADMIN.
type Netns struct {
	runner Runner

	mu      sync.Mutex
	nodes   []string
	routers []string
	procs   []Process
	stopped bool
}

// NewNetns returns a namespace backed network using runner.
func NewNetns(runner Runner) *Netns {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Netns{runner: runner}
}

func (n *Netns) ip(ctx context.Context, args ...string) error {
	_, err := n.runner.Output(ctx, Cmd("ip", args...))
	return err
}

func (n *Netns) addNamespace(ctx context.Context, name string) error {
	// a leftover namespace from an aborted run is replaced
	_, _ = n.runner.Output(ctx, Cmd("ip", "netns", "del", name))
	if err := n.ip(ctx, "netns", "add", name); err != nil {
		return err
	}
	n.mu.Lock()
	n.nodes = append(n.nodes, name)
	n.mu.Unlock()
	return n.ip(ctx, "-n", name, "link", "set", "lo", "up")
}

// AddHost implements Network.
func (n *Netns) AddHost(ctx context.Context, name string) error {
	return n.addNamespace(ctx, name)
}

// AddRouter implements Network.
func (n *Netns) AddRouter(ctx context.Context, name string) error {
	if err := n.addNamespace(ctx, name); err != nil {
		return err
	}
	n.mu.Lock()
	n.routers = append(n.routers, name)
	n.mu.Unlock()
	return nil
}

// AddLink implements Network.
func (n *Netns) AddLink(ctx context.Context, l Link) error {
	steps := [][]string{
		{"link", "add", l.HostIntf, "type", "veth", "peer", "name", l.RouterIntf},
		{"link", "set", l.HostIntf, "netns", l.Host},
		{"link", "set", l.RouterIntf, "netns", l.Router},
		{"-n", l.Host, "addr", "replace", l.HostAddr.String(), "dev", l.HostIntf},
		{"-n", l.Host, "link", "set", l.HostIntf, "up"},
		{"-n", l.Router, "addr", "replace", l.RouterAddr.String(), "dev", l.RouterIntf},
		{"-n", l.Router, "link", "set", l.RouterIntf, "up"},
	}
	for _, args := range steps {
		if err := n.ip(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// Run implements Network.
func (n *Netns) Run(ctx context.Context, node string, cmd Command) (string, error) {
	out, err := n.runner.Output(ctx, cmd.Prefix("ip", "netns", "exec", node))
	return string(out), err
}

// Start implements Network.
func (n *Netns) Start(ctx context.Context, node string, cmd Command, out io.Writer) error {
	p, err := n.runner.Start(ctx, cmd.Prefix("ip", "netns", "exec", node), out)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.procs = append(n.procs, p)
	n.mu.Unlock()
	return nil
}

// Stop kills started processes, disables forwarding on routers and deletes
// every namespace. Calling it again is a no-op.
func (n *Netns) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	procs, routers, nodes := n.procs, n.routers, n.nodes
	n.mu.Unlock()

	log := logging.FromContext(ctx)
	var errs []error
	for _, p := range procs {
		if err := p.Kill(); err != nil {
			errs = append(errs, err)
		}
		_ = p.Wait()
	}
	for _, r := range routers {
		if _, err := n.Run(ctx, r, Cmd("sysctl", "-w", "net.ipv4.ip_forward=0")); err != nil {
			log.Debug("disable forwarding failed", "router", r, "err", err)
		}
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		if err := n.ip(ctx, "netns", "del", nodes[i]); err != nil {
			errs = append(errs, err)
		}
	}
	log.Info("network stopped", "nodes", len(nodes), "processes", len(procs))
	return errors.Join(errs...)
}
