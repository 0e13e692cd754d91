// Package emulationtest provides in-memory fakes of the emulation boundary.
package emulationtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"wanemu/internal/emulation"
)

// Call is one command issued against a node.
type Call struct {
	Node string
	Cmd  emulation.Command
}

// Recorder is a fake emulation.Network that records every declaration and
// command. Fail decides whether a Run call fails; nil means success.
type Recorder struct {
	mu      sync.Mutex
	Hosts   []string
	Routers []string
	Links   []emulation.Link
	Calls   []Call
	Started []Call
	Stopped int

	Fail     func(node string, cmd emulation.Command) error
	StartOut string
}

var _ emulation.Network = (*Recorder)(nil)

// AddHost implements emulation.Network.
func (r *Recorder) AddHost(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Hosts = append(r.Hosts, name)
	return nil
}

// AddRouter implements emulation.Network.
func (r *Recorder) AddRouter(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Routers = append(r.Routers, name)
	return nil
}

// AddLink implements emulation.Network.
func (r *Recorder) AddLink(ctx context.Context, l emulation.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Links = append(r.Links, l)
	return nil
}

// Run implements emulation.Network.
func (r *Recorder) Run(ctx context.Context, node string, cmd emulation.Command) (string, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Node: node, Cmd: cmd})
	fail := r.Fail
	r.mu.Unlock()
	if fail != nil {
		if err := fail(node, cmd); err != nil {
			return "error", &emulation.ExternalToolError{Cmd: cmd, Output: "error", Err: err}
		}
	}
	return "", nil
}

// Start implements emulation.Network.
func (r *Recorder) Start(ctx context.Context, node string, cmd emulation.Command, out io.Writer) error {
	r.mu.Lock()
	r.Started = append(r.Started, Call{Node: node, Cmd: cmd})
	msg := r.StartOut
	r.mu.Unlock()
	if msg != "" {
		_, err := fmt.Fprintln(out, msg)
		return err
	}
	return nil
}

// Stop implements emulation.Network.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stopped++
	return nil
}

// CallsOn returns the commands run on node, rendered as strings.
func (r *Recorder) CallsOn(node string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.Calls {
		if c.Node == node {
			out = append(out, c.Cmd.String())
		}
	}
	return out
}

// CountOn counts commands on node whose rendering starts with prefix.
func (r *Recorder) CountOn(node, prefix string) int {
	n := 0
	for _, c := range r.CallsOn(node) {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
