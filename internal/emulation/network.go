// Package emulation is the narrow boundary to the machinery that creates
// emulated hosts, routers and links and runs commands inside them.
package emulation

import (
	"context"
	"io"
	"net/netip"
)

// Link is a point-to-point link between a host and the router.
type Link struct {
	Host       string
	HostIntf   string
	HostAddr   netip.Prefix
	Router     string
	RouterIntf string
	RouterAddr netip.Prefix
}

// Network creates emulated nodes and runs commands inside them.
type Network interface {
	AddHost(ctx context.Context, name string) error
	AddRouter(ctx context.Context, name string) error
	AddLink(ctx context.Context, l Link) error
	// Run executes cmd inside node and returns its output.
	Run(ctx context.Context, node string, cmd Command) (string, error)
	// Start launches a long-running cmd inside node writing to out.
	Start(ctx context.Context, node string, cmd Command, out io.Writer) error
	// Stop tears the whole topology down, terminating hosted processes.
	Stop(ctx context.Context) error
}
