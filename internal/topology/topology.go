// Package topology declares the emulated star network: one host per
// participant, a single shared router and one link per host.
package topology

import (
	"context"
	"fmt"
	"net/netip"

	"wanemu/internal/addressing"
	"wanemu/internal/emulation"
	"wanemu/internal/logging"
)

// Host is one emulated participant.
type Host struct {
	ID      int                `yaml:"id" json:"id"`
	Name    string             `yaml:"name" json:"name"`
	Intf    string             `yaml:"intf" json:"intf"`
	Address addressing.Address `yaml:"address" json:"address"`
	// RouterIntf is the router side of this host's link.
	RouterIntf string `yaml:"router_intf" json:"router_intf"`
}

// Topology is the immutable plan for one run.
type Topology struct {
	Router     string       `yaml:"router" json:"router"`
	RouterAddr netip.Prefix `yaml:"router_addr" json:"router_addr"`
	Hosts      []Host       `yaml:"hosts" json:"hosts"`

	index map[int]int
}

// MaxIntfName is the longest interface name the kernel accepts.
const MaxIntfName = 15

// HostName is the emulated host name for id.
func HostName(id int) string { return fmt.Sprintf("h%d", id) }

// IntfName is the host-side interface name for id.
func IntfName(id int) string { return fmt.Sprintf("h%d-eth0", id) }

// Plan allocates addresses and names for participants. The order of
// participants fixes the router interface indices; the router's own address
// is the gateway of the first participant.
func Plan(router string, participants []int) (*Topology, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("topology needs at least one participant")
	}
	t := &Topology{Router: router, index: make(map[int]int, len(participants))}
	for i, id := range participants {
		if _, dup := t.index[id]; dup {
			return nil, fmt.Errorf("duplicate participant %d", id)
		}
		addr, err := addressing.Allocate(id)
		if err != nil {
			return nil, err
		}
		rintf := fmt.Sprintf("%s-eth%d", router, i)
		if len(rintf) > MaxIntfName {
			return nil, fmt.Errorf("router interface %q longer than %d bytes", rintf, MaxIntfName)
		}
		t.index[id] = i
		t.Hosts = append(t.Hosts, Host{
			ID:         id,
			Name:       HostName(id),
			Intf:       IntfName(id),
			Address:    addr,
			RouterIntf: rintf,
		})
	}
	t.RouterAddr = t.Hosts[0].Address.Gateway
	return t, nil
}

// Host returns the host for id.
func (t *Topology) Host(id int) (Host, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[id]
	if !ok {
		return Host{}, false
	}
	return t.Hosts[i], true
}

// IDs returns participant ids in plan order.
func (t *Topology) IDs() []int {
	ids := make([]int, len(t.Hosts))
	for i, h := range t.Hosts {
		ids[i] = h.ID
	}
	return ids
}

// reindex rebuilds the lookup after the topology was decoded from a manifest.
func (t *Topology) reindex() {
	t.index = make(map[int]int, len(t.Hosts))
	for i, h := range t.Hosts {
		t.index[h.ID] = i
	}
}

// ForwardingCommand toggles IPv4 forwarding on a router.
func ForwardingCommand(on bool) emulation.Command {
	v := "0"
	if on {
		v = "1"
	}
	return emulation.Cmd("sysctl", "-w", "net.ipv4.ip_forward="+v)
}

// DefaultRouteCommand points a host's default route at gw. replace keeps
// the command safe to re-issue.
func DefaultRouteCommand(gw netip.Addr) emulation.Command {
	return emulation.Cmd("ip", "route", "replace", "default", "via", gw.String())
}

// Build declares the planned topology on net, enables forwarding on the
// router and installs each host's default route. Any failure is fatal.
func Build(ctx context.Context, net emulation.Network, t *Topology) error {
	log := logging.FromContext(ctx)
	if err := net.AddRouter(ctx, t.Router); err != nil {
		return fmt.Errorf("add router %s: %w", t.Router, err)
	}
	for _, h := range t.Hosts {
		if err := net.AddHost(ctx, h.Name); err != nil {
			return fmt.Errorf("add host %s: %w", h.Name, err)
		}
		link := emulation.Link{
			Host:       h.Name,
			HostIntf:   h.Intf,
			HostAddr:   h.Address.Host,
			Router:     t.Router,
			RouterIntf: h.RouterIntf,
			RouterAddr: h.Address.Gateway,
		}
		if err := net.AddLink(ctx, link); err != nil {
			return fmt.Errorf("link %s<->%s: %w", h.Name, t.Router, err)
		}
	}
	if _, err := net.Run(ctx, t.Router, ForwardingCommand(true)); err != nil {
		return fmt.Errorf("enable forwarding on %s: %w", t.Router, err)
	}
	for _, h := range t.Hosts {
		if _, err := net.Run(ctx, h.Name, DefaultRouteCommand(h.Address.GatewayIP())); err != nil {
			return fmt.Errorf("default route on %s: %w", h.Name, err)
		}
	}
	log.Info("topology built", "router", t.Router, "router_addr", t.RouterAddr, "hosts", len(t.Hosts))
	return nil
}
