// Package shaping builds the per-destination delay hierarchy on every
// emulated host: an HTB root with a default class, and for each peer one
// HTB class carrying a netem delay plus a u32 filter on the peer address.
package shaping

import (
	"context"
	"fmt"
	"sort"

	"wanemu/internal/emulation"
	"wanemu/internal/logging"
	"wanemu/internal/topology"
)

// HostPlan is the command sequence shaping one host's interface.
type HostPlan struct {
	Host     topology.Host
	Reset    emulation.Command
	Commands []emulation.Command
	// Classes maps each peer id to its class number.
	Classes map[int]int
}

// Filters returns the number of destination filters in the plan.
func (p HostPlan) Filters() int { return len(p.Classes) }

// PlanHost builds the hierarchy for host against every other participant
// in topo, in topology order.
func PlanHost(topo *topology.Topology, host topology.Host, delays *Matrix, rate string) (HostPlan, error) {
	dev := host.Intf
	p := HostPlan{
		Host:    host,
		Reset:   ClearRoot(dev),
		Classes: make(map[int]int, len(topo.Hosts)),
	}
	p.Commands = append(p.Commands,
		RootQdisc(dev),
		Class(dev, defaultClass, rate),
	)
	next := firstPeerClass
	for _, peer := range topo.Hosts {
		if peer.ID == host.ID {
			continue
		}
		if next > maxClass {
			return HostPlan{}, fmt.Errorf("host %d: more than %d peers", host.ID, maxClass-firstPeerClass+1)
		}
		d, ok := delays.Lookup(host.ID, peer.ID)
		if !ok {
			return HostPlan{}, fmt.Errorf("no delay for %d->%d", host.ID, peer.ID)
		}
		p.Commands = append(p.Commands,
			Class(dev, next, rate),
			Netem(dev, next, d),
			DstFilter(dev, next, peer.Address.HostIP()),
		)
		p.Classes[peer.ID] = next
		next++
	}
	return p, nil
}

// Result lists which hosts were shaped and why the others were not.
type Result struct {
	Shaped []int         `yaml:"shaped" json:"shaped"`
	Failed map[int]error `yaml:"-" json:"-"`
}

// Complete reports whether every host was shaped.
func (r Result) Complete() bool { return len(r.Failed) == 0 }

// FailedHosts returns the ids of unshaped hosts, sorted.
func (r Result) FailedHosts() []int {
	ids := make([]int, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Shaper applies host plans through an emulation.Network.
type Shaper struct {
	Rate string
}

// Apply shapes every host in topo. A failing command stops shaping on that
// host only; the remaining hosts are still shaped.
func (s *Shaper) Apply(ctx context.Context, net emulation.Network, topo *topology.Topology, delays *Matrix) Result {
	log := logging.FromContext(ctx)
	res := Result{Failed: make(map[int]error)}
	for _, h := range topo.Hosts {
		if err := ctx.Err(); err != nil {
			res.Failed[h.ID] = err
			continue
		}
		if err := s.applyHost(ctx, net, topo, h, delays); err != nil {
			log.Error("shaping failed", "host", h.Name, "err", err)
			res.Failed[h.ID] = err
			continue
		}
		res.Shaped = append(res.Shaped, h.ID)
	}
	log.Info("shaping done", "shaped", len(res.Shaped), "failed", len(res.Failed))
	return res
}

func (s *Shaper) applyHost(ctx context.Context, net emulation.Network, topo *topology.Topology, h topology.Host, delays *Matrix) error {
	log := logging.FromContext(ctx)
	plan, err := PlanHost(topo, h, delays, s.Rate)
	if err != nil {
		return err
	}
	if _, err := net.Run(ctx, h.Name, plan.Reset); err != nil {
		log.Debug("no previous root qdisc", "host", h.Name, "err", err)
	}
	for _, cmd := range plan.Commands {
		if _, err := net.Run(ctx, h.Name, cmd); err != nil {
			return err
		}
	}
	log.Debug("host shaped", "host", h.Name, "filters", plan.Filters())
	return nil
}
