// Package launcher starts one peer process per emulated host and keeps its
// log file open for the lifetime of the run.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/multiformats/go-multiaddr"

	"wanemu/internal/emulation"
	"wanemu/internal/identity"
	"wanemu/internal/logging"
	"wanemu/internal/topology"
)

// LogName is the log file name for host id.
func LogName(id int) string { return fmt.Sprintf("node%d.log", id) }

// Port is the listening port of host id.
func Port(base, id int) int { return base + id }

// PeerAddr is the descriptor other peers dial to reach h.
func PeerAddr(h topology.Host, port int, ids identity.Identities) (multiaddr.Multiaddr, error) {
	pid, ok := ids.Get(h.ID)
	if !ok {
		return nil, fmt.Errorf("no identity for node %d", h.ID)
	}
	return multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d/p2p/%s", h.Address.HostIP(), port, pid))
}

// Launcher builds and starts peer invocations.
type Launcher struct {
	Binary   string
	BasePort int
	LogDir   string
}

// PeerList returns the descriptors of every host in topo except self.
func (l *Launcher) PeerList(topo *topology.Topology, self int, ids identity.Identities) ([]multiaddr.Multiaddr, error) {
	out := make([]multiaddr.Multiaddr, 0, len(topo.Hosts))
	for _, h := range topo.Hosts {
		if h.ID == self {
			continue
		}
		a, err := PeerAddr(h, Port(l.BasePort, h.ID), ids)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Command is the peer invocation for host id.
func (l *Launcher) Command(id, minNode int, peers []multiaddr.Multiaddr) emulation.Command {
	list := make([]string, len(peers))
	for i, p := range peers {
		list[i] = p.String()
	}
	return emulation.Cmd(l.Binary,
		"-port", strconv.Itoa(Port(l.BasePort, id)),
		"-node", strconv.Itoa(id),
		"-minnode", strconv.Itoa(minNode),
		"-peers", strings.Join(list, ","),
	)
}

// Session owns the log files of launched peers.
type Session struct {
	files map[int]*os.File
	order []int
}

// Nodes lists launched hosts in launch order.
func (s *Session) Nodes() []int { return append([]int(nil), s.order...) }

// Close releases every log file. It is safe to call more than once.
func (s *Session) Close() error {
	var errs []error
	for _, id := range s.order {
		f, ok := s.files[id]
		if !ok {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", id, err))
		}
		delete(s.files, id)
	}
	return errors.Join(errs...)
}

// Launch starts a peer on every host of topo. The minimum participant id
// is passed to every peer as the publisher role. On error the log files
// opened so far are closed; processes already started are left to network
// teardown.
func (l *Launcher) Launch(ctx context.Context, net emulation.Network, topo *topology.Topology, ids identity.Identities) (*Session, error) {
	log := logging.FromContext(ctx)
	if len(topo.Hosts) == 0 {
		return nil, fmt.Errorf("nothing to launch")
	}
	if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
		return nil, err
	}
	minNode := topo.Hosts[0].ID
	for _, h := range topo.Hosts {
		minNode = min(minNode, h.ID)
	}
	s := &Session{files: make(map[int]*os.File, len(topo.Hosts))}
	for _, h := range topo.Hosts {
		peers, err := l.PeerList(topo, h.ID, ids)
		if err != nil {
			s.Close()
			return nil, err
		}
		path := filepath.Join(l.LogDir, LogName(h.ID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.files[h.ID] = f
		s.order = append(s.order, h.ID)
		cmd := l.Command(h.ID, minNode, peers)
		if err := net.Start(ctx, h.Name, cmd, f); err != nil {
			s.Close()
			return nil, fmt.Errorf("launch %s: %w", h.Name, err)
		}
		log.Debug("peer started", "host", h.Name, "port", Port(l.BasePort, h.ID), "log", path)
	}
	log.Info("peers launched", "count", len(s.order), "min_node", minNode)
	return s, nil
}
