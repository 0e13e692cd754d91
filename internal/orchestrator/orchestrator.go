// Package orchestrator runs one emulation end to end: it plans and builds
// the network, shapes it, launches the peers and tears everything down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"wanemu/internal/admin"
	"wanemu/internal/analysis"
	"wanemu/internal/config"
	"wanemu/internal/emulation"
	"wanemu/internal/identity"
	"wanemu/internal/launcher"
	"wanemu/internal/logging"
	"wanemu/internal/manifest"
	"wanemu/internal/monitor"
	"wanemu/internal/participants"
	"wanemu/internal/pingmatrix"
	"wanemu/internal/shaping"
	"wanemu/internal/topology"
)

// WaitFunc blocks while the peers run.
type WaitFunc func(ctx context.Context, opts monitor.Options) error

// Orchestrator wires one run. Net and Runner are required; zero values of
// the other fields select the production behavior.
type Orchestrator struct {
	Config *config.Config
	Net    emulation.Network
	Runner emulation.Runner
	Rand   participants.Rand
	Wait   WaitFunc
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) defaults() {
	if o.Rand == nil {
		o.Rand = participants.NewRand(o.Config.Selection.Seed)
	}
	if o.Wait == nil {
		o.Wait = monitor.Wait
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
}

// Run executes the whole run and returns its manifest. Configuration and
// identity errors abort before any network is declared. Once the network
// exists it is always stopped and every log file closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (m *manifest.Manifest, err error) {
	o.defaults()
	cfg := o.Config
	log := logging.FromContext(ctx)

	ids, err := participants.Read(cfg.Participants)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.PeerBinary); err != nil {
		return nil, &config.ConfigurationError{Path: cfg.PeerBinary, Err: fmt.Errorf("peer binary: %w", err)}
	}
	pings, err := pingmatrix.Load(cfg.Pings)
	if err != nil {
		return nil, &config.ConfigurationError{Path: cfg.Pings, Err: err}
	}
	log.Info("inputs loaded", "participants", len(ids), "pings", pings.Len())

	provider := &identity.Provider{Binary: cfg.PeerBinary, Runner: o.Runner}
	idents, err := provider.Generate(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := participants.Shuffle(ids, o.Rand)
	delays := shaping.BuildMatrix(pings, order, cfg.DefaultDelayMS, cfg.Jitter)
	topo, err := topology.Plan(cfg.Router, order)
	if err != nil {
		return nil, err
	}

	m = manifest.New(o.Now())
	m.PeerBinary = cfg.PeerBinary
	m.BasePort = cfg.BasePort
	m.Participants = order
	m.Topology = topo
	m.Identities = idents.Strings()
	m.Delays = delays.Entries()
	ctx = logging.NewContext(ctx, log.With("run_id", m.RunID))
	log = logging.FromContext(ctx)

	defer func() {
		if serr := o.Net.Stop(context.WithoutCancel(ctx)); serr != nil {
			log.Error("teardown failed", "err", serr)
			err = errors.Join(err, serr)
		}
	}()
	if err := topology.Build(ctx, o.Net, topo); err != nil {
		return m, err
	}

	shaper := &shaping.Shaper{Rate: cfg.HTBRate}
	res := shaper.Apply(ctx, o.Net, topo, delays)
	m.SetShaping(res)
	if err := ctx.Err(); err != nil {
		return m, err
	}
	if !res.Complete() {
		log.Warn("running with unshaped hosts", "hosts", res.FailedHosts())
	}

	log.Info("waiting for network to settle", "settle", cfg.Settle)
	if err := o.Sleep(ctx, cfg.Settle); err != nil {
		return m, err
	}
	if err := clearLogs(cfg.LogDir); err != nil {
		return m, err
	}
	if err := manifest.Write(cfg.LogDir, m); err != nil {
		return m, err
	}

	l := &launcher.Launcher{Binary: cfg.PeerBinary, BasePort: cfg.BasePort, LogDir: cfg.LogDir}
	session, err := l.Launch(ctx, o.Net, topo, idents)
	if err != nil {
		return m, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.AdminAddr != "" {
		srv := admin.NewServer(admin.DirSource{Dir: cfg.LogDir, Pings: pings})
		go func() {
			if err := srv.Start(runCtx, cfg.AdminAddr); err != nil {
				log.Error("admin server failed", "err", err)
			}
		}()
	}
	werr := o.Wait(runCtx, monitor.Options{
		Dir:          cfg.LogDir,
		RunID:        m.RunID,
		Participants: order,
		Mode:         monitor.Mode(cfg.Monitor),
	})
	log.Info("stopping emulation")
	return m, werr
}

// clearLogs removes peer logs of a previous run so the analyzer only sees
// this one.
func clearLogs(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	_, paths, err := analysis.LogFiles(dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := os.Remove(manifest.Path(dir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
