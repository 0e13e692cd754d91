// Package manifest records what a run set up, next to its peer logs.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"wanemu/internal/shaping"
	"wanemu/internal/topology"
)

// FileName is the manifest file name inside the log directory.
const FileName = "manifest.yaml"

// ShapingFailure is a host left unshaped.
type ShapingFailure struct {
	Node  int    `yaml:"node" json:"node"`
	Error string `yaml:"error" json:"error"`
}

// Manifest describes one run.
type Manifest struct {
	RunID        string               `yaml:"run_id" json:"run_id"`
	StartedAt    time.Time            `yaml:"started_at" json:"started_at"`
	PeerBinary   string               `yaml:"peer_binary" json:"peer_binary"`
	BasePort     int                  `yaml:"base_port" json:"base_port"`
	Participants []int                `yaml:"participants" json:"participants"`
	Topology     *topology.Topology   `yaml:"topology" json:"topology"`
	Identities   map[int]string       `yaml:"identities,omitempty" json:"identities,omitempty"`
	Delays       []shaping.DelayEntry `yaml:"delays" json:"delays"`
	Shaped       []int                `yaml:"shaped" json:"shaped"`
	Unshaped     []ShapingFailure     `yaml:"unshaped,omitempty" json:"unshaped,omitempty"`
}

// New starts a manifest with a fresh run id.
func New(now time.Time) *Manifest {
	return &Manifest{RunID: uuid.NewString(), StartedAt: now.UTC()}
}

// SetShaping records a shaping result.
func (m *Manifest) SetShaping(res shaping.Result) {
	m.Shaped = append([]int(nil), res.Shaped...)
	m.Unshaped = nil
	for _, id := range res.FailedHosts() {
		m.Unshaped = append(m.Unshaped, ShapingFailure{Node: id, Error: res.Failed[id].Error()})
	}
	sort.Ints(m.Shaped)
}

// Degraded reports whether some host ran without shaping.
func (m *Manifest) Degraded() bool { return len(m.Unshaped) > 0 }

// Path is the manifest location in dir.
func Path(dir string) string { return filepath.Join(dir, FileName) }

// Write stores m in dir.
func Write(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(Path(dir), data, 0o644)
}

// ErrNoManifest is returned by Read when dir has no manifest.
var ErrNoManifest = errors.New("no run manifest")

// Read loads the manifest in dir.
func Read(dir string) (*Manifest, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
		}
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", Path(dir), err)
	}
	return &m, nil
}
