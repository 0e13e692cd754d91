// YAML run config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Selection controls how participants.txt is generated from the ping table.
type Selection struct {
	Percentage float64 `yaml:"percentage"`
	MinNodes   int     `yaml:"min_nodes"`
	Seed       string  `yaml:"seed"`
}

// Results configures where stretch reports are written besides STDOUT.
type Results struct {
	JSONL            string `yaml:"jsonl"`
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	GreptimeDatabase string `yaml:"greptime_database"`
	GreptimeTable    string `yaml:"greptime_table"`
}

// Config is the root configuration of an emulation run.
type Config struct {
	PeerBinary     string        `yaml:"peer_binary"`
	Pings          string        `yaml:"pings"`
	Participants   string        `yaml:"participants"`
	LogDir         string        `yaml:"log_dir"`
	BasePort       int           `yaml:"base_port"`
	DefaultDelayMS int           `yaml:"default_delay_ms"`
	HTBRate        string        `yaml:"htb_rate"`
	Jitter         bool          `yaml:"jitter"`
	Settle         time.Duration `yaml:"settle"`
	Router         string        `yaml:"router"`
	LogLevel       string        `yaml:"log_level"`
	Monitor        string        `yaml:"monitor"`
	AdminAddr      string        `yaml:"admin_addr"`
	Selection      Selection     `yaml:"selection"`
	Results        Results       `yaml:"results"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PeerBinary:     "./bin/gossip-peer",
		Pings:          "../pings.csv",
		Participants:   "participants.txt",
		LogDir:         "logs",
		BasePort:       4000,
		DefaultDelayMS: 20,
		HTBRate:        "1000Mbps",
		Settle:         5 * time.Second,
		Router:         "r1",
		LogLevel:       "info",
		Monitor:        "auto",
		Selection: Selection{
			Percentage: 0.1,
			MinNodes:   2,
			Seed:       "participants",
		},
		Results: Results{
			GreptimeDatabase: "public",
			GreptimeTable:    "gossip_stretch",
		},
	}
}

// ConfigurationError reports an unusable input file or value.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads the YAML config at path, validates it against the embedded CUE
// schema and overlays it on Default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		if err := Validate(path, data); err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
	}
	cfg.applyEnv()
	if cfg.PeerBinary == "" {
		return nil, &ConfigurationError{Path: path, Err: errors.New("peer_binary must not be empty")}
	}
	return cfg, nil
}

// applyEnv lets the deployment override result sinks and verbosity.
func (c *Config) applyEnv() {
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Results.GreptimeEndpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Results.GreptimeTable = v
	}
	if v := os.Getenv("WANEMU_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
