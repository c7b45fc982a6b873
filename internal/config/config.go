// Package config loads a node's YAML configuration file: its own id and
// listen address, its peers, and the durability/metrics knobs every
// running node needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration for one raftd process.
type Config struct {
	Node struct {
		ID      string `yaml:"id"`
		Address string `yaml:"address"`
	} `yaml:"node"`

	Cluster struct {
		// Peers maps every other member's id to its dial address.
		Peers map[string]string `yaml:"peers"`
	} `yaml:"cluster"`

	Timing struct {
		HeartbeatMs   int `yaml:"heartbeat_ms"`
		ElectionMinMs int `yaml:"election_min_ms"`
		ElectionMaxMs int `yaml:"election_max_ms"`
	} `yaml:"timing"`

	WAL struct {
		Dir             string `yaml:"dir"`
		BufferSize      int    `yaml:"buffer_size"`
		FlushIntervalMs int    `yaml:"flush_interval_ms"`
		SyncOnAppend    bool   `yaml:"sync_on_append"`
	} `yaml:"wal"`

	Snapshot struct {
		Dir string `yaml:"dir"`
	} `yaml:"snapshot"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Load reads and parses a YAML config file at path, applying defaults for
// anything the file leaves zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timing.HeartbeatMs == 0 {
		c.Timing.HeartbeatMs = 50
	}
	if c.Timing.ElectionMinMs == 0 {
		c.Timing.ElectionMinMs = 150
	}
	if c.Timing.ElectionMaxMs == 0 {
		c.Timing.ElectionMaxMs = 300
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "data/wal.log"
	}
	if c.WAL.BufferSize <= 0 {
		c.WAL.BufferSize = 100
	}
	if c.WAL.FlushIntervalMs <= 0 {
		c.WAL.FlushIntervalMs = 10
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "data/snapshot.json"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
}

// Heartbeat returns the configured leader heartbeat interval.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.Timing.HeartbeatMs) * time.Millisecond
}

// ElectionRange returns the configured [min, max) election timeout range.
func (c *Config) ElectionRange() (time.Duration, time.Duration) {
	return time.Duration(c.Timing.ElectionMinMs) * time.Millisecond,
		time.Duration(c.Timing.ElectionMaxMs) * time.Millisecond
}

// FlushInterval returns the configured WAL batch flush interval.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.WAL.FlushIntervalMs) * time.Millisecond
}
