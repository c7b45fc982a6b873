// Package snapshot persists a node's LogPrefix to disk: the compacted
// history below some index, written atomically so a crash mid-write can
// never leave a half-written snapshot file behind.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

const schemaVersion = 1

// onDiskSnapshot is the JSON envelope written to disk: the LogPrefix
// itself plus a schema version for forward compatibility.
type onDiskSnapshot struct {
	SchemaVer int              `json:"schema_ver"`
	Prefix    pkgraft.LogPrefix `json:"prefix"`
}

// Manager handles LogPrefix persistence for a single node.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a snapshot manager instance rooted at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically persists prefix to disk via a temp file + os.Rename,
// so readers never observe a partially-written snapshot.
func (m *Manager) Write(prefix pkgraft.LogPrefix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	onDisk := onDiskSnapshot{SchemaVer: schemaVersion, Prefix: prefix}
	jsonBytes, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted LogPrefix from disk. If no snapshot has ever
// been written, it returns the zero LogPrefix and no error — a fresh
// node's history simply starts at position zero.
func (m *Manager) Load() (pkgraft.LogPrefix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var onDisk onDiskSnapshot
	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return pkgraft.LogPrefix{}, nil
		}
		return pkgraft.LogPrefix{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &onDisk); err != nil {
		return pkgraft.LogPrefix{}, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}
	if onDisk.SchemaVer != schemaVersion {
		return pkgraft.LogPrefix{}, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, onDisk.SchemaVer, schemaVersion)
	}

	return onDisk.Prefix, nil
}

// Exists reports whether a snapshot file is present on disk.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath returns the snapshot file path (for testing and debugging).
func (m *Manager) GetPath() string {
	return m.path
}
