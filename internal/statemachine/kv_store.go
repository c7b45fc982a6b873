// Package statemachine implements the demo application sitting on top of
// a node's committed log: a replicated key/value store. Hybrid design
// mirrors the corpus's job-manager state machine — a single map as
// source of truth, guarded by one RWMutex, with snapshot/restore for
// crash recovery — just pointed at SET/DELETE commands instead of job
// lifecycle transitions.
package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// Op identifies what a command does to the store.
type Op string

const (
	OpSet    Op = "SET"
	OpDelete Op = "DELETE"
)

// Command is the JSON payload carried in a LogEntry's Command field.
type Command struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// EncodeSet builds the Command bytes for a SET operation.
func EncodeSet(key, value string) []byte {
	b, _ := json.Marshal(Command{Op: OpSet, Key: key, Value: value})
	return b
}

// EncodeDelete builds the Command bytes for a DELETE operation.
func EncodeDelete(key string) []byte {
	b, _ := json.Marshal(Command{Op: OpDelete, Key: key})
	return b
}

var ErrUnknownOp = errors.New("statemachine: unknown command op")

// KVStore is a replicated key/value map. Every node in a cluster applies
// the same committed commands in the same order, so every node's store
// converges to the same contents.
type KVStore struct {
	mu      sync.RWMutex
	data    map[string]string
	applied pkgraft.LogIndex // highest committed index applied so far
}

// NewKVStore creates an empty store.
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

// Apply applies the command committed at index. Indices at or below what
// has already been applied are a no-op: replay after a restart, or a
// leader resending an already-applied entry, must not double-apply.
func (s *KVStore) Apply(index pkgraft.LogIndex, command []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.applied {
		return nil
	}

	var cmd Command
	if err := json.Unmarshal(command, &cmd); err != nil {
		return fmt.Errorf("statemachine: decode command at index %s: %w", index, err)
	}

	switch cmd.Op {
	case OpSet:
		s.data[cmd.Key] = cmd.Value
	case OpDelete:
		delete(s.data, cmd.Key)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}

	s.applied = index
	return nil
}

// Get returns the current value for key, and whether it's present.
func (s *KVStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// AppliedIndex returns the highest log index applied so far.
func (s *KVStore) AppliedIndex() pkgraft.LogIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// snapshotData is the JSON envelope Snapshot/Restore exchange.
type snapshotData struct {
	Data    map[string]string `json:"data"`
	Applied pkgraft.LogIndex  `json:"applied"`
}

// Snapshot serializes the current store contents, for compaction into a
// LogPrefix.
func (s *KVStore) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cloned := make(map[string]string, len(s.data))
	for k, v := range s.data {
		cloned[k] = v
	}
	return json.Marshal(snapshotData{Data: cloned, Applied: s.applied})
}

// Restore replaces the store's contents with a previously-taken Snapshot.
func (s *KVStore) Restore(snapshot []byte) error {
	var decoded snapshotData
	if err := json.Unmarshal(snapshot, &decoded); err != nil {
		return fmt.Errorf("statemachine: decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if decoded.Data == nil {
		decoded.Data = make(map[string]string)
	}
	s.data = decoded.Data
	s.applied = decoded.Applied
	return nil
}
