package wal

import "encoding/json"

// ============================================================================
// WAL Type Definitions
// Responsibility: Define core data structures for WAL
// ============================================================================

// EventType defines WAL event types
type EventType string

const (
	EventBallot    EventType = "BALLOT"     // SaveBallot: term/votedFor changed
	EventLogSuffix EventType = "LOG_SUFFIX" // SaveLogSuffix: appended/overwritten entries
	EventLogPrefix EventType = "LOG_PREFIX" // SaveLogPrefix: snapshot installed/compacted
)

// Event represents a single persisted WAL record. Payload carries the
// JSON encoding of whichever pkg/raft value this event records (a
// Ballot, a LogSuffix, or a LogPrefix) — the WAL itself doesn't need to
// know their shape beyond what the checksum covers.
type Event struct {
	Seq       uint64          `json:"seq"`       // Event sequence number (monotonically increasing)
	Type      EventType       `json:"type"`      // Event type
	Payload   json.RawMessage `json:"payload"`   // JSON-encoded Ballot, LogSuffix, or LogPrefix
	Timestamp int64           `json:"timestamp"` // Unix millisecond timestamp
	Checksum  uint32          `json:"checksum"`  // CRC32 checksum

	// TODO: record the suffix's LogPosition head/tail as a top-level field
	// once log compaction needs to skip-scan without decoding Payload.
}

// EventHandler is the function type for processing WAL events during
// Replay, applying each one to recovering LogHistory/Ballot state.
type EventHandler func(event Event) error
