// Package raft contains the data model and consensus arithmetic shared by
// every role in the replicated log: identifiers, cluster configuration,
// the local log and its history, and the message/IO contracts a transport
// and storage layer must satisfy.
package raft

import "fmt"

// NodeId is a stable, opaque node identity. Equality and ordering are
// plain string comparison so NodeId can be used as a map key and sorted
// deterministically.
type NodeId string

func (n NodeId) String() string { return string(n) }

// Term is a monotonically non-decreasing epoch counter. At most one leader
// exists per term.
type Term uint64

func (t Term) String() string { return fmt.Sprintf("%d", uint64(t)) }

// LogIndex is an offset into the logical log. Index 0 is the sentinel
// empty position (no entry has ever been appended there).
type LogIndex uint64

func (i LogIndex) String() string { return fmt.Sprintf("%d", uint64(i)) }

// Add returns i shifted forward by n entries.
func (i LogIndex) Add(n int) LogIndex { return i + LogIndex(n) }

// Sub returns the entry count between other and i (i - other), assuming
// i >= other.
func (i LogIndex) Sub(other LogIndex) int { return int(i - other) }

// SaturatingSub returns i-n, clamped at 0 instead of wrapping.
func (i LogIndex) SaturatingSub(n uint64) LogIndex {
	if uint64(i) < n {
		return 0
	}
	return LogIndex(uint64(i) - n)
}

// LogPosition names a boundary in the log: the boundary between entry
// index-1 and entry index, tagged with the term of the entry immediately
// before index (or 0 if index == 0).
type LogPosition struct {
	PrevTerm Term
	Index    LogIndex
}

func (p LogPosition) String() string {
	return fmt.Sprintf("(term=%s, index=%s)", p.PrevTerm, p.Index)
}

// IsNewerOrEqualThan reports whether p is at least as far along the log as
// other — greater-or-equal on both PrevTerm and Index. Two positions
// straddling a divergent history (greater index, smaller term, or vice
// versa) are incomparable and this returns false for both orderings.
func (p LogPosition) IsNewerOrEqualThan(other LogPosition) bool {
	return p.PrevTerm >= other.PrevTerm && p.Index >= other.Index
}

// ProposalId names a single proposed log entry by the term it was
// appended in and the index it occupies.
type ProposalId struct {
	Term  Term
	Index LogIndex
}

// SequenceNumber is an opaque, monotonically increasing integer scoped to
// one (leader, follower) direction. It lets a leader discard stale replies
// and lets a follower discard stale requests; it carries no other meaning.
type SequenceNumber uint64

// Ballot is a node's persisted vote: the term it voted in and who it voted
// for. Reloaded on startup via IOProvider.LoadBallot.
type Ballot struct {
	Term     Term
	VotedFor NodeId
}

func (b Ballot) String() string {
	return fmt.Sprintf("ballot(term=%s, votedFor=%s)", b.Term, b.VotedFor)
}
