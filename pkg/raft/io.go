package raft

// Role names which per-node role a timer is being created for, so an
// IOProvider can pick an appropriate duration (randomized election
// timeout for Follower/Candidate, heartbeat interval for Leader).
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Future is a one-shot operation the driver loop polls to completion.
// Every IOProvider operation in this package is modeled this way instead
// of with blocking calls or raw channels, so that the single-threaded
// cooperative driver of spec.md §5 can poll messages, timers, and I/O
// completions from one place without ever blocking.
type Future[T any] interface {
	// Poll returns done=true exactly once, with the operation's result
	// or error. Polling after completion has undefined behavior; the
	// driver loop never does so.
	Poll() (done bool, value T, err error)
}

// SaveFuture is a Future that carries no result value, for persistence
// operations whose only outcome is success or failure.
type SaveFuture = Future[struct{}]

// LoadBallotFuture resolves to the persisted ballot, or nil if none has
// ever been saved.
type LoadBallotFuture = Future[*Ballot]

// LoadLogFuture resolves to whichever of LogPrefix/LogSuffix satisfies the
// requested range.
type LoadLogFuture = Future[Log]

// TimeoutFuture resolves once the timer fires.
type TimeoutFuture = Future[struct{}]

// IOProvider is the pluggable collaborator the core requires: message
// transport, persistent ballot/log/snapshot storage, and timers. None of
// its concerns (wire format, on-disk format, clock source) are prescribed
// by this package — see spec.md §6.
type IOProvider interface {
	// TryRecvMessage returns the next inbound message without blocking,
	// or ok=false if none is ready.
	TryRecvMessage() (msg Message, ok bool)

	// SendMessage is fire-and-forget; the transport decides buffering.
	SendMessage(msg Message)

	// SaveBallot durably persists the current term and voted-for node.
	SaveBallot(b Ballot) SaveFuture

	// LoadBallot restores the last-persisted ballot on startup.
	LoadBallot() LoadBallotFuture

	// SaveLogPrefix durably persists a snapshot.
	SaveLogPrefix(p LogPrefix) SaveFuture

	// SaveLogSuffix durably persists suffix, merging with any
	// already-persisted suffix overlapping or adjacent to it.
	SaveLogSuffix(s LogSuffix) SaveFuture

	// LoadLog returns either a LogPrefix covering at least [0, end), or
	// a LogSuffix whose range contains [start, end). A nil end means
	// "everything from start forward".
	LoadLog(start LogIndex, end *LogIndex) LoadLogFuture

	// CreateTimeout creates a one-shot timer appropriate to role.
	// Creating a new timer cancels any prior timer at this node.
	CreateTimeout(role Role) TimeoutFuture
}
