package raft

import (
	"log/slog"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// RoleKind tags which role a RoleState holds.
type RoleKind int

const (
	RoleKindFollower RoleKind = iota
	RoleKindCandidate
	RoleKindLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleKindFollower:
		return "Follower"
	case RoleKindCandidate:
		return "Candidate"
	case RoleKindLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// RoleState is the tagged union a role handler returns to request a
// transition; nil means "stay in the current role/sub-state".
type RoleState struct {
	Kind      RoleKind
	Follower  *FollowerRole
	Candidate *CandidateRole
	Leader    *LeaderRole
}

// Node is the single-threaded cooperative driver described in spec.md
// §5: one goroutine repeatedly polls inbound messages, role sub-state
// background work, and the role timeout, dispatching each to whichever
// role is currently active. It is the Go counterpart of the teacher's
// Raft.Start/runElectionLoop/runHeartbeatLoop pair, collapsed into a
// single loop because every operation here is non-blocking (Future
// polling) rather than channel receives on separate goroutines.
type Node struct {
	common *Common

	role      RoleKind
	follower  *FollowerRole
	candidate *CandidateRole
	leader    *LeaderRole

	timeout pkgraft.TimeoutFuture

	logger *slog.Logger
}

// NewNode creates a node that starts in the Follower role, as every Raft
// node does on boot.
func NewNode(localNode pkgraft.NodeId, io pkgraft.IOProvider, initialConfig pkgraft.ClusterConfig) *Node {
	common := NewCommon(localNode, io, initialConfig)
	n := &Node{
		common:   common,
		role:     RoleKindFollower,
		follower: NewFollowerRole(),
		logger:   slog.With("component", "raft.node", "node", string(localNode)),
	}
	n.timeout = common.io.CreateTimeout(pkgraft.RoleFollower)
	return n
}

// Common exposes the shared per-node state, primarily for tests and for
// callers proposing new log entries.
func (n *Node) Common() *Common { return n.common }

// Role reports which role the node currently occupies.
func (n *Node) Role() RoleKind { return n.role }

// RunOnce drains one round of work: inbound messages (until none are
// ready), any in-flight sub-state background task, and the role timer.
// It never blocks; callers loop calling it, sleeping between calls as
// their scheduler sees fit (spec.md §5 deliberately prescribes no
// particular sleep/backoff strategy).
func (n *Node) RunOnce() error {
	for {
		msg, ok := n.common.io.TryRecvMessage()
		if !ok {
			break
		}
		if err := n.handleMessage(msg); err != nil {
			return err
		}
	}

	if err := n.runRoleOnce(); err != nil {
		return err
	}

	return n.pollTimeout()
}

func (n *Node) handleMessage(msg pkgraft.Message) error {
	header := msg.Header()
	if header.Term > n.common.CurrentTerm() {
		if err := n.stepDown(header.Term); err != nil {
			return err
		}
	}

	var next *RoleState
	var err error
	switch n.role {
	case RoleKindFollower:
		next, err = n.follower.HandleMessage(n.common, msg)
	case RoleKindCandidate:
		next, err = n.candidate.HandleMessage(n.common, msg)
	case RoleKindLeader:
		next, err = n.leader.HandleMessage(n.common, msg)
	}
	if err != nil {
		return err
	}
	n.applyTransition(next)
	return nil
}

func (n *Node) runRoleOnce() error {
	var next *RoleState
	var err error
	switch n.role {
	case RoleKindFollower:
		next, err = n.follower.RunOnce(n.common)
	case RoleKindCandidate:
		next, err = n.candidate.RunOnce(n.common)
	case RoleKindLeader:
		next, err = n.leader.RunOnce(n.common)
	}
	if err != nil {
		return err
	}
	n.applyTransition(next)
	return nil
}

func (n *Node) pollTimeout() error {
	done, _, err := n.timeout.Poll()
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	switch n.role {
	case RoleKindFollower, RoleKindCandidate:
		if err := n.startElection(); err != nil {
			return err
		}
	case RoleKindLeader:
		n.leader.Broadcast(n.common)
	}

	n.timeout = n.common.io.CreateTimeout(n.ioRole())
	return nil
}

func (n *Node) ioRole() pkgraft.Role {
	switch n.role {
	case RoleKindLeader:
		return pkgraft.RoleLeader
	case RoleKindCandidate:
		return pkgraft.RoleCandidate
	default:
		return pkgraft.RoleFollower
	}
}

func (n *Node) startElection() error {
	cand, err := NewCandidateRole(n.common)
	if err != nil {
		return err
	}
	n.applyTransition(&RoleState{Kind: RoleKindCandidate, Candidate: cand})
	return nil
}

// stepDown reverts to Follower on discovering a higher term, per the
// invariant that no role persists once it has seen proof a newer
// election has begun.
func (n *Node) stepDown(term pkgraft.Term) error {
	ballot := pkgraft.Ballot{Term: term}
	n.common.SetBallot(ballot)
	n.applyTransition(&RoleState{Kind: RoleKindFollower, Follower: NewFollowerRole()})
	return nil
}

func (n *Node) applyTransition(next *RoleState) {
	if next == nil {
		return
	}
	n.role = next.Kind
	n.follower = next.Follower
	n.candidate = next.Candidate
	n.leader = next.Leader
	n.logger.Debug("role transition", "role", n.role.String())
}

// Propose appends a new command entry if this node is the leader. It
// mirrors the teacher's Raft.Propose signature in spirit (index, ok).
func (n *Node) Propose(command []byte) (pkgraft.LogIndex, bool) {
	if n.role != RoleKindLeader {
		return 0, false
	}
	return n.leader.Propose(n.common, pkgraft.CommandEntry(n.common.CurrentTerm(), command)), true
}
