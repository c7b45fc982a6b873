// Package raft implements the node-local Raft role state machine: the
// follower/candidate/leader sub-states and the driver loop that polls an
// IOProvider and dispatches messages and timers between them. The
// consensus data model (cluster configuration, log, history bookkeeping)
// lives in pkg/raft; this package is the behavior layered on top of it.
package raft

import (
	"log/slog"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// RpcCallee answers the message currently being handled, addressed back
// to its sender with the header term/seqno it arrived with.
type RpcCallee struct {
	common *Common
	header pkgraft.Header
}

// ReplyAppendEntries answers an AppendEntriesCall with the local node's
// resulting log tail.
func (c RpcCallee) ReplyAppendEntries(tail pkgraft.LogPosition) {
	c.common.sendMessage(pkgraft.NewAppendEntriesReply(pkgraft.AppendEntriesReply{
		Header:  c.common.replyHeader(c.header),
		LogTail: tail,
	}))
}

// ReplyBusy answers an AppendEntriesCall that arrived while another
// append or snapshot install is already in flight.
func (c RpcCallee) ReplyBusy() {
	c.common.sendMessage(pkgraft.NewAppendEntriesReply(pkgraft.AppendEntriesReply{
		Header: c.common.replyHeader(c.header),
		Busy:   true,
	}))
}

// ReplyRequestVote answers a RequestVoteCall.
func (c RpcCallee) ReplyRequestVote(voted bool) {
	c.common.sendMessage(pkgraft.NewRequestVoteReply(pkgraft.RequestVoteReply{
		Header: c.common.replyHeader(c.header),
		Voted:  voted,
	}))
}

// RpcCaller issues outbound RPCs to other cluster members.
type RpcCaller struct {
	common *Common
}

// SendAppendEntries pushes suffix to follower, tagged with the next
// outbound sequence number.
func (c RpcCaller) SendAppendEntries(follower pkgraft.NodeId, suffix pkgraft.LogSuffix) {
	c.common.sendMessage(pkgraft.NewAppendEntriesCall(pkgraft.AppendEntriesCall{
		Header:           c.common.callHeader(follower),
		Suffix:           suffix,
		CommittedLogTail: c.common.history.CommittedTail().Index,
	}))
}

// SendInstallSnapshot pushes a compacted LogPrefix to follower.
func (c RpcCaller) SendInstallSnapshot(follower pkgraft.NodeId, prefix pkgraft.LogPrefix) {
	c.common.sendMessage(pkgraft.NewInstallSnapshotCast(pkgraft.InstallSnapshotCast{
		Header: c.common.callHeader(follower),
		Prefix: prefix,
	}))
}

// SendRequestVote asks follower to vote for the local node, advertising
// its last log position.
func (c RpcCaller) SendRequestVote(follower pkgraft.NodeId, lastLogPosition pkgraft.LogPosition) {
	c.common.sendMessage(pkgraft.NewRequestVoteCall(pkgraft.RequestVoteCall{
		Header:          c.common.callHeader(follower),
		LastLogPosition: lastLogPosition,
	}))
}

// Common holds the per-node state shared by every role: local identity,
// persisted term/ballot, the log history, pending snapshot-install
// status, and the IOProvider collaborator. It is the Go counterpart of
// the teacher's mutex-guarded Raft struct, generalized to the
// cooperative single-goroutine driver loop of spec.md §5 (so it carries
// no mutex of its own — the driver loop is its only caller).
type Common struct {
	localNode   pkgraft.NodeId
	io          pkgraft.IOProvider
	history     *pkgraft.LogHistory
	ballot      pkgraft.Ballot
	nextSeqNo   pkgraft.SequenceNumber
	snapshotting bool
	logger      *slog.Logger
}

// NewCommon builds the shared per-node state for a freshly-started node.
func NewCommon(localNode pkgraft.NodeId, io pkgraft.IOProvider, initialConfig pkgraft.ClusterConfig) *Common {
	return &Common{
		localNode: localNode,
		io:        io,
		history:   pkgraft.NewLogHistory(initialConfig),
		logger:    slog.With("component", "raft", "node", string(localNode)),
	}
}

// LocalNode returns this node's id.
func (c *Common) LocalNode() pkgraft.NodeId { return c.localNode }

// Log returns the log-history bookkeeping.
func (c *Common) Log() *pkgraft.LogHistory { return c.history }

// LogCommittedTail returns the committed-tail position.
func (c *Common) LogCommittedTail() pkgraft.LogPosition { return c.history.CommittedTail() }

// CurrentTerm returns the locally-persisted term.
func (c *Common) CurrentTerm() pkgraft.Term { return c.ballot.Term }

// Ballot returns the locally-persisted ballot (current term + voted-for).
func (c *Common) Ballot() pkgraft.Ballot { return c.ballot }

// SetBallot records a new ballot. Callers are responsible for persisting
// it via the IOProvider before or as part of committing to the role
// transition it implies.
func (c *Common) SetBallot(b pkgraft.Ballot) { c.ballot = b }

// SaveBallot persists b through the IOProvider.
func (c *Common) SaveBallot(b pkgraft.Ballot) pkgraft.SaveFuture {
	return c.io.SaveBallot(b)
}

// IsSnapshotInstalling reports whether an InstallSnapshot is already in
// flight, so a second one arriving mid-install is dropped rather than
// raced against the first.
func (c *Common) IsSnapshotInstalling() bool { return c.snapshotting }

// InstallSnapshot begins persisting prefix and marks the install as in
// flight; InstallSnapshotDone clears the flag once it completes.
func (c *Common) InstallSnapshot(prefix pkgraft.LogPrefix) pkgraft.SaveFuture {
	c.snapshotting = true
	return c.io.SaveLogPrefix(prefix)
}

// InstallSnapshotDone records that the in-flight snapshot install from
// InstallSnapshot finished, updating history accordingly.
func (c *Common) InstallSnapshotDone(prefix pkgraft.LogPrefix) error {
	c.snapshotting = false
	return c.history.RecordSnapshotInstalled(prefix.Tail, prefix.Config)
}

// SaveLogSuffix persists suffix through the IOProvider.
func (c *Common) SaveLogSuffix(suffix pkgraft.LogSuffix) pkgraft.SaveFuture {
	return c.io.SaveLogSuffix(suffix)
}

// LoadLog requests the log range [start, end) from the IOProvider.
func (c *Common) LoadLog(start pkgraft.LogIndex, end *pkgraft.LogIndex) pkgraft.LoadLogFuture {
	return c.io.LoadLog(start, end)
}

// HandleLogAppended records that suffix was durably persisted.
func (c *Common) HandleLogAppended(suffix pkgraft.LogSuffix) error {
	return c.history.RecordAppended(suffix)
}

// HandleLogCommitted advances the committed-tail frontier.
func (c *Common) HandleLogCommitted(newTailIndex pkgraft.LogIndex) error {
	if newTailIndex <= c.history.CommittedTail().Index {
		return nil
	}
	return c.history.RecordCommitted(newTailIndex)
}

// HandleLogRollbacked discards the uncommitted tail back to newTail,
// following a detected divergence from the leader.
func (c *Common) HandleLogRollbacked(newTail pkgraft.LogPosition) error {
	return c.history.RecordRollback(newTail)
}

// RpcCallee addresses a reply back to the sender of the message
// currently being handled.
func (c *Common) RpcCallee(header pkgraft.Header) RpcCallee {
	return RpcCallee{common: c, header: header}
}

// RpcCaller issues outbound RPCs.
func (c *Common) RpcCaller() RpcCaller {
	return RpcCaller{common: c}
}

func (c *Common) sendMessage(m pkgraft.Message) {
	c.io.SendMessage(m)
}

func (c *Common) nextSeq() pkgraft.SequenceNumber {
	c.nextSeqNo++
	return c.nextSeqNo
}

func (c *Common) replyHeader(in pkgraft.Header) pkgraft.Header {
	return pkgraft.Header{
		Sender:      c.localNode,
		Destination: in.Sender,
		Term:        c.ballot.Term,
		SeqNo:       in.SeqNo,
	}
}

func (c *Common) callHeader(dest pkgraft.NodeId) pkgraft.Header {
	return pkgraft.Header{
		Sender:      c.localNode,
		Destination: dest,
		Term:        c.ballot.Term,
		SeqNo:       c.nextSeq(),
	}
}
