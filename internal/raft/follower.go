package raft

import (
	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// followerSub tags which sub-state a FollowerRole occupies.
type followerSub int

const (
	followerIdle followerSub = iota
	followerAppending
	followerSnapshotting
)

// FollowerRole is the passive role: it answers AppendEntries and
// InstallSnapshot from whichever node it currently recognizes as leader,
// answers RequestVote calls while Idle, and otherwise does nothing until
// its election timeout fires. Grounded
// on original_source/src/node_state/follower/{idle,append}.rs; the
// Snapshot sub-state mirrors FollowerAppend's shape (poll a save future,
// then transition back to Idle) since no append.rs-equivalent source for
// it survived retrieval, so it's inferred from FollowerIdle's
// InstallSnapshotCast branch and FollowerAppend's polling pattern.
type FollowerRole struct {
	sub followerSub

	appendFuture pkgraft.SaveFuture
	newLogTail   pkgraft.LogPosition
	appendMsg    pkgraft.AppendEntriesCall

	snapshotFuture pkgraft.SaveFuture
	snapshotPrefix pkgraft.LogPrefix
}

// NewFollowerRole returns a FollowerRole in its Idle sub-state, ready to
// accept RPCs.
func NewFollowerRole() *FollowerRole {
	return &FollowerRole{sub: followerIdle}
}

// HandleMessage dispatches msg according to the current sub-state.
func (f *FollowerRole) HandleMessage(common *Common, msg pkgraft.Message) (*RoleState, error) {
	switch f.sub {
	case followerIdle:
		return f.handleIdleMessage(common, msg)
	case followerAppending, followerSnapshotting:
		// Both busy sub-states reject a concurrent AppendEntriesCall
		// with Busy=true and silently drop everything else, matching
		// FollowerAppend::handle_message.
		if msg.Kind == pkgraft.MsgAppendEntriesCall {
			common.RpcCallee(msg.Header()).ReplyBusy()
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// RunOnce advances whichever background save future the current
// sub-state is waiting on.
func (f *FollowerRole) RunOnce(common *Common) (*RoleState, error) {
	switch f.sub {
	case followerAppending:
		return f.runAppendOnce(common)
	case followerSnapshotting:
		return f.runSnapshotOnce(common)
	default:
		return nil, nil
	}
}

func (f *FollowerRole) handleIdleMessage(common *Common, msg pkgraft.Message) (*RoleState, error) {
	switch msg.Kind {
	case pkgraft.MsgAppendEntriesCall:
		return f.handleEntries(common, *msg.AppendEntriesCall)
	case pkgraft.MsgInstallSnapshotCast:
		return f.handleInstallSnapshot(common, *msg.InstallSnapshotCast)
	case pkgraft.MsgRequestVoteCall:
		// Grant at most one vote per term, and only to a candidate whose
		// last log position is at least as up to date as the local tail.
		call := *msg.RequestVoteCall
		ballot := common.Ballot()
		tail := common.Log().Tail()
		upToDate := call.LastLogPosition.PrevTerm > tail.PrevTerm ||
			(call.LastLogPosition.PrevTerm == tail.PrevTerm && call.LastLogPosition.Index >= tail.Index)
		granted := call.Header.Term == ballot.Term && upToDate &&
			(ballot.VotedFor == "" || ballot.VotedFor == call.Header.Sender)
		if granted {
			ballot.VotedFor = call.Header.Sender
			common.SetBallot(ballot)
			common.SaveBallot(ballot)
		}
		common.RpcCallee(call.Header).ReplyRequestVote(granted)
		return nil, nil
	default:
		return nil, nil
	}
}

func (f *FollowerRole) handleInstallSnapshot(common *Common, m pkgraft.InstallSnapshotCast) (*RoleState, error) {
	if m.Prefix.Tail.Index <= common.LogCommittedTail().Index {
		// Already committed past this snapshot locally; ignore.
		return nil, nil
	}
	if common.IsSnapshotInstalling() {
		// Another snapshot install is already in flight.
		return nil, nil
	}

	future := common.InstallSnapshot(m.Prefix)
	next := &FollowerRole{sub: followerSnapshotting, snapshotFuture: future, snapshotPrefix: m.Prefix}
	return &RoleState{Kind: RoleKindFollower, Follower: next}, nil
}

func (f *FollowerRole) handleEntries(common *Common, message pkgraft.AppendEntriesCall) (*RoleState, error) {
	localTail := common.Log().Tail()

	if message.Suffix.Tail().Index < common.Log().Head().Index {
		// The leader's log is far behind ours (before our snapshot
		// boundary); just report our tail back, untouched.
		common.RpcCallee(message.Header).ReplyAppendEntries(localTail)
		return nil, nil
	}

	if message.Suffix.Head.Index < common.Log().Head().Index {
		// The leader sent entries preceding our snapshot boundary;
		// discard the part we've already compacted away.
		if err := message.Suffix.SkipTo(common.Log().Head().Index); err != nil {
			return nil, err
		}
	}

	if localTail.Index < message.Suffix.Head.Index {
		// The leader's log has advanced past ours with a gap; report
		// our tail so the leader resends from there.
		common.RpcCallee(message.Header).ReplyAppendEntries(localTail)
		return nil, nil
	}

	return f.handleNonDisjointEntries(common, message)
}

func (f *FollowerRole) handleNonDisjointEntries(common *Common, message pkgraft.AppendEntriesCall) (*RoleState, error) {
	matched, lcp, err := longestCommonPrefix(common, message.Suffix)
	if err != nil {
		return nil, err
	}

	if !matched {
		// The logs have diverged; roll back the local uncommitted tail
		// to the agreement point and report it so the leader resends
		// from there.
		if err := common.HandleLogRollbacked(lcp); err != nil {
			return nil, err
		}
		common.RpcCallee(message.Header).ReplyAppendEntries(lcp)
		return nil, nil
	}

	if err := message.Suffix.SkipTo(lcp.Index); err != nil {
		return nil, err
	}
	next := newFollowerAppend(common, message)
	return &RoleState{Kind: RoleKindFollower, Follower: next}, nil
}

// longestCommonPrefix walks suffix's boundary positions against the
// local history, returning (true, local-or-leader tail) if one log is a
// prefix of the other, or (false, divergence point) if they've forked.
// Grounded on FollowerIdle::longest_common_prefix.
func longestCommonPrefix(common *Common, suffix pkgraft.LogSuffix) (bool, pkgraft.LogPosition, error) {
	positions := suffix.Positions()
	for {
		p, ok := positions.Next()
		if !ok {
			break
		}

		record, found := common.Log().GetRecord(p.Index)
		if !found {
			return false, pkgraft.LogPosition{}, pkgraft.NewInconsistentStateError("longest_common_prefix: no local record for index")
		}

		if p.PrevTerm != record.Head.PrevTerm {
			lcpRecord, found := common.Log().GetRecord(p.Index - 1)
			if !found {
				return false, pkgraft.LogPosition{}, pkgraft.NewInconsistentStateError("longest_common_prefix: no local record before divergence")
			}
			lcp := lcpRecord.Head
			lcp.Index = p.Index - 1
			return false, lcp, nil
		}

		if p.Index == common.Log().Tail().Index {
			// The leader's suffix extends past our tail; we agree up
			// to everything we have.
			return true, common.Log().Tail(), nil
		}
	}

	// We walked every position in the suffix without disagreeing or
	// reaching our own tail: the local log contains the leader's suffix.
	return true, suffix.Tail(), nil
}

// newFollowerAppend builds the Append sub-state for message, clamping
// its new-log-tail and committed-tail fields against what's already
// locally known so that reordered messages never move either backwards.
// Grounded on FollowerAppend::new.
func newFollowerAppend(common *Common, message pkgraft.AppendEntriesCall) *FollowerRole {
	newLogTail := message.Suffix.Tail()
	if newLogTail.Index < common.Log().Tail().Index {
		newLogTail = common.Log().Tail()
	}

	if message.Suffix.Tail().Index < message.CommittedLogTail {
		message.CommittedLogTail = message.Suffix.Tail().Index
	}
	if message.CommittedLogTail < common.LogCommittedTail().Index {
		message.CommittedLogTail = common.LogCommittedTail().Index
	}

	var future pkgraft.SaveFuture
	if newLogTail.Index != common.Log().Tail().Index {
		// Only actually persist when there's new data; AppendEntries
		// doubles as a heartbeat with an empty suffix.
		future = common.SaveLogSuffix(message.Suffix)
	}

	return &FollowerRole{
		sub:          followerAppending,
		appendFuture: future,
		newLogTail:   newLogTail,
		appendMsg:    message,
	}
}

func (f *FollowerRole) runAppendOnce(common *Common) (*RoleState, error) {
	if f.appendFuture != nil {
		done, _, err := f.appendFuture.Poll()
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, nil
		}
	}

	if f.newLogTail == f.appendMsg.Suffix.Tail() {
		if err := common.HandleLogAppended(f.appendMsg.Suffix); err != nil {
			return nil, err
		}
	}
	if err := common.HandleLogCommitted(f.appendMsg.CommittedLogTail); err != nil {
		return nil, err
	}

	common.RpcCallee(f.appendMsg.Header).ReplyAppendEntries(f.appendMsg.Suffix.Tail())
	return &RoleState{Kind: RoleKindFollower, Follower: NewFollowerRole()}, nil
}

func (f *FollowerRole) runSnapshotOnce(common *Common) (*RoleState, error) {
	done, _, err := f.snapshotFuture.Poll()
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}

	if err := common.InstallSnapshotDone(f.snapshotPrefix); err != nil {
		return nil, err
	}
	return &RoleState{Kind: RoleKindFollower, Follower: NewFollowerRole()}, nil
}
