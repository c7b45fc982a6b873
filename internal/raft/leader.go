package raft

import (
	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// followerProgress is what a leader locally believes about one follower's
// replication state. Grounded on leader/follower.rs's private `Follower`
// struct.
type followerProgress struct {
	obsoleteSeqNo pkgraft.SequenceNumber
	logTail       pkgraft.LogIndex
	lastSeqNo     pkgraft.SequenceNumber
	synced        bool
}

// FollowersManager tracks every follower's replication progress and
// drives catch-up log synchronization. Grounded on
// original_source/src/node_state/leader/follower.rs's FollowersManager;
// the per-follower background LoadLog task is a polled map entry rather
// than a worker-pool goroutine (see tasks.go), matching the
// single-threaded driver loop this package commits to.
type FollowersManager struct {
	followers map[pkgraft.NodeId]*followerProgress
	config    pkgraft.ClusterConfig

	latestHeartbeatAck pkgraft.SequenceNumber
	lastBroadcastSeqNo pkgraft.SequenceNumber

	tasks *logSyncTasks
}

// NewFollowersManager seeds tracking state for every member of config.
func NewFollowersManager(config pkgraft.ClusterConfig) *FollowersManager {
	followers := make(map[pkgraft.NodeId]*followerProgress, len(config.Members()))
	for _, id := range config.Members().Sorted() {
		followers[id] = &followerProgress{}
	}
	return &FollowersManager{
		followers: followers,
		config:    config,
		tasks:     newLogSyncTasks(),
	}
}

// CommittedLogTail returns the log index committed by a simple majority
// of voting members (both sides of a Joint config, each independently).
func (m *FollowersManager) CommittedLogTail(common *Common) pkgraft.LogIndex {
	return pkgraft.ConsensusValue(m.config, func(id pkgraft.NodeId) pkgraft.LogIndex {
		f := m.followers[id]
		if f.synced {
			return f.logTail
		}
		return 0
	})
}

// JointCommittedLogTail is CommittedLogTail except it always demands a
// double majority during CatchUp too, for callers that need to know a
// reconfiguration entry itself is safely committed even before the
// cluster reaches the Joint phase.
func (m *FollowersManager) JointCommittedLogTail(common *Common) pkgraft.LogIndex {
	return pkgraft.FullConsensusValue(m.config, func(id pkgraft.NodeId) pkgraft.LogIndex {
		f := m.followers[id]
		if f.synced {
			return f.logTail
		}
		return 0
	})
}

// LatestHeartbeatAck returns the highest sequence number acknowledged by
// a consensus majority, usable as a leader-lease liveness signal.
func (m *FollowersManager) LatestHeartbeatAck() pkgraft.SequenceNumber {
	return m.latestHeartbeatAck
}

// SetLastBroadcastSeqNo records the sequence number of the most recent
// broadcast AppendEntries round.
func (m *FollowersManager) SetLastBroadcastSeqNo(seqNo pkgraft.SequenceNumber) {
	m.lastBroadcastSeqNo = seqNo
}

// HandleAppendEntriesReply updates the sender's tracked progress and
// reports whether anything changed (the caller uses this to decide
// whether a fresh commit-index computation is worthwhile).
func (m *FollowersManager) HandleAppendEntriesReply(common *Common, reply pkgraft.AppendEntriesReply) bool {
	updated := m.updateFollowerState(common, reply)
	if m.latestHeartbeatAck < reply.Header.SeqNo {
		m.latestHeartbeatAck = pkgraft.ConsensusValue(m.config, func(id pkgraft.NodeId) pkgraft.SequenceNumber {
			return m.followers[id].lastSeqNo
		})
	}
	return updated
}

// updateFollowerState folds one AppendEntriesReply into the sender's
// tracked progress, inferring synced/unsynced transitions the same way
// leader/follower.rs's update_follower_state does — including the
// flagged-as-approximate "log_tail==0 means the follower's state got
// cleared" heuristic, preserved as-is rather than replaced.
func (m *FollowersManager) updateFollowerState(common *Common, reply pkgraft.AppendEntriesReply) bool {
	f := m.followers[reply.Header.Sender]
	if f == nil {
		return false
	}
	if f.lastSeqNo < reply.Header.SeqNo {
		f.lastSeqNo = reply.Header.SeqNo
	}

	if reply.Busy {
		return false
	}

	if f.synced {
		updated := f.logTail < reply.LogTail.Index
		if updated {
			f.logTail = reply.LogTail.Index
		} else if reply.LogTail.Index == 0 && f.logTail != 0 {
			f.synced = false
		}
		return updated
	}

	record, found := common.Log().GetRecord(reply.LogTail.Index)
	leaderPrevTerm := pkgraft.Term(0)
	agrees := false
	if found {
		leaderPrevTerm = record.Head.PrevTerm
		agrees = leaderPrevTerm == reply.LogTail.PrevTerm
	}
	f.synced = agrees
	if f.synced {
		f.logTail = reply.LogTail.Index
	} else {
		f.logTail = reply.LogTail.Index.SaturatingSub(1)
	}
	return f.synced
}

// LogSync starts (or continues) catch-up replication to whichever
// follower reply just arrived, if it's behind and not already being
// synced. Grounded on FollowersManager::log_sync.
func (m *FollowersManager) LogSync(common *Common, reply pkgraft.AppendEntriesReply) {
	if reply.Busy || m.tasks.inFlight(reply.Header.Sender) {
		return
	}

	f := m.followers[reply.Header.Sender]
	if f == nil {
		return
	}

	if reply.Header.SeqNo <= f.obsoleteSeqNo {
		// A newer broadcast has already superseded the round this
		// reply answers; skip it to bound fan-out under concurrent
		// proposals.
		return
	}
	f.obsoleteSeqNo = m.lastBroadcastSeqNo

	if common.Log().Tail().Index <= f.logTail {
		return
	}

	var end pkgraft.LogIndex
	if f.synced {
		end = common.Log().Tail().Index
	} else {
		end = f.logTail
	}

	future := common.LoadLog(f.logTail, &end)
	m.tasks.start(reply.Header.Sender, future)
}

// RunOnce polls every in-flight catch-up load and ships whatever
// completed back to its follower as an AppendEntries or InstallSnapshot.
func (m *FollowersManager) RunOnce(common *Common) error {
	done, err := m.tasks.poll()
	if err != nil {
		return err
	}
	caller := common.RpcCaller()
	for _, d := range done {
		if d.log.IsPrefix() {
			caller.SendInstallSnapshot(d.follower, *d.log.Prefix)
		} else {
			caller.SendAppendEntries(d.follower, *d.log.Suffix)
		}
	}
	return nil
}

// HandleConfigUpdated reconciles tracked followers against a new
// ClusterConfig: adds newly-known members, drops members no longer
// known to either side of the configuration.
func (m *FollowersManager) HandleConfigUpdated(config pkgraft.ClusterConfig) {
	for _, id := range config.Members().Sorted() {
		if _, ok := m.followers[id]; !ok {
			m.followers[id] = &followerProgress{}
		}
	}
	for id := range m.followers {
		if !config.IsKnownNode(id) {
			delete(m.followers, id)
		}
	}
	m.config = config
}

// LeaderRole is the active role: it owns proposing new entries,
// broadcasting AppendEntries/heartbeats, and tracking follower progress
// via FollowersManager to compute the commit index.
type LeaderRole struct {
	managers *FollowersManager
}

// NewLeaderRole builds a LeaderRole once an election has won a majority.
func NewLeaderRole(common *Common) *LeaderRole {
	return &LeaderRole{managers: NewFollowersManager(common.Log().Config())}
}

// HandleMessage dispatches replies to FollowersManager; any RequestVote
// for this term is refused since a sitting leader never yields its seat
// voluntarily.
func (l *LeaderRole) HandleMessage(common *Common, msg pkgraft.Message) (*RoleState, error) {
	switch msg.Kind {
	case pkgraft.MsgAppendEntriesReply:
		reply := *msg.AppendEntriesReply
		if l.managers.HandleAppendEntriesReply(common, reply) {
			if err := common.HandleLogCommitted(l.managers.CommittedLogTail(common)); err != nil {
				return nil, err
			}
		}
		l.managers.LogSync(common, reply)
		return nil, nil
	case pkgraft.MsgRequestVoteCall:
		common.RpcCallee(msg.RequestVoteCall.Header).ReplyRequestVote(false)
		return nil, nil
	default:
		return nil, nil
	}
}

// RunOnce advances FollowersManager's in-flight catch-up loads.
func (l *LeaderRole) RunOnce(common *Common) (*RoleState, error) {
	if err := l.managers.RunOnce(common); err != nil {
		return nil, err
	}
	return nil, nil
}

// Broadcast sends every other member an empty AppendEntries headed at the
// local log tail, as a heartbeat. A follower that is behind answers with
// its own tail, and LogSync then ships it the missing entries.
func (l *LeaderRole) Broadcast(common *Common) {
	caller := common.RpcCaller()
	tail := common.Log().Tail()
	for _, id := range l.managers.config.Members().Sorted() {
		if id == common.LocalNode() {
			continue
		}
		suffix := pkgraft.LogSuffix{Head: tail}
		caller.SendAppendEntries(id, suffix)
	}
}

// Propose appends entry to the local log, to be replicated on the next
// broadcast, and returns the index it was assigned.
func (l *LeaderRole) Propose(common *Common, entry pkgraft.LogEntry) pkgraft.LogIndex {
	tail := common.Log().Tail()
	suffix := pkgraft.LogSuffix{Head: tail, Entries: []pkgraft.LogEntry{entry}}
	common.SaveLogSuffix(suffix)
	_ = common.HandleLogAppended(suffix)
	return suffix.Tail().Index
}
