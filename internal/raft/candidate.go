package raft

import pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"

// CandidateRole is the transient role between Follower and Leader: it
// requests votes for a new term and becomes Leader once a majority of
// the current cluster configuration's primary members agree. This
// package's scope is the follower replication protocol and the leader's
// FollowersManager (spec.md's explicit Non-goals exclude election
// mechanics beyond what invariants require), so this is intentionally
// the minimal implementation that lets Node's driver loop state machine
// round-trip through Candidate without the election subtleties
// (pre-vote, randomized backoff tuning, disruptive-candidate
// suppression) the teacher's Raft.startElection/replicateToPeer pair
// also left out.
type CandidateRole struct {
	votesFor map[pkgraft.NodeId]bool
}

// NewCandidateRole starts a new election: bumps the term, votes for
// itself, and persists the resulting ballot.
func NewCandidateRole(common *Common) (*CandidateRole, error) {
	newTerm := common.CurrentTerm() + 1
	ballot := pkgraft.Ballot{Term: newTerm, VotedFor: common.LocalNode()}
	common.SetBallot(ballot)
	common.SaveBallot(ballot)

	c := &CandidateRole{votesFor: map[pkgraft.NodeId]bool{common.LocalNode(): true}}

	caller := common.RpcCaller()
	for _, id := range common.Log().Config().PrimaryMembers().Sorted() {
		if id == common.LocalNode() {
			continue
		}
		caller.SendRequestVote(id, common.Log().Tail())
	}
	return c, nil
}

// HandleMessage counts a RequestVoteReply towards the current election,
// transitioning to Leader once PrimaryMembers grants this candidate a
// majority.
func (c *CandidateRole) HandleMessage(common *Common, msg pkgraft.Message) (*RoleState, error) {
	switch msg.Kind {
	case pkgraft.MsgRequestVoteReply:
		reply := *msg.RequestVoteReply
		if reply.Voted {
			c.votesFor[reply.Header.Sender] = true
		}
		members := common.Log().Config().PrimaryMembers()
		votes := 0
		for _, id := range members.Sorted() {
			if c.votesFor[id] {
				votes++
			}
		}
		if votes >= pkgraft.Majority(len(members)) {
			return &RoleState{Kind: RoleKindLeader, Leader: NewLeaderRole(common)}, nil
		}
		return nil, nil
	case pkgraft.MsgRequestVoteCall:
		// Already a candidate this term; refuse without stepping down.
		common.RpcCallee(msg.RequestVoteCall.Header).ReplyRequestVote(false)
		return nil, nil
	default:
		return nil, nil
	}
}

// RunOnce has no background work of its own; vote-counting happens
// entirely in HandleMessage.
func (c *CandidateRole) RunOnce(common *Common) (*RoleState, error) {
	return nil, nil
}
