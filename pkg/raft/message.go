package raft

// Header is carried by every message: who sent it, who it's for, the
// sender's term, and the request's SequenceNumber (echoed by replies so
// the leader can discard stale ones).
type Header struct {
	Sender      NodeId
	Destination NodeId
	Term        Term
	SeqNo       SequenceNumber
}

// RequestVoteCall asks the receiver to vote for the sender in an
// election.
type RequestVoteCall struct {
	Header         Header
	LastLogPosition LogPosition
}

// RequestVoteReply answers a RequestVoteCall.
type RequestVoteReply struct {
	Header Header
	Voted  bool
}

// AppendEntriesCall replicates (or, if Suffix is empty, heartbeats) a
// range of the leader's log to a follower.
type AppendEntriesCall struct {
	Header          Header
	Suffix          LogSuffix
	CommittedLogTail LogIndex
}

// AppendEntriesReply answers an AppendEntriesCall with the follower's
// resulting log tail, or Busy if the follower could not process the
// request because another append/snapshot install is in flight.
type AppendEntriesReply struct {
	Header  Header
	LogTail LogPosition
	Busy    bool
}

// InstallSnapshotCast pushes a snapshot to a follower whose log has
// fallen too far behind to catch up via AppendEntries alone.
type InstallSnapshotCast struct {
	Header Header
	Prefix LogPrefix
}

// MessageKind tags which variant a Message holds.
type MessageKind int

const (
	MsgRequestVoteCall MessageKind = iota
	MsgRequestVoteReply
	MsgAppendEntriesCall
	MsgAppendEntriesReply
	MsgInstallSnapshotCast
)

// Message is the tagged union of every wire message the core exchanges
// through an IOProvider. Exactly one of the typed fields is valid,
// selected by Kind.
type Message struct {
	Kind MessageKind

	RequestVoteCall      *RequestVoteCall
	RequestVoteReply     *RequestVoteReply
	AppendEntriesCall    *AppendEntriesCall
	AppendEntriesReply   *AppendEntriesReply
	InstallSnapshotCast  *InstallSnapshotCast
}

// Header returns the header embedded in whichever variant is set.
func (m Message) Header() Header {
	switch m.Kind {
	case MsgRequestVoteCall:
		return m.RequestVoteCall.Header
	case MsgRequestVoteReply:
		return m.RequestVoteReply.Header
	case MsgAppendEntriesCall:
		return m.AppendEntriesCall.Header
	case MsgAppendEntriesReply:
		return m.AppendEntriesReply.Header
	case MsgInstallSnapshotCast:
		return m.InstallSnapshotCast.Header
	default:
		return Header{}
	}
}

func NewRequestVoteCall(m RequestVoteCall) Message {
	return Message{Kind: MsgRequestVoteCall, RequestVoteCall: &m}
}

func NewRequestVoteReply(m RequestVoteReply) Message {
	return Message{Kind: MsgRequestVoteReply, RequestVoteReply: &m}
}

func NewAppendEntriesCall(m AppendEntriesCall) Message {
	return Message{Kind: MsgAppendEntriesCall, AppendEntriesCall: &m}
}

func NewAppendEntriesReply(m AppendEntriesReply) Message {
	return Message{Kind: MsgAppendEntriesReply, AppendEntriesReply: &m}
}

func NewInstallSnapshotCast(m InstallSnapshotCast) Message {
	return Message{Kind: MsgInstallSnapshotCast, InstallSnapshotCast: &m}
}
