package raft

// EntryKind tags the variant a LogEntry carries.
type EntryKind int

const (
	// EntryNoop marks a term boundary; the log is divided by Noop
	// entries into per-term sections.
	EntryNoop EntryKind = iota
	// EntryConfig shares a cluster configuration change.
	EntryConfig
	// EntryCommand carries an opaque state-machine input.
	EntryCommand
)

func (k EntryKind) String() string {
	switch k {
	case EntryNoop:
		return "Noop"
	case EntryConfig:
		return "Config"
	case EntryCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

// LogEntry is the tagged variant {Noop{term}, Config{term, ClusterConfig},
// Command{term, bytes}} of spec.md §3. Every entry carries the term in
// which a leader appended it.
type LogEntry struct {
	Kind    EntryKind
	Term    Term
	Config  ClusterConfig // valid iff Kind == EntryConfig
	Command []byte        // valid iff Kind == EntryCommand
}

// NoopEntry builds a term-boundary marker entry.
func NoopEntry(term Term) LogEntry { return LogEntry{Kind: EntryNoop, Term: term} }

// ConfigEntry builds a cluster-reconfiguration entry.
func ConfigEntry(term Term, cfg ClusterConfig) LogEntry {
	return LogEntry{Kind: EntryConfig, Term: term, Config: cfg}
}

// CommandEntry builds an application-command entry.
func CommandEntry(term Term, command []byte) LogEntry {
	return LogEntry{Kind: EntryCommand, Term: term, Command: command}
}

// LogPositions iterates the boundary positions of a LogSuffix: its head,
// then the position immediately after each entry.
type LogPositions struct {
	suffix *LogSuffix
	offset int
}

// Next returns the next position and true, or a zero value and false once
// exhausted.
func (it *LogPositions) Next() (LogPosition, bool) {
	if it.offset > len(it.suffix.Entries) {
		return LogPosition{}, false
	}
	var pos LogPosition
	if it.offset == 0 {
		pos = it.suffix.Head
	} else {
		i := it.offset - 1
		pos = LogPosition{
			PrevTerm: it.suffix.Entries[i].Term,
			Index:    it.suffix.Head.Index.Add(it.offset),
		}
	}
	it.offset++
	return pos, true
}

// All drains the iterator into a slice; convenient in tests.
func (it *LogPositions) All() []LogPosition {
	var out []LogPosition
	for {
		pos, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, pos)
	}
}

// LogSuffix is a contiguous range of entries [head.Index, head.Index +
// len(entries)), tagged with the position immediately before the first
// entry.
type LogSuffix struct {
	Head    LogPosition
	Entries []LogEntry
}

// Tail returns the position immediately after the last entry: (last
// entry's term, head.Index+len) if non-empty, else head unchanged.
func (s LogSuffix) Tail() LogPosition {
	if len(s.Entries) == 0 {
		return s.Head
	}
	last := s.Entries[len(s.Entries)-1]
	return LogPosition{PrevTerm: last.Term, Index: s.Head.Index.Add(len(s.Entries))}
}

// Positions returns an iterator over the suffix's boundary positions,
// starting at Head.
func (s *LogSuffix) Positions() *LogPositions {
	return &LogPositions{suffix: s}
}

// SkipTo drops every entry before newHead and sets Head to newHead,
// inferring the new PrevTerm from the last dropped entry's term. A no-op
// if newHead already equals Head.Index. Fails with InvalidInput if newHead
// is outside [Head.Index, Tail().Index].
func (s *LogSuffix) SkipTo(newHead LogIndex) error {
	if s.Head.Index > newHead {
		return newError(InvalidInput, "skip_to: newHead before head", nil)
	}
	if newHead > s.Tail().Index {
		return newError(InvalidInput, "skip_to: newHead past tail", nil)
	}
	count := newHead.Sub(s.Head.Index)
	if count == 0 {
		return nil
	}
	prevTerm := s.Entries[count-1].Term
	s.Entries = s.Entries[count:]
	s.Head = LogPosition{PrevTerm: prevTerm, Index: newHead}
	return nil
}

// Truncate drops every entry at or after newTail, preserving Head. Fails
// with InvalidInput if newTail is outside [Head.Index, Tail().Index].
func (s *LogSuffix) Truncate(newTail LogIndex) error {
	if s.Head.Index > newTail {
		return newError(InvalidInput, "truncate: newTail before head", nil)
	}
	if newTail > s.Tail().Index {
		return newError(InvalidInput, "truncate: newTail past tail", nil)
	}
	delta := s.Tail().Index.Sub(newTail)
	s.Entries = s.Entries[:len(s.Entries)-delta]
	return nil
}

// Slice returns the subrange [start, end) as a new LogSuffix. Fails with
// InvalidInput if the range is not fully contained in s.
func (s LogSuffix) Slice(start, end LogIndex) (LogSuffix, error) {
	if s.Head.Index > start {
		return LogSuffix{}, newError(InvalidInput, "slice: start before head", nil)
	}
	if start > end {
		return LogSuffix{}, newError(InvalidInput, "slice: start after end", nil)
	}
	if end > s.Tail().Index {
		return LogSuffix{}, newError(InvalidInput, "slice: end past tail", nil)
	}
	sliceStart := start.Sub(s.Head.Index)
	sliceEnd := end.Sub(s.Head.Index)
	var head LogPosition
	if start == s.Head.Index {
		head = s.Head
	} else {
		head = LogPosition{PrevTerm: s.Entries[sliceStart-1].Term, Index: start}
	}
	entries := append([]LogEntry(nil), s.Entries[sliceStart:sliceEnd]...)
	return LogSuffix{Head: head, Entries: entries}, nil
}

// Merge appends next onto s in place. next must begin at or before s's
// tail (overlapping or directly adjacent); the overlapping region must
// agree on term, checked via the position just before the overlap.
func (s *LogSuffix) Merge(next LogSuffix) error {
	if next.Head.Index > s.Tail().Index {
		return newError(InvalidInput, "merge: next starts after tail", nil)
	}

	var entriesOffset int
	if s.Head.Index > next.Head.Index {
		entriesOffset = s.Head.Index.Sub(next.Head.Index)
	}

	offset := (next.Head.Index.Add(entriesOffset)).Sub(s.Head.Index)
	var prevTerm Term
	if offset == 0 {
		prevTerm = s.Head.PrevTerm
	} else {
		prevTerm = s.Entries[offset-1].Term
	}

	nextPositions := next.Positions().All()
	if entriesOffset >= len(nextPositions) || nextPositions[entriesOffset].PrevTerm != prevTerm {
		return newError(InvalidInput, "merge: overlap disagrees on term", nil)
	}

	s.Entries = s.Entries[:offset]
	s.Entries = append(s.Entries, next.Entries[entriesOffset:]...)
	return nil
}

// LogPrefix is a persisted compaction (snapshot) of every entry strictly
// before Tail, with the final cluster configuration known at that point
// and an opaque application-state snapshot.
type LogPrefix struct {
	Tail     LogPosition
	Config   ClusterConfig
	Snapshot []byte
}

// IsMatch reports whether this prefix covers the requested load range
// [start, end): start must be 0 and, if end is given, end must not exceed
// the prefix's tail. start == end is explicitly allowed (an empty range
// trivially satisfied by any prefix starting at 0).
func (p LogPrefix) IsMatch(start LogIndex, end *LogIndex) bool {
	if start != 0 {
		return false
	}
	return end == nil || *end <= p.Tail.Index
}

// Log is either a Prefix (snapshot) or a Suffix — what an IOProvider.LoadLog
// call returns.
type Log struct {
	Prefix *LogPrefix
	Suffix *LogSuffix
}

// FromPrefix wraps a LogPrefix as a Log.
func FromPrefix(p LogPrefix) Log { return Log{Prefix: &p} }

// FromSuffix wraps a LogSuffix as a Log.
func FromSuffix(s LogSuffix) Log { return Log{Suffix: &s} }

// IsPrefix reports whether this Log holds a snapshot.
func (l Log) IsPrefix() bool { return l.Prefix != nil }
