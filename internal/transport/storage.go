package transport

import (
	"fmt"
	"sync"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"

	"github.com/cliyu/ferrous-raft/internal/snapshot"
	"github.com/cliyu/ferrous-raft/internal/storage/wal"
)

// logStore tracks what's been persisted to answer LoadLog queries: a
// snapshot prefix plus the contiguous suffix appended since it. It reuses
// LogSuffix's own Merge/Truncate/SkipTo/Slice primitives rather than
// reimplementing them, the same way the in-memory history this feeds
// manages its own log.
type logStore struct {
	mu     sync.Mutex
	prefix pkgraft.LogPrefix
	suffix pkgraft.LogSuffix
}

func newLogStore(prefix pkgraft.LogPrefix) *logStore {
	return &logStore{prefix: prefix, suffix: pkgraft.LogSuffix{Head: prefix.Tail}}
}

func (ls *logStore) saveSuffix(s pkgraft.LogSuffix) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if s.Head.Index < ls.suffix.Head.Index {
		return nil // already compacted past this
	}
	if s.Head.Index > ls.suffix.Tail().Index {
		return fmt.Errorf("transport: log suffix gap: have tail %s, got head %s", ls.suffix.Tail(), s.Head)
	}
	if s.Head.Index < ls.suffix.Tail().Index {
		if err := ls.suffix.Truncate(s.Head.Index); err != nil {
			return err
		}
	}
	return ls.suffix.Merge(s)
}

func (ls *logStore) saveLogPrefix(p pkgraft.LogPrefix) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.prefix = p
	switch {
	case ls.suffix.Head.Index >= p.Tail.Index:
		// suffix already starts at or past the new compaction point
	case p.Tail.Index <= ls.suffix.Tail().Index:
		if err := ls.suffix.SkipTo(p.Tail.Index); err != nil {
			return err
		}
	default:
		ls.suffix = pkgraft.LogSuffix{Head: p.Tail}
	}
	return nil
}

func (ls *logStore) loadLog(start pkgraft.LogIndex, end *pkgraft.LogIndex) (pkgraft.Log, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.prefix.IsMatch(start, end) {
		return pkgraft.FromPrefix(ls.prefix), nil
	}

	sliceStart := start
	if sliceStart < ls.suffix.Head.Index {
		sliceStart = ls.suffix.Head.Index
	}
	sliceEnd := ls.suffix.Tail().Index
	if end != nil && *end < sliceEnd {
		sliceEnd = *end
	}

	sub, err := ls.suffix.Slice(sliceStart, sliceEnd)
	if err != nil {
		return pkgraft.Log{}, err
	}
	return pkgraft.FromSuffix(sub), nil
}

// Storage is the durable half of an IOProvider: it wires the write-ahead
// log and snapshot manager together to satisfy SaveBallot/LoadBallot/
// SaveLogPrefix/SaveLogSuffix/LoadLog. Both the loopback and gRPC
// IOProvider implementations embed one.
type Storage struct {
	wal  *wal.WAL
	snap *snapshot.Manager
	log  *logStore

	mu        sync.Mutex
	ballot    pkgraft.Ballot
	hasBallot bool
}

// NewStorage opens storage rooted at an already-constructed WAL and
// snapshot manager, replaying both to rebuild in-memory state: the last
// saved ballot, the last snapshot, and every log suffix appended since.
func NewStorage(w *wal.WAL, snap *snapshot.Manager) (*Storage, error) {
	prefix, err := snap.Load()
	if err != nil {
		return nil, fmt.Errorf("transport: load snapshot: %w", err)
	}

	s := &Storage{wal: w, snap: snap, log: newLogStore(prefix)}

	if b, err := w.LastBallot(); err != nil {
		return nil, fmt.Errorf("transport: replay ballot: %w", err)
	} else if b != nil {
		s.ballot, s.hasBallot = *b, true
	}

	if err := w.ReplayLogSuffixes(s.log.saveSuffix); err != nil {
		return nil, fmt.Errorf("transport: replay log suffixes: %w", err)
	}
	return s, nil
}

func (s *Storage) SaveBallot(b pkgraft.Ballot) pkgraft.SaveFuture {
	return runFuture(func() (struct{}, error) {
		if err := s.wal.AppendBallot(b); err != nil {
			return struct{}{}, err
		}
		s.mu.Lock()
		s.ballot, s.hasBallot = b, true
		s.mu.Unlock()
		return struct{}{}, nil
	})
}

func (s *Storage) LoadBallot() pkgraft.LoadBallotFuture {
	return runFuture(func() (*pkgraft.Ballot, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.hasBallot {
			return nil, nil
		}
		b := s.ballot
		return &b, nil
	})
}

func (s *Storage) SaveLogPrefix(p pkgraft.LogPrefix) pkgraft.SaveFuture {
	return runFuture(func() (struct{}, error) {
		if err := s.snap.Write(p); err != nil {
			return struct{}{}, err
		}
		if err := s.wal.AppendLogPrefix(p); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.log.saveLogPrefix(p)
	})
}

func (s *Storage) SaveLogSuffix(suf pkgraft.LogSuffix) pkgraft.SaveFuture {
	return runFuture(func() (struct{}, error) {
		if err := s.wal.AppendLogSuffix(suf); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.log.saveSuffix(suf)
	})
}

func (s *Storage) LoadLog(start pkgraft.LogIndex, end *pkgraft.LogIndex) pkgraft.LoadLogFuture {
	return runFuture(func() (pkgraft.Log, error) {
		return s.log.loadLog(start, end)
	})
}
