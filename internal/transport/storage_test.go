package transport

import (
	"path/filepath"
	"testing"
	"time"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliyu/ferrous-raft/internal/snapshot"
	"github.com/cliyu/ferrous-raft/internal/storage/wal"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()

	w, err := wal.NewWAL(filepath.Join(dir, "wal.log"), false, 1, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	snap := snapshot.NewManager(filepath.Join(dir, "snapshot.json"))

	s, err := NewStorage(w, snap)
	require.NoError(t, err)
	return s
}

func TestStorageBallotRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	loaded, err := awaitLoadBallotFuture(t, s.LoadBallot())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	f := s.SaveBallot(pkgraft.Ballot{Term: 4, VotedFor: "A"})
	_, _, err = awaitSaveFuture(t, f)
	require.NoError(t, err)

	loadF := s.LoadBallot()
	b, err := awaitLoadBallotFuture(t, loadF)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, pkgraft.Term(4), b.Term)
	assert.Equal(t, pkgraft.NodeId("A"), b.VotedFor)
}

func TestStorageLogSuffixAppendThenLoad(t *testing.T) {
	s := newTestStorage(t)

	suf := pkgraft.LogSuffix{
		Head: pkgraft.LogPosition{PrevTerm: 0, Index: 0},
		Entries: []pkgraft.LogEntry{
			pkgraft.NoopEntry(1),
			pkgraft.CommandEntry(1, []byte("x")),
		},
	}
	_, _, err := awaitSaveFuture(t, s.SaveLogSuffix(suf))
	require.NoError(t, err)

	end := pkgraft.LogIndex(2)
	log, err := awaitLoadLogFuture(t, s.LoadLog(0, &end))
	require.NoError(t, err)
	require.False(t, log.IsPrefix())
	assert.Equal(t, 2, len(log.Suffix.Entries))
}

func TestStorageSnapshotCompactsSuffix(t *testing.T) {
	s := newTestStorage(t)

	suf := pkgraft.LogSuffix{
		Head: pkgraft.LogPosition{Index: 0},
		Entries: []pkgraft.LogEntry{
			pkgraft.NoopEntry(1),
			pkgraft.CommandEntry(1, []byte("a")),
			pkgraft.CommandEntry(1, []byte("b")),
		},
	}
	_, _, err := awaitSaveFuture(t, s.SaveLogSuffix(suf))
	require.NoError(t, err)

	prefix := pkgraft.LogPrefix{
		Tail:     pkgraft.LogPosition{PrevTerm: 1, Index: 2},
		Config:   pkgraft.NewStableConfig(pkgraft.NewClusterMembers("A")),
		Snapshot: []byte("state"),
	}
	_, _, err = awaitSaveFuture(t, s.SaveLogPrefix(prefix))
	require.NoError(t, err)

	end := pkgraft.LogIndex(2)
	log, err := awaitLoadLogFuture(t, s.LoadLog(0, &end))
	require.NoError(t, err)
	assert.True(t, log.IsPrefix())
	assert.Equal(t, prefix.Tail, log.Prefix.Tail)
}

func TestStorageRecoversAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")
	snapPath := filepath.Join(dir, "snapshot.json")

	w, err := wal.NewWAL(walPath, false, 1, time.Millisecond)
	require.NoError(t, err)
	snap := snapshot.NewManager(snapPath)
	s, err := NewStorage(w, snap)
	require.NoError(t, err)

	_, _, err = awaitSaveFuture(t, s.SaveBallot(pkgraft.Ballot{Term: 9, VotedFor: "B"}))
	require.NoError(t, err)
	_, _, err = awaitSaveFuture(t, s.SaveLogSuffix(pkgraft.LogSuffix{
		Head:    pkgraft.LogPosition{Index: 0},
		Entries: []pkgraft.LogEntry{pkgraft.NoopEntry(9)},
	}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(walPath, false, 1, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w2.Close() })

	s2, err := NewStorage(w2, snap)
	require.NoError(t, err)

	b, err := awaitLoadBallotFuture(t, s2.LoadBallot())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, pkgraft.Term(9), b.Term)

	end := pkgraft.LogIndex(1)
	log, err := awaitLoadLogFuture(t, s2.LoadLog(0, &end))
	require.NoError(t, err)
	require.False(t, log.IsPrefix())
	assert.Equal(t, 1, len(log.Suffix.Entries))
}

func awaitSaveFuture(t *testing.T, f pkgraft.SaveFuture) (bool, struct{}, error) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		done, v, err := f.Poll()
		if done {
			return done, v, err
		}
		select {
		case <-deadline:
			t.Fatal("save future never completed")
		case <-time.After(time.Millisecond):
		}
	}
}

func awaitLoadBallotFuture(t *testing.T, f pkgraft.LoadBallotFuture) (*pkgraft.Ballot, error) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		done, v, err := f.Poll()
		if done {
			return v, err
		}
		select {
		case <-deadline:
			t.Fatal("load ballot future never completed")
		case <-time.After(time.Millisecond):
		}
	}
}

func awaitLoadLogFuture(t *testing.T, f pkgraft.LoadLogFuture) (pkgraft.Log, error) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		done, v, err := f.Poll()
		if done {
			return v, err
		}
		select {
		case <-deadline:
			t.Fatal("load log future never completed")
		case <-time.After(time.Millisecond):
		}
	}
}
