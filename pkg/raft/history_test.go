package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogHistoryInitialState(t *testing.T) {
	a, b := NodeId("A"), NodeId("B")
	cfg := NewStableConfig(NewClusterMembers(a, b))
	h := NewLogHistory(cfg)

	assert.Equal(t, LogPosition{}, h.Head())
	assert.Equal(t, LogPosition{}, h.Tail())
	assert.Equal(t, LogPosition{}, h.CommittedTail())
	assert.Equal(t, LogPosition{}, h.ConsumedTail())
	assert.Equal(t, cfg, h.Config())
}

func TestRecordAppendedAdvancesTailAndCrossesTermBoundary(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A", "B", "C"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(0), noop(1)}}
	require.NoError(t, h.RecordAppended(suffix))
	assert.Equal(t, pos(1, 3), h.Tail())

	rec, ok := h.GetRecord(0)
	require.True(t, ok)
	assert.Equal(t, Term(0), rec.Head.PrevTerm)

	rec, ok = h.GetRecord(3)
	require.True(t, ok)
	assert.Equal(t, Term(1), rec.Head.PrevTerm)
}

func TestRecordAppendedRejectsNonIncreasingTerm(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(1)}}
	require.NoError(t, h.RecordAppended(suffix))

	regress := LogSuffix{Head: pos(1, 1), Entries: []LogEntry{noop(0)}}
	err := h.RecordAppended(regress)
	require.Error(t, err)
}

func TestRecordAppendedRejectsGap(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: pos(0, 5), Entries: []LogEntry{noop(0)}}
	err := h.RecordAppended(suffix)
	require.Error(t, err)
	assert.True(t, IsInconsistentState(err))
}

func TestRecordAppendedRepeatedConfigIsNoop(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A", "B"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{ConfigEntry(0, cfg)}}
	require.NoError(t, h.RecordAppended(suffix))
	recordCountAfterFirst := len(h.records)

	suffix2 := LogSuffix{Head: pos(0, 1), Entries: []LogEntry{ConfigEntry(0, cfg)}}
	require.NoError(t, h.RecordAppended(suffix2))
	assert.Equal(t, recordCountAfterFirst, len(h.records))
}

func TestRecordAppendedEmptySuffixStillOverwritesTail(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(0)}}
	require.NoError(t, h.RecordAppended(suffix))
	require.Equal(t, pos(0, 2), h.Tail())

	empty := LogSuffix{Head: pos(3, 2)}
	require.NoError(t, h.RecordAppended(empty))
	assert.Equal(t, pos(3, 2), h.Tail())
}

func TestCommitConsumeMonotonicity(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(0), noop(0), noop(0)}}
	require.NoError(t, h.RecordAppended(suffix))

	require.NoError(t, h.RecordCommitted(2))
	assert.Equal(t, LogIndex(2), h.CommittedTail().Index)

	err := h.RecordCommitted(1)
	require.Error(t, err)

	require.NoError(t, h.RecordCommitted(3))
	assert.Equal(t, LogIndex(3), h.CommittedTail().Index)

	err = h.RecordCommitted(5)
	require.Error(t, err)

	require.NoError(t, h.RecordConsumed(1))
	require.NoError(t, h.RecordConsumed(3))

	err = h.RecordConsumed(4)
	require.Error(t, err)

	err = h.RecordConsumed(2)
	require.Error(t, err)
}

func TestRecordRollbackTruncatesRecordsPastNewTail(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(1), noop(2)}}
	require.NoError(t, h.RecordAppended(suffix))
	require.NoError(t, h.RecordCommitted(1))

	require.NoError(t, h.RecordRollback(pos(1, 2)))
	assert.Equal(t, pos(1, 2), h.Tail())

	rec, ok := h.GetRecord(2)
	require.True(t, ok)
	assert.Equal(t, Term(1), rec.Head.PrevTerm)
}

func TestRecordRollbackRejectsTermMismatch(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(1)}}
	require.NoError(t, h.RecordAppended(suffix))

	err := h.RecordRollback(pos(5, 1))
	require.Error(t, err)
	assert.True(t, IsInconsistentState(err))
}

func TestRecordSnapshotInstalledDiscardsOldRecordsAndJumpsFrontiers(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(1), noop(2)}}
	require.NoError(t, h.RecordAppended(suffix))
	require.NoError(t, h.RecordCommitted(2))

	newCfg := NewStableConfig(NewClusterMembers("A", "B"))
	require.NoError(t, h.RecordSnapshotInstalled(pos(2, 2), newCfg))

	assert.Equal(t, pos(2, 2), h.Head())
	rec, ok := h.GetRecord(2)
	require.True(t, ok)
	assert.Equal(t, newCfg, rec.Config)
	assert.True(t, h.Tail().Index >= 2)
	assert.True(t, h.CommittedTail().Index >= 2)
}

func TestRecordSnapshotLoadedAdvancesConsumedTail(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(0), noop(0)}}
	require.NoError(t, h.RecordAppended(suffix))
	require.NoError(t, h.RecordCommitted(3))

	prefix := LogPrefix{Tail: pos(0, 2), Config: cfg}
	require.NoError(t, h.RecordSnapshotLoaded(prefix))
	assert.Equal(t, pos(0, 2), h.ConsumedTail())
}

func TestRecordSnapshotLoadedRejectsPastCommitted(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	suffix := LogSuffix{Head: LogPosition{}, Entries: []LogEntry{noop(0), noop(0)}}
	require.NoError(t, h.RecordAppended(suffix))
	require.NoError(t, h.RecordCommitted(1))

	prefix := LogPrefix{Tail: pos(0, 2), Config: cfg}
	err := h.RecordSnapshotLoaded(prefix)
	require.Error(t, err)
	assert.True(t, IsInconsistentState(err))
}

// TestFrontierInvariantUnderInterleaving exercises an arbitrary
// append/commit/consume interleaving and checks that
// consumedTail <= committedTail <= appendedTail holds after every step.
func TestFrontierInvariantUnderInterleaving(t *testing.T) {
	cfg := NewStableConfig(NewClusterMembers("A"))
	h := NewLogHistory(cfg)

	steps := []struct {
		kind string
		idx  LogIndex
	}{
		{"append", 3}, {"commit", 1}, {"consume", 1},
		{"append", 6}, {"commit", 4}, {"commit", 5},
		{"consume", 3}, {"consume", 4}, {"commit", 6}, {"consume", 6},
	}

	appended := LogIndex(0)
	for _, s := range steps {
		switch s.kind {
		case "append":
			var entries []LogEntry
			for i := appended; i < s.idx; i++ {
				entries = append(entries, noop(0))
			}
			require.NoError(t, h.RecordAppended(LogSuffix{Head: pos(0, uint64(appended)), Entries: entries}))
			appended = s.idx
		case "commit":
			require.NoError(t, h.RecordCommitted(s.idx))
		case "consume":
			require.NoError(t, h.RecordConsumed(s.idx))
		}
		assert.True(t, h.ConsumedTail().Index <= h.CommittedTail().Index)
		assert.True(t, h.CommittedTail().Index <= h.Tail().Index)
	}
}
