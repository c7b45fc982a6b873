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

func newLoopbackNode(t *testing.T, hub *Hub, id pkgraft.NodeId) *LoopbackIO {
	t.Helper()
	dir := t.TempDir()

	w, err := wal.NewWAL(filepath.Join(dir, "wal.log"), false, 1, time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	storage, err := NewStorage(w, snapshot.NewManager(filepath.Join(dir, "snapshot.json")))
	require.NoError(t, err)

	clock := NewClock(10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	return NewLoopbackIO(id, hub, storage, clock)
}

func TestLoopbackDeliversToDestination(t *testing.T) {
	hub := NewHub()
	a := newLoopbackNode(t, hub, "A")
	b := newLoopbackNode(t, hub, "B")

	a.SendMessage(pkgraft.NewRequestVoteCall(pkgraft.RequestVoteCall{
		Header: pkgraft.Header{Sender: "A", Destination: "B", Term: 1},
	}))

	msg, ok := b.TryRecvMessage()
	require.True(t, ok)
	assert.Equal(t, pkgraft.NodeId("A"), msg.Header().Sender)

	_, ok = a.TryRecvMessage()
	assert.False(t, ok, "a sent nothing to itself")
}

func TestLoopbackPreservesOrderPerDestination(t *testing.T) {
	hub := NewHub()
	a := newLoopbackNode(t, hub, "A")
	b := newLoopbackNode(t, hub, "B")

	for i := pkgraft.SequenceNumber(1); i <= 3; i++ {
		a.SendMessage(pkgraft.NewRequestVoteCall(pkgraft.RequestVoteCall{
			Header: pkgraft.Header{Sender: "A", Destination: "B", SeqNo: i},
		}))
	}

	for i := pkgraft.SequenceNumber(1); i <= 3; i++ {
		msg, ok := b.TryRecvMessage()
		require.True(t, ok)
		assert.Equal(t, i, msg.Header().SeqNo)
	}
}

func TestLoopbackTryRecvEmptyIsFalse(t *testing.T) {
	hub := NewHub()
	a := newLoopbackNode(t, hub, "A")
	_, ok := a.TryRecvMessage()
	assert.False(t, ok)
}
