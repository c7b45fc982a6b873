package raft

import (
	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// readyFuture is a Future that's already complete, for tests driving the
// role state machine synchronously without a real IOProvider. Grounded
// on the teacher's and original_source's pattern of a minimal mock IO
// (MockIo in original_source/src/main.rs) built for exercising the node
// state machine in isolation.
type readyFuture[T any] struct {
	value T
	err   error
}

func (f readyFuture[T]) Poll() (bool, T, error) { return true, f.value, f.err }

type pendingFuture[T any] struct{}

func (f pendingFuture[T]) Poll() (bool, T, error) {
	var zero T
	return false, zero, nil
}

// fakeIO is a synchronous, single-node-view IOProvider: every save
// completes instantly, sent messages land in a slice the test can
// inspect, and LoadLog/LoadBallot/timeouts are whatever the test wires
// up beforehand.
type fakeIO struct {
	sent     []pkgraft.Message
	loadLog  func(start pkgraft.LogIndex, end *pkgraft.LogIndex) pkgraft.LoadLogFuture
	inbox    []pkgraft.Message
}

func newFakeIO() *fakeIO { return &fakeIO{} }

func (f *fakeIO) TryRecvMessage() (pkgraft.Message, bool) {
	if len(f.inbox) == 0 {
		return pkgraft.Message{}, false
	}
	m := f.inbox[0]
	f.inbox = f.inbox[1:]
	return m, true
}

func (f *fakeIO) SendMessage(msg pkgraft.Message) { f.sent = append(f.sent, msg) }

func (f *fakeIO) SaveBallot(b pkgraft.Ballot) pkgraft.SaveFuture {
	return readyFuture[struct{}]{}
}

func (f *fakeIO) LoadBallot() pkgraft.LoadBallotFuture {
	return readyFuture[*pkgraft.Ballot]{}
}

func (f *fakeIO) SaveLogPrefix(p pkgraft.LogPrefix) pkgraft.SaveFuture {
	return readyFuture[struct{}]{}
}

func (f *fakeIO) SaveLogSuffix(s pkgraft.LogSuffix) pkgraft.SaveFuture {
	return readyFuture[struct{}]{}
}

func (f *fakeIO) LoadLog(start pkgraft.LogIndex, end *pkgraft.LogIndex) pkgraft.LoadLogFuture {
	if f.loadLog != nil {
		return f.loadLog(start, end)
	}
	return readyFuture[pkgraft.Log]{value: pkgraft.FromSuffix(pkgraft.LogSuffix{Head: pkgraft.LogPosition{Index: start}})}
}

func (f *fakeIO) CreateTimeout(role pkgraft.Role) pkgraft.TimeoutFuture {
	return pendingFuture[struct{}]{}
}
