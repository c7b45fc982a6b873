package raft

import pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"

// logSyncTasks tracks at most one in-flight catch-up LoadLog per
// follower. It replaces the teacher's goroutine-backed worker_pool.Pool
// (task/result channels, a WaitGroup of worker goroutines) with a plain
// polled map, because FollowersManager's background work is a handful
// of pending Futures polled once per driver-loop tick, not a
// thread-dispatched job queue — the single-threaded cooperative model of
// this package's driver loop (internal/raft/node.go) rules out spawning
// goroutines to do the polling. The "one map entry per key, started and
// drained by RunOnce" shape is adapted from
// FollowersManager.tasks (a BTreeMap<NodeId, IO::LoadLog>) in
// original_source/src/node_state/leader/follower.rs.
type logSyncTasks struct {
	pending map[pkgraft.NodeId]pkgraft.LoadLogFuture
}

func newLogSyncTasks() *logSyncTasks {
	return &logSyncTasks{pending: make(map[pkgraft.NodeId]pkgraft.LoadLogFuture)}
}

func (t *logSyncTasks) inFlight(follower pkgraft.NodeId) bool {
	_, ok := t.pending[follower]
	return ok
}

func (t *logSyncTasks) start(follower pkgraft.NodeId, future pkgraft.LoadLogFuture) {
	t.pending[follower] = future
}

type logSyncResult struct {
	follower pkgraft.NodeId
	log      pkgraft.Log
}

// poll advances every pending future, returning the ones that completed
// this round (and forgetting them, so LogSync can start a fresh one on
// the next reply).
func (t *logSyncTasks) poll() ([]logSyncResult, error) {
	var done []logSyncResult
	for follower, future := range t.pending {
		ready, log, err := future.Poll()
		if err != nil {
			return nil, err
		}
		if ready {
			done = append(done, logSyncResult{follower: follower, log: log})
		}
	}
	for _, d := range done {
		delete(t.pending, d.follower)
	}
	return done, nil
}
