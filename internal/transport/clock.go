package transport

import (
	"math/rand"
	"time"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
)

// Clock answers CreateTimeout: a fixed interval for a Leader's heartbeats,
// a randomized interval (to reduce split-vote collisions) for a
// Follower/Candidate's election timeout. Durations are config, not a
// prescribed clock source — callers pick values appropriate to their
// network's round-trip time.
type Clock struct {
	heartbeat    time.Duration
	electionMin  time.Duration
	electionMax  time.Duration
	rng          *rand.Rand
	rngMu        chan struct{} // 1-buffered mutex; rand.Rand isn't goroutine-safe
}

// NewClock builds a Clock. electionMax must be >= electionMin.
func NewClock(heartbeat, electionMin, electionMax time.Duration) *Clock {
	c := &Clock{
		heartbeat:   heartbeat,
		electionMin: electionMin,
		electionMax: electionMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		rngMu:       make(chan struct{}, 1),
	}
	c.rngMu <- struct{}{}
	return c
}

// CreateTimeout implements pkgraft.IOProvider. A node only ever holds one
// outstanding timeout at a time and simply overwrites its reference when
// it asks for a new one (see internal/raft/node.go's Node.timeout field),
// so "cancels any prior timer" is satisfied by the caller dropping the old
// future, not by this Clock stopping the old goroutine.
func (c *Clock) CreateTimeout(role pkgraft.Role) pkgraft.TimeoutFuture {
	d := c.duration(role)
	return runFuture(func() (struct{}, error) {
		time.Sleep(d)
		return struct{}{}, nil
	})
}

func (c *Clock) duration(role pkgraft.Role) time.Duration {
	if role == pkgraft.RoleLeader {
		return c.heartbeat
	}

	span := int64(c.electionMax - c.electionMin)
	if span <= 0 {
		return c.electionMin
	}

	<-c.rngMu
	jitter := c.rng.Int63n(span)
	c.rngMu <- struct{}{}
	return c.electionMin + time.Duration(jitter)
}
