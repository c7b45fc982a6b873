package transport

import (
	"testing"
	"time"

	pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"
	"github.com/stretchr/testify/assert"
)

func TestClockHeartbeatIsFixed(t *testing.T) {
	c := NewClock(10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 10*time.Millisecond, c.duration(pkgraft.RoleLeader))
	}
}

func TestClockElectionTimeoutIsJittered(t *testing.T) {
	c := NewClock(10*time.Millisecond, 50*time.Millisecond, 100*time.Millisecond)
	for i := 0; i < 20; i++ {
		d := c.duration(pkgraft.RoleFollower)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 100*time.Millisecond)
	}
}

func TestClockDegenerateRangeReturnsMin(t *testing.T) {
	c := NewClock(10*time.Millisecond, 50*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, c.duration(pkgraft.RoleCandidate))
}

func TestCreateTimeoutResolvesAfterDuration(t *testing.T) {
	c := NewClock(5*time.Millisecond, 5*time.Millisecond, 5*time.Millisecond)
	f := c.CreateTimeout(pkgraft.RoleLeader)

	done, _, _ := f.Poll()
	assert.False(t, done)

	deadline := time.After(time.Second)
	for {
		done, _, err := f.Poll()
		if done {
			assert.NoError(t, err)
			return
		}
		select {
		case <-deadline:
			t.Fatal("timeout future never resolved")
		case <-time.After(time.Millisecond):
		}
	}
}
