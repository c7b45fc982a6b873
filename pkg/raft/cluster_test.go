package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajority(t *testing.T) {
	cases := map[int]int{
		1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4, 8: 5, 9: 5,
	}
	for n, want := range cases {
		assert.Equal(t, want, Majority(n), "majority(%d)", n)
	}
}

// naiveAgreedValue brute-forces the same definition MaxOfAgreedValue
// implements: the maximum x such that at least majority(len(v)) values in
// v are >= x. Mirrors original_source/src/cluster.rs's
// naively_compute_agreed_values test helper.
func naiveAgreedValue(v []uint64) uint64 {
	majority := Majority(len(v))
	var best uint64
	found := false
	for _, candidate := range v {
		count := 0
		for _, x := range v {
			if candidate <= x {
				count++
			}
		}
		if count >= majority && (!found || candidate > best) {
			best = candidate
			found = true
		}
	}
	return best
}

func combinationsWithReplacement(n, k int) [][]uint64 {
	var out [][]uint64
	var rec func(start int, cur []uint64)
	rec = func(start int, cur []uint64) {
		if len(cur) == k {
			out = append(out, append([]uint64(nil), cur...))
			return
		}
		for v := start; v < n; v++ {
			rec(v, append(cur, uint64(v)))
		}
	}
	rec(0, nil)
	return out
}

func TestMaxOfAgreedValueMatchesBruteForce(t *testing.T) {
	for i := 1; i <= 10; i++ {
		for _, v := range combinationsWithReplacement(i, i) {
			got := MaxOfAgreedValue(v)
			want := naiveAgreedValue(v)
			assert.Equal(t, want, got, "values=%v", v)
		}
	}
}

func TestConsensusValueStableAndJoint(t *testing.T) {
	a, b, c := NodeId("A"), NodeId("B"), NodeId("C")
	stable := NewStableConfig(NewClusterMembers(a, b, c))

	allFive := map[NodeId]uint64{a: 5, b: 5, c: 5}
	assert.Equal(t, uint64(5), ConsensusValue(stable, func(n NodeId) uint64 { return allFive[n] }))

	mixed := map[NodeId]uint64{a: 5, b: 5, c: 0}
	assert.Equal(t, uint64(5), ConsensusValue(stable, func(n NodeId) uint64 { return mixed[n] }))

	onlyOne := map[NodeId]uint64{a: 5, b: 0, c: 0}
	assert.Equal(t, uint64(0), ConsensusValue(stable, func(n NodeId) uint64 { return onlyOne[n] }))
}

func TestConsensusValueJointRequiresBothMajorities(t *testing.T) {
	a, b, c, d, e := NodeId("A"), NodeId("B"), NodeId("C"), NodeId("D"), NodeId("E")
	cfg := ClusterConfig{
		New:   NewClusterMembers(a, b, c),
		Old:   NewClusterMembers(a, d, e),
		State: Joint,
	}

	tails := map[NodeId]uint64{a: 10, b: 10, c: 10, d: 5, e: 5}
	f := func(n NodeId) uint64 { return tails[n] }
	assert.Equal(t, uint64(5), ConsensusValue(cfg, f))

	tails[d] = 10
	assert.Equal(t, uint64(10), ConsensusValue(cfg, f))
}

func TestClusterConfigTransitions(t *testing.T) {
	a, b, c, d := NodeId("A"), NodeId("B"), NodeId("C"), NodeId("D")
	stable := NewStableConfig(NewClusterMembers(a, b, c))

	catchUp := stable.StartConfigChange(NewClusterMembers(a, b, d))
	assert.Equal(t, CatchUp, catchUp.State)
	assert.True(t, catchUp.Old.Contains(a) && catchUp.Old.Contains(b) && catchUp.Old.Contains(c))
	assert.True(t, catchUp.New.Contains(d))

	joint := catchUp.ToNextState()
	assert.Equal(t, Joint, joint.State)
	assert.Equal(t, catchUp.New, joint.New)
	assert.Equal(t, catchUp.Old, joint.Old)

	backToStable := joint.ToNextState()
	assert.Equal(t, Stable, backToStable.State)
	assert.Empty(t, backToStable.Old)

	identity := backToStable.ToNextState()
	assert.Equal(t, backToStable, identity)
}

func TestClusterConfigQueries(t *testing.T) {
	a, b, c, d := NodeId("A"), NodeId("B"), NodeId("C"), NodeId("D")
	cfg := ClusterConfig{New: NewClusterMembers(a, b), Old: NewClusterMembers(c, d), State: CatchUp}

	assert.True(t, cfg.IsKnownNode(a))
	assert.True(t, cfg.IsKnownNode(d))
	assert.False(t, cfg.IsKnownNode("Z"))
	assert.Equal(t, cfg.Old, cfg.PrimaryMembers())

	members := cfg.Members()
	for _, n := range []NodeId{a, b, c, d} {
		assert.True(t, members.Contains(n))
	}
}
