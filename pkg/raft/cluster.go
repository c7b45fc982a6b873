package raft

import "sort"

// ClusterMembers is a set of NodeId. Ranging over the map directly is
// unordered; Sorted() gives the deterministic ascending order of the Rust
// BTreeSet this is ported from — the consensus arithmetic depends on
// nothing here beyond set membership, but deterministic iteration keeps
// tests and logs reproducible.
type ClusterMembers map[NodeId]struct{}

// NewClusterMembers builds a ClusterMembers set from a list of ids.
func NewClusterMembers(ids ...NodeId) ClusterMembers {
	m := make(ClusterMembers, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// Contains reports whether n is a member of m.
func (m ClusterMembers) Contains(n NodeId) bool {
	_, ok := m[n]
	return ok
}

// Sorted returns the member ids in ascending order.
func (m ClusterMembers) Sorted() []NodeId {
	out := make([]NodeId, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns a new set containing every member of m and other.
func (m ClusterMembers) Union(other ClusterMembers) ClusterMembers {
	out := make(ClusterMembers, len(m)+len(other))
	for id := range m {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

func (m ClusterMembers) clone() ClusterMembers {
	out := make(ClusterMembers, len(m))
	for id := range m {
		out[id] = struct{}{}
	}
	return out
}

// ClusterState is the reconfiguration phase a ClusterConfig is in.
type ClusterState int

const (
	// Stable: not reconfiguring. old is empty; the member set is new.
	Stable ClusterState = iota
	// CatchUp: the first stage of reconfiguration. old still holds
	// sole voting rights while new receives log to catch up.
	CatchUp
	// Joint: the second stage. Both new and old independently require
	// majority quorum.
	Joint
)

func (s ClusterState) String() string {
	switch s {
	case Stable:
		return "Stable"
	case CatchUp:
		return "CatchUp"
	case Joint:
		return "Joint"
	default:
		return "Unknown"
	}
}

func (s ClusterState) IsStable() bool { return s == Stable }
func (s ClusterState) IsJoint() bool  { return s == Joint }

// ClusterConfig is the membership set and reconfiguration phase of a
// raft cluster, per spec.md §3/§4.1.
type ClusterConfig struct {
	New   ClusterMembers
	Old   ClusterMembers
	State ClusterState
}

// NewStableConfig builds a Stable ClusterConfig over members.
func NewStableConfig(members ClusterMembers) ClusterConfig {
	return ClusterConfig{New: members, Old: ClusterMembers{}, State: Stable}
}

// Members returns new ∪ old.
func (c ClusterConfig) Members() ClusterMembers {
	return c.New.Union(c.Old)
}

// PrimaryMembers returns the set whose majority currently governs: new in
// Stable, old in CatchUp and Joint.
func (c ClusterConfig) PrimaryMembers() ClusterMembers {
	if c.State == Stable {
		return c.New
	}
	return c.Old
}

// IsKnownNode reports whether n belongs to either the new or old member
// set.
func (c ClusterConfig) IsKnownNode(n NodeId) bool {
	return c.New.Contains(n) || c.Old.Contains(n)
}

// StartConfigChange returns a new CatchUp-phase config moving the cluster
// towards newMembers, with old pinned to the current primary members.
func (c ClusterConfig) StartConfigChange(newMembers ClusterMembers) ClusterConfig {
	return ClusterConfig{
		New:   newMembers,
		Old:   c.PrimaryMembers().clone(),
		State: CatchUp,
	}
}

// ToNextState advances the reconfiguration state machine:
// CatchUp -> Joint -> Stable -> Stable (identity).
func (c ClusterConfig) ToNextState() ClusterConfig {
	switch c.State {
	case Stable:
		return c
	case CatchUp:
		next := c
		next.State = Joint
		return next
	case Joint:
		return ClusterConfig{New: c.New, Old: ClusterMembers{}, State: Stable}
	default:
		return c
	}
}

// Agreed is any value an individual member can support, with the property
// that supporting x implies supporting every y < x (e.g. a replicated log
// index, or a sequence number). uint64 is the only type consensus_value is
// exercised with in this package, but the arithmetic is expressed
// generically over any type whose underlying type is uint64 (LogIndex,
// SequenceNumber) to document the
// requirement from spec.md §4.1 ("type must be Ord and Copy with a
// meaningful default (0)").
type Agreed interface {
	~uint64
}

// Majority returns 1 + n/2 (integer division) — the smallest strict
// majority of n voters. n >= 1 is a precondition; callers never consult
// an empty member set.
func Majority(n int) int {
	return 1 + n/2
}

// MaxOfAgreedValue returns the greatest value supported by a strict
// majority of the given per-member values: sort ascending and take the
// element at position len-majority(len).
func MaxOfAgreedValue[T Agreed](values []T) T {
	sorted := append([]T(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	majority := Majority(len(sorted))
	return sorted[len(sorted)-majority]
}

func median[T Agreed](members ClusterMembers, f func(NodeId) T) T {
	values := make([]T, 0, len(members))
	for _, id := range members.Sorted() {
		values = append(values, f(id))
	}
	return MaxOfAgreedValue(values)
}

// ConsensusValue computes the cluster's agreed value for f: the median
// (max-of-agreed-value) over new in Stable, over old in CatchUp (new has
// no vote yet), or min(median(new), median(old)) in Joint — the min
// prevents the new side from unilaterally committing while the old side
// remains the authoritative majority, keeping a Joint-phase rollback
// possible.
func ConsensusValue[T Agreed](c ClusterConfig, f func(NodeId) T) T {
	switch c.State {
	case Stable:
		return median(c.New, f)
	case CatchUp:
		return median(c.Old, f)
	case Joint:
		a, b := median(c.New, f), median(c.Old, f)
		if a < b {
			return a
		}
		return b
	default:
		var zero T
		return zero
	}
}

// FullConsensusValue is ConsensusValue except CatchUp also requires a
// double majority (min of both sides), for callers that need to know a
// configuration-change entry itself is safely committed even while still
// in CatchUp.
func FullConsensusValue[T Agreed](c ClusterConfig, f func(NodeId) T) T {
	if c.State.IsStable() {
		return median(c.New, f)
	}
	a, b := median(c.New, f), median(c.Old, f)
	if a < b {
		return a
	}
	return b
}
