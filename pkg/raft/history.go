package raft

// HistoryRecord marks that, starting at Head.Index, the prevailing
// configuration and/or term changed.
type HistoryRecord struct {
	Head   LogPosition
	Config ClusterConfig
}

// LogHistory is the frontier/epoch bookkeeping over a node's local log:
// the committed/consumed/appended frontiers and the ordered sequence of
// HistoryRecords that lets a lookup by LogIndex recover the term and
// configuration in force at that point. See spec.md §3/§4.2 for the full
// invariants; every mutator here either preserves them or returns an
// error.
type LogHistory struct {
	appendedTail  LogPosition
	committedTail LogPosition
	consumedTail  LogPosition
	records       []HistoryRecord
}

// NewLogHistory creates a LogHistory at the zero frontier with the given
// initial cluster configuration.
func NewLogHistory(config ClusterConfig) *LogHistory {
	return &LogHistory{
		records: []HistoryRecord{{Head: LogPosition{}, Config: config}},
	}
}

// Head returns the current log-head position (the earliest record's
// Head).
func (h *LogHistory) Head() LogPosition { return h.records[0].Head }

// Tail returns the appended-tail position.
func (h *LogHistory) Tail() LogPosition { return h.appendedTail }

// CommittedTail returns the committed-tail position.
func (h *LogHistory) CommittedTail() LogPosition { return h.committedTail }

// ConsumedTail returns the consumed-tail position.
func (h *LogHistory) ConsumedTail() LogPosition { return h.consumedTail }

// Config returns the cluster configuration recorded by the latest
// HistoryRecord.
func (h *LogHistory) Config() ClusterConfig { return h.lastRecord().Config }

func (h *LogHistory) lastRecord() *HistoryRecord { return &h.records[len(h.records)-1] }

// GetRecord returns the record governing index: the last record whose
// Head.Index <= index, scanning newest to oldest. Returns ok=false iff
// index is before Head().Index (already discarded history).
func (h *LogHistory) GetRecord(index LogIndex) (HistoryRecord, bool) {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Head.Index <= index {
			return h.records[i], true
		}
	}
	return HistoryRecord{}, false
}

// RecordAppended records that suffix has been durably persisted, updating
// appendedTail and pushing new HistoryRecords for any term or
// configuration boundary the suffix crosses.
func (h *LogHistory) RecordAppended(suffix LogSuffix) error {
	var entriesOffset int
	switch {
	case h.appendedTail.Index == suffix.Head.Index:
		entriesOffset = 0
	case h.appendedTail.Index > suffix.Head.Index:
		entriesOffset = h.appendedTail.Index.Sub(suffix.Head.Index)
	default:
		return newError(InconsistentState, "record_appended: gap before suffix head", nil)
	}

	for i := entriesOffset; i < len(suffix.Entries); i++ {
		e := suffix.Entries[i]
		tail := LogPosition{PrevTerm: e.Term, Index: suffix.Head.Index.Add(i + 1)}

		if e.Kind == EntryConfig {
			if !clusterConfigEqual(h.lastRecord().Config, e.Config) {
				h.records = append(h.records, HistoryRecord{Head: tail, Config: e.Config})
			}
		}

		if tail.PrevTerm != h.lastRecord().Head.PrevTerm {
			if !(h.lastRecord().Head.PrevTerm < tail.PrevTerm) {
				return newError(Other, "record_appended: term did not strictly increase", nil)
			}
			h.records = append(h.records, HistoryRecord{Head: tail, Config: h.lastRecord().Config})
		}
	}

	h.appendedTail = suffix.Tail()
	return nil
}

// RecordCommitted advances committedTail to newTailIndex, which must lie
// in [committedTail.Index, appendedTail.Index].
func (h *LogHistory) RecordCommitted(newTailIndex LogIndex) error {
	if !(h.committedTail.Index <= newTailIndex) {
		return newError(Other, "record_committed: index went backwards", nil)
	}
	if !(newTailIndex <= h.appendedTail.Index) {
		return newError(Other, "record_committed: index past appended tail", nil)
	}
	record, ok := h.GetRecord(newTailIndex)
	if !ok {
		return newError(Other, "record_committed: no record for index", nil)
	}
	h.committedTail = LogPosition{PrevTerm: record.Head.PrevTerm, Index: newTailIndex}
	return nil
}

// RecordConsumed advances consumedTail to newTailIndex, which must lie in
// [consumedTail.Index, committedTail.Index].
func (h *LogHistory) RecordConsumed(newTailIndex LogIndex) error {
	if !(h.consumedTail.Index <= newTailIndex) {
		return newError(Other, "record_consumed: index went backwards", nil)
	}
	if !(newTailIndex <= h.committedTail.Index) {
		return newError(Other, "record_consumed: index past committed tail", nil)
	}
	record, ok := h.GetRecord(newTailIndex)
	if !ok {
		return newError(Other, "record_consumed: too old index", nil)
	}
	h.consumedTail = LogPosition{PrevTerm: record.Head.PrevTerm, Index: newTailIndex}
	return nil
}

// RecordRollback discards the appended-and-uncommitted tail back to
// newTail, truncating every HistoryRecord past it. newTail must lie in
// [committedTail.Index, appendedTail.Index] and must name a term that
// agrees with the local history at that index.
func (h *LogHistory) RecordRollback(newTail LogPosition) error {
	if !(newTail.Index <= h.appendedTail.Index) {
		return newError(Other, "record_rollback: newTail past appended tail", nil)
	}
	if !(h.committedTail.Index <= newTail.Index) {
		return newError(Other, "record_rollback: newTail before committed tail", nil)
	}
	record, ok := h.GetRecord(newTail.Index)
	if !ok || record.Head.PrevTerm != newTail.PrevTerm {
		return newError(InconsistentState, "record_rollback: term disagrees with local history", nil)
	}

	h.appendedTail = newTail
	for i, r := range h.records {
		if r.Head.Index > newTail.Index {
			h.records = h.records[:i]
			break
		}
	}
	return nil
}

// RecordSnapshotInstalled records that a snapshot ending at newHead (with
// config in force at that point) has been installed, discarding every
// HistoryRecord at or before newHead and jumping appendedTail/committedTail
// forward if the snapshot subsumes them.
func (h *LogHistory) RecordSnapshotInstalled(newHead LogPosition, config ClusterConfig) error {
	if !(h.Head().Index <= newHead.Index) {
		return newError(InconsistentState, "record_snapshot_installed: newHead before local head", nil)
	}

	i := 0
	for i < len(h.records) && h.records[i].Head.Index <= newHead.Index {
		i++
	}
	rest := append([]HistoryRecord(nil), h.records[i:]...)
	h.records = append([]HistoryRecord{{Head: newHead, Config: config}}, rest...)

	if h.appendedTail.Index < newHead.Index {
		h.appendedTail = newHead
	}
	if h.committedTail.Index < newHead.Index {
		h.committedTail = newHead
	}
	return nil
}

// RecordSnapshotLoaded records that a locally-loaded snapshot covers up to
// prefix.Tail, advancing consumedTail if the snapshot is newer than what
// had been consumed.
func (h *LogHistory) RecordSnapshotLoaded(prefix LogPrefix) error {
	if h.consumedTail.Index < prefix.Tail.Index {
		if !(prefix.Tail.Index <= h.committedTail.Index) {
			return newError(InconsistentState, "record_snapshot_loaded: snapshot past committed tail", nil)
		}
		h.consumedTail = prefix.Tail
	}
	return nil
}

// clusterConfigEqual compares two ClusterConfig values for the
// "did the configuration actually change" test record_appended needs: same
// state and same member sets.
func clusterConfigEqual(a, b ClusterConfig) bool {
	if a.State != b.State {
		return false
	}
	return membersEqual(a.New, b.New) && membersEqual(a.Old, b.Old)
}

func membersEqual(a, b ClusterMembers) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}
