// Package metrics exposes Prometheus instrumentation for a running node:
// election activity, term changes, replication progress and snapshot
// installs. Counters/gauges/histograms, registration, and the /metrics
// HTTP server all follow the same shape the job-queue collector used.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for one node's Raft state machine.
type Collector struct {
	electionsStarted prometheus.Counter
	electionsWon     prometheus.Counter
	termChanges      prometheus.Counter
	stepDowns        prometheus.Counter

	replicationLatency prometheus.Histogram
	snapshotInstalls   prometheus.Counter
	snapshotLoads      prometheus.Counter

	currentTerm    prometheus.Gauge
	committedTail  prometheus.Gauge
	appendedTail   prometheus.Gauge
	replicationLag *prometheus.GaugeVec
}

// NewCollector builds and registers a Collector. nodeID is attached as a
// constant label so a shared Prometheus instance can scrape several nodes
// (e.g. in a loopback-transport test cluster) without metric collisions.
func NewCollector(nodeID string) *Collector {
	constLabels := prometheus.Labels{"node": nodeID}

	c := &Collector{
		electionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_elections_started_total",
			Help:        "Total number of elections this node has started as a candidate",
			ConstLabels: constLabels,
		}),
		electionsWon: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_elections_won_total",
			Help:        "Total number of elections this node has won",
			ConstLabels: constLabels,
		}),
		termChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_term_changes_total",
			Help:        "Total number of observed term increases",
			ConstLabels: constLabels,
		}),
		stepDowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_step_downs_total",
			Help:        "Total number of times this node stepped down to Follower",
			ConstLabels: constLabels,
		}),
		replicationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "raft_replication_round_trip_seconds",
			Help:        "Round-trip latency between an AppendEntries call and its reply",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		snapshotInstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_snapshot_installs_total",
			Help:        "Total number of snapshots installed locally (as a follower)",
			ConstLabels: constLabels,
		}),
		snapshotLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "raft_snapshot_loads_total",
			Help:        "Total number of snapshots loaded from storage at startup",
			ConstLabels: constLabels,
		}),
		currentTerm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_current_term",
			Help:        "Current term as observed by this node",
			ConstLabels: constLabels,
		}),
		committedTail: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_committed_log_tail",
			Help:        "Committed log index this node has recorded",
			ConstLabels: constLabels,
		}),
		appendedTail: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "raft_appended_log_tail",
			Help:        "Appended (uncommitted-included) log index this node has recorded",
			ConstLabels: constLabels,
		}),
		replicationLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "raft_follower_log_lag",
			Help:        "Leader's view of committedLogTail - follower.logTail, per follower",
			ConstLabels: constLabels,
		}, []string{"follower"}),
	}

	prometheus.MustRegister(
		c.electionsStarted, c.electionsWon, c.termChanges, c.stepDowns,
		c.replicationLatency, c.snapshotInstalls, c.snapshotLoads,
		c.currentTerm, c.committedTail, c.appendedTail, c.replicationLag,
	)

	return c
}

// RecordElectionStarted records this node starting a new election.
func (c *Collector) RecordElectionStarted() { c.electionsStarted.Inc() }

// RecordElectionWon records this node winning an election.
func (c *Collector) RecordElectionWon() { c.electionsWon.Inc() }

// RecordTermChange records an observed term increase.
func (c *Collector) RecordTermChange(newTerm uint64) {
	c.termChanges.Inc()
	c.currentTerm.Set(float64(newTerm))
}

// RecordStepDown records this node stepping down to Follower.
func (c *Collector) RecordStepDown() { c.stepDowns.Inc() }

// RecordReplicationRoundTrip records the latency between sending an
// AppendEntries call and receiving its reply.
func (c *Collector) RecordReplicationRoundTrip(seconds float64) {
	c.replicationLatency.Observe(seconds)
}

// RecordSnapshotInstalled records a local snapshot install.
func (c *Collector) RecordSnapshotInstalled() { c.snapshotInstalls.Inc() }

// RecordSnapshotLoaded records a snapshot load at startup.
func (c *Collector) RecordSnapshotLoaded() { c.snapshotLoads.Inc() }

// SetLogTails updates the committed/appended log tail gauges.
func (c *Collector) SetLogTails(committed, appended uint64) {
	c.committedTail.Set(float64(committed))
	c.appendedTail.Set(float64(appended))
}

// SetFollowerLag updates the per-follower replication lag gauge.
func (c *Collector) SetFollowerLag(follower string, lag int64) {
	c.replicationLag.WithLabelValues(follower).Set(float64(lag))
}

// StartServer starts the Prometheus metrics HTTP server on port.
func (c *Collector) StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
