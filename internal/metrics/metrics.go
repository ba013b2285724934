// Package metrics declares the Prometheus collectors shared by the terminal
// and the server. Both binaries expose them on GET /metrics through
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drain outcomes.
const (
	OutcomeSent        = "sent"
	OutcomeRetry       = "retry"
	OutcomeDeadLetter  = "dead_letter"
	OutcomeStoreFailed = "store_error"
)

// Shell fetch sources.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceOffline = "offline"
	SourceError   = "error"
)

var (
	SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_sync_queue_depth",
		Help: "Entries waiting in the terminal sync queue.",
	})

	SyncDrainEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sync_drain_entries_total",
		Help: "Queue entries processed by drain passes, by outcome.",
	}, []string{"outcome"})

	ShellFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_shell_fetch_total",
		Help: "Requests answered by the offline shell, by source.",
	}, []string{"source"})

	RemoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pos_remote_call_duration_seconds",
		Help:    "Latency of calls to the business-logic service.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_rpc_requests_total",
		Help: "RPC requests handled by the server, by operation and result code.",
	}, []string{"operation", "code"})
)
