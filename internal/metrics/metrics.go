package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client registry
var (
	// ConnectedClients tracks websocket clients currently in the registry
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskfeed_connected_clients",
			Help: "Websocket clients currently connected",
		},
	)

	// ActiveSubscriptions tracks clients holding a single-option subscription
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskfeed_active_subscriptions",
			Help: "Clients with an active option subscription",
		},
	)
)

// Broadcast cycle
var (
	// BroadcastCyclesTotal counts refresh cycles by final status
	BroadcastCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskfeed_broadcast_cycles_total",
			Help: "Broadcast cycles by status (broadcast, skipped_timeout, skipped_empty, failed)",
		},
		[]string{"status"},
	)

	// BroadcastCycleDuration tracks wall time of one refresh + fan-out
	BroadcastCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskfeed_broadcast_cycle_duration_seconds",
			Help:    "Duration of a broadcast cycle in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
	)

	// DispatchOutcomesTotal counts per-client fan-out outcomes
	DispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskfeed_dispatch_outcomes_total",
			Help: "Per-client fan-out outcomes (delivered, timed_out, failed)",
		},
		[]string{"outcome"},
	)

	// SnapshotContracts is the contract count of the last cached snapshot
	SnapshotContracts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskfeed_snapshot_contracts",
			Help: "Number of contracts in the most recent snapshot",
		},
	)
)

// Sessions
var (
	// SessionMessagesTotal counts inbound client messages by kind
	SessionMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskfeed_session_messages_total",
			Help: "Inbound client messages by kind (subscribe, unsubscribe, pong, invalid, unknown)",
		},
		[]string{"kind"},
	)

	// PingsSentTotal counts liveness probes sent after idle timeouts
	PingsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskfeed_pings_sent_total",
			Help: "Liveness pings sent to idle clients",
		},
	)
)

// Storage
var (
	// KeepAliveProbesTotal counts pool keep-alive probes by pool and status
	KeepAliveProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskfeed_db_keepalive_probes_total",
			Help: "Database keep-alive probes by pool (CE, PE) and status (ok, error)",
		},
		[]string{"pool", "status"},
	)
)
