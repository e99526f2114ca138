package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Entity store
	StoreTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_store_transactions_total",
			Help: "Total number of store transactions by outcome",
		},
		[]string{"status"}, // "committed", "rolled_back", "begin_failed", "commit_failed"
	)

	StoreTransactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hashtop_store_transaction_duration_seconds",
			Help:    "Duration of committed store transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Ingestion
	IngestBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_ingest_batches_total",
			Help: "Total number of telemetry batches by kind and outcome",
		},
		[]string{"kind", "status"}, // kind: "health", "shares"
	)

	IngestReadings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_ingest_readings_total",
			Help: "Total number of readings committed",
		},
		[]string{"kind"},
	)

	// Collector
	CollectorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_collector_cycles_total",
			Help: "Total number of collector cycles by outcome",
		},
		[]string{"status"}, // "persisted", "empty", "persist_failed", "list_failed"
	)

	CollectorSkippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtop_collector_skipped_ticks_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	CollectorSnapshots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtop_collector_snapshots_total",
			Help: "Total number of user stat snapshots persisted",
		},
	)

	CollectorOmittedUsers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtop_collector_omitted_users_total",
			Help: "Users left out of a cycle because a lookup failed",
		},
	)

	CollectorCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hashtop_collector_cycle_duration_seconds",
			Help:    "Duration of collector cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Upstream pool API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_upstream_requests_total",
			Help: "Total number of pool API requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashtop_upstream_request_duration_seconds",
			Help:    "Duration of pool API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hashtop_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// HTTP API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashtop_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Agent
	AgentSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtop_agent_submissions_total",
			Help: "Total number of batches the agent submitted by outcome",
		},
		[]string{"status"},
	)
)
