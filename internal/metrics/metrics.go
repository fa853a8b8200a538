package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the replicated chatroom service.
//
// Naming convention: namespace_subsystem_name
// - namespace: chatmesh (application-level grouping)
// - subsystem: roster, txn, placement, chatroom, dataops, circuit_breaker,
//   rate_limit (feature-level grouping)
// - name: specific metric (nodes_registered, commits_total, etc.)
//
// Metric Types:
// - Gauge: current state (roster sizes, active chatrooms, subscriber counts)
// - Counter: cumulative events (commits, aborts, decision polls)
// - Histogram: latency distributions (commit duration, file-append latency)

var (
	// ChatNodesRegistered tracks the current size of the coordinator's chat_nodes roster.
	ChatNodesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatmesh",
		Subsystem: "roster",
		Name:      "chat_nodes_registered",
		Help:      "Current number of chat nodes in the coordinator's roster",
	})

	// DataParticipantsRegistered tracks the current size of the coordinator's data_participants roster.
	DataParticipantsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatmesh",
		Subsystem: "roster",
		Name:      "data_participants_registered",
		Help:      "Current number of data nodes in the coordinator's data_participants roster",
	})

	// RosterSweepEvictions counts nodes evicted by the coordinator's liveness sweep.
	RosterSweepEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "roster",
		Name:      "sweep_evictions_total",
		Help:      "Total nodes evicted by the liveness sweep",
	}, []string{"roster"})

	// TransactionsTotal counts completed 2PC transactions by final decision.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "txn",
		Name:      "transactions_total",
		Help:      "Total 2PC transactions by op and final decision",
	}, []string{"op", "decision"})

	// TransactionDuration tracks GenericCommit/explicit-2PC wall time.
	TransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatmesh",
		Subsystem: "txn",
		Name:      "duration_seconds",
		Help:      "Time spent driving a 2PC transaction to a decision",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// DecisionPolls counts decision-poll task iterations on data nodes.
	DecisionPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "txn",
		Name:      "decision_polls_total",
		Help:      "Total decision-poll iterations issued by participants",
	}, []string{"result"})

	// ChatroomPlacements counts placement outcomes when creating a chatroom.
	ChatroomPlacements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "placement",
		Name:      "chatroom_placements_total",
		Help:      "Total chatroom placement attempts by outcome",
	}, []string{"outcome"})

	// ActiveChatrooms tracks the number of chatrooms currently hosted by a chat node.
	ActiveChatrooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chatmesh",
		Subsystem: "chatroom",
		Name:      "active_total",
		Help:      "Current number of chatrooms hosted by this chat node",
	})

	// ActiveSubscribers tracks the number of connected subscribers per chatroom.
	ActiveSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatmesh",
		Subsystem: "chatroom",
		Name:      "subscribers_count",
		Help:      "Number of connected subscribers in each chatroom",
	}, []string{"chatroom"})

	// ChatMessagesPublished counts fan-out publishes per chatroom.
	ChatMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "chatroom",
		Name:      "messages_published_total",
		Help:      "Total chat messages published to subscribers",
	}, []string{"chatroom"})

	// FileAppendDuration tracks data-node disk append latency.
	FileAppendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatmesh",
		Subsystem: "dataops",
		Name:      "file_append_seconds",
		Help:      "Time spent appending to a data node's durable file tree",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"file"})

	// CircuitBreakerState tracks the current state of an outbound RPC breaker.
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chatmesh",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks the total number of requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks the total number of requests that exceeded the rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// CacheOperationsTotal tracks the total number of data-node cache operations.
	CacheOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Total number of read-through cache operations",
	}, []string{"operation", "status"})

	// CacheOperationDuration tracks the duration of data-node cache operations.
	CacheOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chatmesh",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Duration of read-through cache operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// IdentityVerifications counts the coordinator's attempts to verify a
	// participant identity token presented on a callback surface.
	IdentityVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chatmesh",
		Subsystem: "identity",
		Name:      "verifications_total",
		Help:      "Total participant identity token verifications by surface and result",
	}, []string{"surface", "result"})
)
