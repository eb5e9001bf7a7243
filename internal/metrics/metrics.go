package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convo_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_rpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "code"},
	)

	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_intents_total",
			Help: "Client intents dispatched, by action and result code",
		},
		[]string{"action", "code"},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "convo_websocket_connections",
			Help: "Open websocket connections",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"transport"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"chat_type", "kind"},
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convo_read_receipts_total",
			Help: "Messages newly marked read",
		},
	)

	Reactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_reactions_total",
			Help: "Reactions added or removed",
		},
		[]string{"op"},
	)

	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_calls_started_total",
			Help: "Total calls started",
		},
		[]string{"kind"},
	)

	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_call_participant_transitions_total",
			Help: "Call participant transitions by target status and whether they applied",
		},
		[]string{"to", "applied"},
	)

	CallStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_call_status_changes_total",
			Help: "Call status changes",
		},
		[]string{"status"},
	)

	RingingExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_ringing_expired_total",
			Help: "Ringing participants timed out",
		},
		[]string{"trigger"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_notifications_created_total",
			Help: "Notifications created",
		},
		[]string{"type"},
	)

	FanoutFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convo_fanout_failures_total",
			Help: "Per-recipient fan-out steps that failed",
		},
	)

	// Event delivery
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_events_published_total",
			Help: "Events published, by type",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_events_dropped_total",
			Help: "Events dropped for slow subscribers",
		},
		[]string{"type"},
	)

	// Infrastructure metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convo_store_errors_total",
			Help: "Store failures surfaced as unavailable",
		},
		[]string{"op"},
	)

	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convo_redis_publish_latency_seconds",
			Help:    "Redis publish latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
