package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Chat core metrics
	ChatMessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Total number of messages appended to room history",
		},
		[]string{"room_id"},
	)

	ChatAppendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_append_failures_total",
			Help: "Total number of rejected or failed appends",
		},
		[]string{"room_id", "kind"},
	)

	ChatSubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_subscribers_active",
			Help: "Number of live subscriptions per room",
		},
		[]string{"room_id"},
	)

	ChatDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Total number of messages queued to subscribers",
		},
		[]string{"room_id"},
	)

	ChatSlowSubscribersEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_slow_subscribers_evicted_total",
			Help: "Total number of subscribers evicted for exceeding their pending limit",
		},
		[]string{"room_id"},
	)

	ChatSubscriberBacklog = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_subscriber_backlog",
			Help:    "Messages still queued for a subscriber after one is delivered",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		},
		[]string{"room_id"},
	)

	ChatEventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_event_publish_failures_total",
			Help: "Total number of message events that could not be published to the broker",
		},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"room_id"},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of frames sent via WebSocket",
		},
		[]string{"room_id", "type"},
	)

	// Storage metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
