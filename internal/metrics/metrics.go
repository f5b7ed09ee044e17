package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_messages_sent_total",
			Help: "Total messages routed, by message type and delivery status",
		},
		[]string{"message_type", "status"},
	)

	DeliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_message_delivery_seconds",
			Help:    "Message router latency from send to confirmation",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_rooms_created_total",
			Help: "Total rooms created",
		},
		[]string{"room_type"},
	)

	JoinsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_joins_rejected_total",
			Help: "Room joins rejected",
		},
		[]string{"reason"}, // "not_found", "capacity", "key"
	)

	CircuitOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_circuit_opened_total",
			Help: "Times a room circuit breaker opened",
		},
	)

	SendsShortCircuited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_sends_short_circuited_total",
			Help: "Sends rejected because the room circuit was open",
		},
	)

	QueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_queue_dropped_total",
			Help: "Post-processing jobs dropped because the queue was full",
		},
	)

	// Live state
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_active_rooms",
			Help: "Rooms held by this instance",
		},
	)

	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_active_connections",
			Help: "Transport sessions held by this instance",
		},
	)

	LatencyP95 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_message_latency_p95_ms",
			Help: "p95 message latency over the retained sample window",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	CatalogLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_catalog_latency_seconds",
			Help:    "Room catalog query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
