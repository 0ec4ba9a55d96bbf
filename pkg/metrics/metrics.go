package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation", "table"},
	)

	socketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socket_connections_active",
			Help: "Number of currently open socket connections.",
		},
	)

	roomMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socket_room_members",
			Help: "Number of sessions currently joined per room.",
		},
		[]string{"room"},
	)

	eventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socket_events_broadcast_total",
			Help: "Total number of events fanned out to room members.",
		},
		[]string{"event"},
	)
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordDBQuery records the duration of a single database query.
func RecordDBQuery(operation, table string, elapsed time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
}

// ConnectionOpened increments the active socket connection gauge.
func ConnectionOpened() {
	socketConnections.Inc()
}

// ConnectionClosed decrements the active socket connection gauge.
func ConnectionClosed() {
	socketConnections.Dec()
}

// SetRoomMembers records the current member count for a room.
func SetRoomMembers(room string, count int) {
	roomMembers.WithLabelValues(room).Set(float64(count))
}

// RoomRemoved drops the member gauge for a room that no longer exists.
func RoomRemoved(room string) {
	roomMembers.DeleteLabelValues(room)
}

// EventBroadcast counts a single event delivered to room members.
func EventBroadcast(event string, receivers int) {
	eventsBroadcast.WithLabelValues(event).Add(float64(receivers))
}
