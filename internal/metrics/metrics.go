package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of live websocket connections by scope",
	}, []string{"scope"})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted from websocket connections",
	})
	WsDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_deliveries_total",
		Help: "Events queued to websocket connections by event type",
	}, []string{"type"})
	WsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_dropped_total",
		Help: "Events dropped because a connection's send buffer was full or closed",
	})
	WsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_rejected_total",
		Help: "Websocket connections closed before admission, by reason",
	}, []string{"reason"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, WsMessagesTotal, WsDeliveriesTotal, WsDroppedTotal, WsRejectedTotal, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
