package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// NotificationDeliveries 按渠道统计投递结果（sent / failed / skipped）
	NotificationDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Notification deliveries per channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	OutboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_tasks_total",
			Help: "Processed dispatch outbox tasks",
		},
		[]string{"kind", "outcome"},
	)

	EvaluationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_transitions_total",
			Help: "Evaluation status transitions",
		},
		[]string{"to"},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total background job runs",
		},
		[]string{"job"},
	)

	JobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_errors_total",
			Help: "Total background job errors",
		},
		[]string{"job"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	initOnce sync.Once
)

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter, RequestDuration)
		prometheus.MustRegister(NotificationDeliveries, OutboxTasks, EvaluationTransitions)
		prometheus.MustRegister(JobRuns, JobErrors, JobDuration)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
