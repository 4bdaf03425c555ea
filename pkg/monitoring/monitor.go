package monitoring

import (
	"strconv"
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

	// QuestionsGenerated 按来源统计出题次数（source: ai / bank）
	QuestionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_questions_generated_total",
			Help: "Total placement questions generated, by source",
		},
		[]string{"source"},
	)

	// AIFallbacks AI出题失败转静态题库的次数
	AIFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_ai_fallback_total",
			Help: "Total AI generation failures recovered by the fallback bank",
		},
	)

	// AssessmentsFinished 完成的定级测试数
	AssessmentsFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_assessments_finished_total",
			Help: "Total placement assessments finalized",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(QuestionsGenerated)
	prometheus.MustRegister(AIFallbacks)
	prometheus.MustRegister(AssessmentsFinished)
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
