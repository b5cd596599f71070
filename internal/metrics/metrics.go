package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lawq"

// Metrics holds Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	QuestionsSubmitted *prometheus.CounterVec
	AttorneyAnswers    *prometheus.CounterVec
	AIGenerations      *prometheus.CounterVec
	LedgerDebits       prometheus.Counter
	GenerationQueue    prometheus.Gauge
}

// New creates a metrics set on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		QuestionsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_submitted_total",
				Help:      "Questions submitted, by category",
			},
			[]string{"category"},
		),
		AttorneyAnswers: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attorney_answers_total",
				Help:      "Attorney answer attempts, by result",
			},
			[]string{"result"},
		),
		AIGenerations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_generations_total",
				Help:      "AI answer generation outcomes",
			},
			[]string{"result"}, // attached, duplicate, unavailable, retry
		),
		LedgerDebits: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_debited_amount_total",
				Help:      "Sum of amounts debited from attorney accounts",
			},
		),
		GenerationQueue: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "generation_queue_depth",
				Help:      "Questions waiting for AI generation",
			},
		),
	}
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count, latency and in-flight gauge
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
