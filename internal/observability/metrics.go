package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the consumer loops, the batch
// jobs, and the HTTP API.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	eventsProcessedTotal *prometheus.CounterVec
	eventRetriesTotal    *prometheus.CounterVec
	deadLetteredTotal    *prometheus.CounterVec
	emailsSentTotal      *prometheus.CounterVec
	emailSendDuration    *prometheus.HistogramVec
	batchJobRunsTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notification_pipeline",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "events_processed_total",
				Help:      "Total number of consumed events grouped by topic and outcome.",
			},
			[]string{"topic", "result"},
		),
		eventRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "event_retries_total",
				Help:      "Total number of event processing retry attempts by topic.",
			},
			[]string{"topic"},
		),
		deadLetteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "dead_lettered_total",
				Help:      "Total number of events escalated to the dead letter topic.",
			},
			[]string{"topic"},
		),
		emailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "emails_sent_total",
				Help:      "Total number of emails handed to the mailer by notification type.",
			},
			[]string{"type"},
		),
		emailSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notification_pipeline",
				Name:      "email_send_duration_seconds",
				Help:      "Mailer send duration in seconds grouped by notification type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"type"},
		),
		batchJobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_pipeline",
				Name:      "batch_job_runs_total",
				Help:      "Total number of scheduled batch job runs by job and result.",
			},
			[]string{"job", "result"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsProcessedTotal,
		m.eventRetriesTotal,
		m.deadLetteredTotal,
		m.emailsSentTotal,
		m.emailSendDuration,
		m.batchJobRunsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEventProcessed(topic string, result string) {
	if m == nil {
		return
	}
	m.eventsProcessedTotal.WithLabelValues(normalizeLabel(topic), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncEventRetry(topic string) {
	if m == nil {
		return
	}
	m.eventRetriesTotal.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *Metrics) IncDeadLettered(topic string) {
	if m == nil {
		return
	}
	m.deadLetteredTotal.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *Metrics) IncEmailSent(notificationType string) {
	if m == nil {
		return
	}
	m.emailsSentTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) ObserveEmailSendDuration(notificationType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.emailSendDuration.WithLabelValues(normalizeLabel(notificationType)).Observe(seconds)
}

func (m *Metrics) IncBatchJobRun(job string, result string) {
	if m == nil {
		return
	}
	m.batchJobRunsTotal.WithLabelValues(normalizeLabel(job), normalizeLabel(result)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
