// Package telemetry wires structured logging and Prometheus metrics for
// the broker. Both are fire-and-forget observability: nothing in the
// request path blocks on or inspects their outcome.
package telemetry

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Metrics holds every counter/gauge the broker updates. It is safe for
// concurrent use; all fields are Prometheus collectors, which are
// inherently goroutine-safe.
type Metrics struct {
	RequestsClaimed    prometheus.Counter
	ResponsesDelivered prometheus.Counter
	ErrorsByKind       *prometheus.CounterVec
	RequeryInvocations prometheus.Counter
	ActiveWorkers      prometheus.Gauge
	ActiveWriters      prometheus.Gauge
	RequestQueueDepth  prometheus.Gauge
	ResponseQueueDepth prometheus.Gauge
}

// NewMetrics registers the broker's collectors against reg and returns
// the handle used to update them. Pass prometheus.NewRegistry() in tests
// to avoid colliding with the global default registry across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gemma_broker_requests_claimed_total",
			Help: "Number of REQUEST slots claimed by the detector.",
		}),
		ResponsesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "gemma_broker_responses_delivered_total",
			Help: "Number of responses successfully delivered to a slot.",
		}),
		ErrorsByKind: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemma_broker_errors_total",
			Help: "Errors encountered, partitioned by kind.",
		}, []string{"kind"}),
		RequeryInvocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gemma_broker_requery_invocations_total",
			Help: "Number of re-query calls issued for oversized summaries.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gemma_broker_active_workers",
			Help: "Number of worker goroutines currently running.",
		}),
		ActiveWriters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gemma_broker_active_writers",
			Help: "Number of writer goroutines currently running.",
		}),
		RequestQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gemma_broker_request_queue_depth",
			Help: "Current number of items buffered in the request queue.",
		}),
		ResponseQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gemma_broker_response_queue_depth",
			Help: "Current number of items buffered in the response queue.",
		}),
	}
}

// NewRotatingSink builds the lumberjack-backed io.Writer the logger
// writes to: size-based rotation with a bounded number of backups.
func NewRotatingSink(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
}

// NewLogger builds a logrus logger writing JSON lines to sink at level.
// An unrecognized level falls back to info rather than failing startup.
func NewLogger(sink io.Writer, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(sink)
	log.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

// StageFields builds the standard field set every pipeline-stage log
// line carries: request_id, slot_id, stage, and outcome.
func StageFields(requestID string, slotID int, stage, outcome string) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"slot_id":    slotID,
		"stage":      stage,
		"outcome":    outcome,
	}
}

// ErrorKind canonicalizes an error into one of four kinds (transport,
// parse, model, invariant) for the ErrorsByKind counter.
type ErrorKind string

const (
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindParse     ErrorKind = "parse"
	ErrorKindModel     ErrorKind = "model"
	ErrorKindInvariant ErrorKind = "invariant"
)

// Record increments the error counter for kind, with a defensive
// fallback label if kind is ever something unexpected at the call site.
func (m *Metrics) Record(kind ErrorKind) {
	label := string(kind)
	switch kind {
	case ErrorKindTransport, ErrorKindParse, ErrorKindModel, ErrorKindInvariant:
	default:
		label = fmt.Sprintf("unknown:%s", kind)
	}
	m.ErrorsByKind.WithLabelValues(label).Inc()
}
