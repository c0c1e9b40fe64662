package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	// Import metrics
	ImportRecords  *prometheus.CounterVec
	ImportRequests *prometheus.CounterVec

	// LLM metrics
	LLMRequests *prometheus.CounterVec
	LLMLatency  *prometheus.HistogramVec

	JSONRecovery *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the process-wide metrics, registering them on first use.
func Default() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ImportRecords: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessons_import_records_total",
					Help: "Lesson records produced by file imports",
				},
				[]string{"format"},
			),
			ImportRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessons_import_requests_total",
					Help: "File import attempts by outcome",
				},
				[]string{"format", "outcome"},
			),
			LLMRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessons_llm_requests_total",
					Help: "Language model calls by operation and outcome",
				},
				[]string{"operation", "outcome"},
			),
			LLMLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "lessons_llm_request_seconds",
					Help:    "Language model call latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to 128s
				},
				[]string{"operation"},
			),
			JSONRecovery: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lessons_json_recovery_total",
					Help: "Model output parses by recovery strategy",
				},
				[]string{"strategy"},
			),
		}
	})
	return sharedMetrics
}

// RecordImport counts one import attempt and the records it produced.
func (m *Metrics) RecordImport(format string, records int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ImportRequests.WithLabelValues(format, outcome).Inc()
	if records > 0 {
		m.ImportRecords.WithLabelValues(format).Add(float64(records))
	}
}

// RecordLLM counts one model call and observes its latency.
func (m *Metrics) RecordLLM(operation string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequests.WithLabelValues(operation, outcome).Inc()
	m.LLMLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordRecovery counts a parse of model output by the strategy that succeeded.
func (m *Metrics) RecordRecovery(strategy string) {
	m.JSONRecovery.WithLabelValues(strategy).Inc()
}
