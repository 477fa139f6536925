// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "exam_proctor"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsCreated   prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsCompleted *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	ConsentDenied     *prometheus.CounterVec
	ValidationRejects prometheus.Counter

	// Aggregator metrics
	EventsTotal     *prometheus.CounterVec
	EventsDiscarded *prometheus.CounterVec

	// Detector metrics
	DetectorLatency *prometheus.HistogramVec
	DetectorErrors  *prometheus.CounterVec

	// Audio metrics
	AudioSegmentsCaptured prometheus.Counter
	AudioBytesCaptured    prometheus.Counter
	AudioLimitExceeded    prometheus.Counter

	// Alert channel metrics
	AlertPublishTotal   *prometheus.CounterVec
	AlertPublishErrors  *prometheus.CounterVec
	AlertPublishLatency prometheus.Histogram
	AlertsInbound       prometheus.Counter

	// Result sink metrics
	ResultsStored     prometheus.Counter
	ResultStoreErrors prometheus.Counter

	// Control plane metrics
	RPCTotal    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of proctoring sessions created",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently in progress",
		}),
		SessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of completed sessions by submit trigger",
		}, []string{"trigger"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from consent to completion in seconds",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		ConsentDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_denied_total",
			Help:      "Total number of device acquisitions denied",
		}, []string{"device"}),
		ValidationRejects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_validation_rejects_total",
			Help:      "Manual submissions rejected for unanswered questions",
		}),

		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events applied by the aggregator",
		}, []string{"kind"}),
		EventsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Events discarded because intake was sealed",
		}, []string{"kind"}),

		DetectorLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_latency_seconds",
			Help:      "External detector call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"detector"}),
		DetectorErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_errors_total",
			Help:      "Total number of external detector failures",
		}, []string{"detector"}),

		AudioSegmentsCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_segments_captured_total",
			Help:      "Total audio segments buffered",
		}),
		AudioBytesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_captured_total",
			Help:      "Total audio bytes buffered",
		}),
		AudioLimitExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_limit_exceeded_total",
			Help:      "Times the audio buffer limit stopped capture",
		}),

		AlertPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_total",
			Help:      "Total number of outbound alerts published",
		}, []string{"kind"}),
		AlertPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Total number of outbound alert publish errors",
		}, []string{"kind"}),
		AlertPublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_publish_latency_seconds",
			Help:      "Outbound alert publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AlertsInbound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_inbound_total",
			Help:      "Total number of inbound alerts delivered to sessions",
		}),

		ResultsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_stored_total",
			Help:      "Total number of exam results appended to the sink",
		}),
		ResultStoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_store_errors_total",
			Help:      "Total number of failed result appends",
		}),

		RPCTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and code",
		}, []string{"method", "code"}),
		RPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"method"}),
	}
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionStart records a session entering InProgress.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching Completed.
func (m *Metrics) RecordSessionEnd(trigger string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsCompleted.WithLabelValues(trigger).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordConsentDenied records a denied device.
func (m *Metrics) RecordConsentDenied(device string) {
	m.ConsentDenied.WithLabelValues(device).Inc()
}

// RecordValidationReject records a rejected manual submission.
func (m *Metrics) RecordValidationReject() {
	m.ValidationRejects.Inc()
}

// RecordEvent records an event applied by the aggregator.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// RecordEventDiscarded records an event rejected after intake was sealed.
func (m *Metrics) RecordEventDiscarded(kind string) {
	m.EventsDiscarded.WithLabelValues(kind).Inc()
}

// RecordDetectorCall records an external detector call.
func (m *Metrics) RecordDetectorCall(detector string, err error, latencySeconds float64) {
	m.DetectorLatency.WithLabelValues(detector).Observe(latencySeconds)
	if err != nil {
		m.DetectorErrors.WithLabelValues(detector).Inc()
	}
}

// RecordAudioSegment records a buffered audio segment.
func (m *Metrics) RecordAudioSegment(bytes int) {
	m.AudioSegmentsCaptured.Inc()
	m.AudioBytesCaptured.Add(float64(bytes))
}

// RecordAudioLimitExceeded records capture stopping at the buffer limit.
func (m *Metrics) RecordAudioLimitExceeded() {
	m.AudioLimitExceeded.Inc()
}

// RecordAlertPublish records an outbound alert publish attempt.
func (m *Metrics) RecordAlertPublish(kind string, err error, latencySeconds float64) {
	m.AlertPublishTotal.WithLabelValues(kind).Inc()
	m.AlertPublishLatency.Observe(latencySeconds)
	if err != nil {
		m.AlertPublishErrors.WithLabelValues(kind).Inc()
	}
}

// RecordInboundAlert records an inbound alert.
func (m *Metrics) RecordInboundAlert() {
	m.AlertsInbound.Inc()
}

// RecordResultStored records a result append.
func (m *Metrics) RecordResultStored(err error) {
	if err != nil {
		m.ResultStoreErrors.Inc()
		return
	}
	m.ResultsStored.Inc()
}

// RecordRPC records a completed gRPC call.
func (m *Metrics) RecordRPC(method, code string, durationSeconds float64) {
	m.RPCTotal.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(durationSeconds)
}
