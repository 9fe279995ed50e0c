// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caption_client"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Session metrics
	SessionsTotal    *prometheus.CounterVec
	SessionsActive   *prometheus.GaugeVec
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  *prometheus.HistogramVec
	StateTransitions *prometheus.CounterVec

	// Audio frame metrics
	FramesSent     *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	FrameBytesSent *prometheus.CounterVec

	// Transcript metrics
	TranscriptsPartial   prometheus.Counter
	SegmentsCommitted    prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	MalformedEvents      prometheus.Counter

	// Registry metrics
	RegistryMerges       prometheus.Counter
	RegistryLocalUpdates *prometheus.CounterVec
	ControlMessagesSent  *prometheus.CounterVec

	// Export metrics
	ExportPublishTotal   *prometheus.CounterVec
	ExportPublishErrors  *prometheus.CounterVec
	ExportPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of connection sessions started",
		}, []string{"provider", "mode"}),
		SessionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open connection sessions",
		}, []string{"provider", "mode"}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions ended by an error",
		}, []string{"provider", "kind"}),
		SessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of connection sessions in seconds",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"provider", "mode"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Stream controller state transitions",
		}, []string{"provider", "from", "to"}),

		// Audio frame metrics
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total outbound audio frames sent",
		}, []string{"provider"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total outbound audio frames dropped because the connection was not ready",
		}, []string{"provider"}),
		FrameBytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_sent_total",
			Help:      "Total outbound audio bytes sent",
		}, []string{"provider"}),

		// Transcript metrics
		TranscriptsPartial: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts applied",
		}),
		SegmentsCommitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_committed_total",
			Help:      "Total number of final segments committed",
		}),
		DuplicatesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of repeated final results dropped",
		}),
		MalformedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Total number of inbound messages that failed to parse",
		}),

		// Registry metrics
		RegistryMerges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_merges_total",
			Help:      "Total number of speaker registry broadcasts merged",
		}),
		RegistryLocalUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_local_updates_total",
			Help:      "Total number of optimistic speaker registry writes",
		}, []string{"field"}),
		ControlMessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_messages_total",
			Help:      "Outbound control messages by type and outcome",
		}, []string{"type", "outcome"}),

		// Export metrics
		ExportPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_publish_total",
			Help:      "Total number of transcript export messages published",
		}, []string{"topic", "event_type"}),
		ExportPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_publish_errors_total",
			Help:      "Total number of transcript export errors",
		}, []string{"topic", "event_type"}),
		ExportPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_publish_latency_seconds",
			Help:      "Transcript export latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStart records a new connection session starting.
func (m *Metrics) RecordSessionStart(provider, mode string) {
	m.SessionsTotal.WithLabelValues(provider, mode).Inc()
	m.SessionsActive.WithLabelValues(provider, mode).Inc()
}

// RecordSessionEnd records a connection session ending.
func (m *Metrics) RecordSessionEnd(provider, mode, failureKind string, durationSeconds float64) {
	m.SessionsActive.WithLabelValues(provider, mode).Dec()
	m.SessionDuration.WithLabelValues(provider, mode).Observe(durationSeconds)
	if failureKind != "" {
		m.RecordSessionFailure(provider, failureKind)
	}
}

// RecordSessionFailure counts a failure, including one that ended an
// attempt before the session opened.
func (m *Metrics) RecordSessionFailure(provider, failureKind string) {
	m.SessionsFailed.WithLabelValues(provider, failureKind).Inc()
}

// RecordTransition records a controller state transition.
func (m *Metrics) RecordTransition(provider, from, to string) {
	m.StateTransitions.WithLabelValues(provider, from, to).Inc()
}

// RecordFrame records an outbound audio frame as sent or dropped.
func (m *Metrics) RecordFrame(provider string, bytes int, sent bool) {
	if !sent {
		m.FramesDropped.WithLabelValues(provider).Inc()
		return
	}
	m.FramesSent.WithLabelValues(provider).Inc()
	m.FrameBytesSent.WithLabelValues(provider).Add(float64(bytes))
}

// RecordPartialTranscript records a partial transcript applied.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordSegmentCommitted records a committed final segment.
func (m *Metrics) RecordSegmentCommitted() {
	m.SegmentsCommitted.Inc()
}

// RecordDuplicateSuppressed records a dropped repeated final.
func (m *Metrics) RecordDuplicateSuppressed() {
	m.DuplicatesSuppressed.Inc()
}

// RecordMalformedEvent records an inbound message that could not be parsed.
func (m *Metrics) RecordMalformedEvent() {
	m.MalformedEvents.Inc()
}

// RecordRegistryMerge records an inbound registry broadcast.
func (m *Metrics) RecordRegistryMerge() {
	m.RegistryMerges.Inc()
}

// RecordLocalUpdate records an optimistic registry write.
func (m *Metrics) RecordLocalUpdate(field string) {
	m.RegistryLocalUpdates.WithLabelValues(field).Inc()
}

// RecordControlMessage records an outbound control message.
func (m *Metrics) RecordControlMessage(msgType string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "dropped"
	}
	m.ControlMessagesSent.WithLabelValues(msgType, outcome).Inc()
}

// RecordExportPublish records a transcript export attempt.
func (m *Metrics) RecordExportPublish(topic, eventType string, err error, latencySeconds float64) {
	m.ExportPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.ExportPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.ExportPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
