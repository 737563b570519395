// Package metrics exposes pipeline counters in Prometheus format. A nil
// *Metrics is valid and records nothing, so components can be used without a
// registry in tests and one-shot commands.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the subtitle pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Capture
	FramesRead    prometheus.Counter
	FramesDropped prometheus.Counter

	// Segmentation
	SegmentsEnqueued  prometheus.Counter
	SegmentsForced    prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	DetectionFailures prometheus.Counter
	SegmentDuration   prometheus.Histogram
	QueueDepth        prometheus.Gauge

	// Recognition and translation
	RecognitionFailures prometheus.Counter
	TranslationFailures prometheus.Counter
	ResultsDiscarded    prometheus.Counter
	RecognitionLatency  prometheus.Histogram

	// Fan-out
	ResultsDelivered prometheus.Counter
	ListenerFailures *prometheus.CounterVec
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		FramesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_frames_read_total",
			Help: "Total number of audio frames consumed by the accumulator",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_frames_dropped_total",
			Help: "Total number of audio frames dropped by the capture callback under back-pressure",
		}),

		SegmentsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_segments_enqueued_total",
			Help: "Total number of utterance segments handed to the recognizer queue",
		}),
		SegmentsForced: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_segments_forced_total",
			Help: "Total number of segments closed because they reached the maximum duration",
		}),
		SegmentsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_segments_discarded_total",
			Help: "Total number of segments dropped for being shorter than the minimum duration",
		}),
		DetectionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_detection_failures_total",
			Help: "Total number of activity detector errors",
		}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livesub_segment_duration_seconds",
			Help:    "Duration of enqueued segments",
			Buckets: prometheus.LinearBuckets(1, 1, 15), // 1s to 15s
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "livesub_queue_depth",
			Help: "Segments waiting for recognition",
		}),

		RecognitionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_recognition_failures_total",
			Help: "Total number of segments whose recognition failed",
		}),
		TranslationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_translation_failures_total",
			Help: "Total number of recognized texts whose translation failed",
		}),
		ResultsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_results_discarded_total",
			Help: "Total number of recognitions dropped as empty or too short",
		}),
		RecognitionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livesub_recognition_duration_seconds",
			Help:    "Time spent recognizing and translating one segment",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		ResultsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "livesub_results_delivered_total",
			Help: "Total number of results fanned out to listeners",
		}),
		ListenerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livesub_listener_failures_total",
			Help: "Listener errors and panics by listener name",
		}, []string{"listener"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameRead() {
	if m != nil {
		m.FramesRead.Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) SegmentEnqueued(seconds float64, forced bool) {
	if m == nil {
		return
	}
	m.SegmentsEnqueued.Inc()
	m.SegmentDuration.Observe(seconds)
	if forced {
		m.SegmentsForced.Inc()
	}
}

func (m *Metrics) SegmentDiscarded() {
	if m != nil {
		m.SegmentsDiscarded.Inc()
	}
}

func (m *Metrics) DetectionFailed() {
	if m != nil {
		m.DetectionFailures.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) RecognitionFailed() {
	if m != nil {
		m.RecognitionFailures.Inc()
	}
}

func (m *Metrics) TranslationFailed() {
	if m != nil {
		m.TranslationFailures.Inc()
	}
}

func (m *Metrics) ResultDiscarded() {
	if m != nil {
		m.ResultsDiscarded.Inc()
	}
}

func (m *Metrics) ObserveRecognition(seconds float64) {
	if m != nil {
		m.RecognitionLatency.Observe(seconds)
	}
}

func (m *Metrics) ResultDelivered() {
	if m != nil {
		m.ResultsDelivered.Inc()
	}
}

func (m *Metrics) ListenerFailed(name string) {
	if m != nil {
		m.ListenerFailures.WithLabelValues(name).Inc()
	}
}
