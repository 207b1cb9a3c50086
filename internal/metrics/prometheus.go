package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the utterance recorder
type Metrics struct {
	// Capture metrics
	BlocksRead      prometheus.Counter
	SamplesRead     prometheus.Counter
	ReadErrors      *prometheus.CounterVec
	RecordingActive prometheus.Gauge
	SessionsStarted prometheus.Counter

	// Classification metrics
	SpeechBlocks   prometheus.Counter
	SilenceBlocks  prometheus.Counter
	RejectedBlocks prometheus.Counter

	// Utterance metrics
	UtterancesEmitted prometheus.Counter
	UtteranceDuration prometheus.Histogram
	UtteranceSize     prometheus.Histogram
	EncodeErrors      prometheus.Counter

	// Handoff metrics
	QueueSize     prometheus.Gauge
	HandoffStalls prometheus.Counter

	// Sink metrics
	SinkDeliveries *prometheus.CounterVec
	SinkFailures   *prometheus.CounterVec
	SinkDuration   *prometheus.HistogramVec

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates and registers all metrics with reg. A nil reg creates
// unregistered metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		BlocksRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_capture_blocks_read_total",
			Help: "Total number of sample blocks read from the source",
		}),
		SamplesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_capture_samples_read_total",
			Help: "Total number of samples read from the source",
		}),
		ReadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "utterance_capture_read_errors_total",
			Help: "Total number of source read errors",
		}, []string{"kind"}),
		RecordingActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "utterance_capture_recording_active",
			Help: "1 while a capture session is running",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_capture_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),

		// Classification metrics
		SpeechBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_vad_speech_blocks_total",
			Help: "Total number of blocks classified as speech",
		}),
		SilenceBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_vad_silence_blocks_total",
			Help: "Total number of blocks classified as silence",
		}),
		RejectedBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_vad_rejected_blocks_total",
			Help: "Total number of empty blocks skipped before classification",
		}),

		// Utterance metrics
		UtterancesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_emitted_total",
			Help: "Total number of utterances encoded and handed off",
		}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "utterance_duration_seconds",
			Help:    "Play time of emitted utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),
		UtteranceSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "utterance_size_bytes",
			Help:    "Size of emitted WAV files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		EncodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_encode_errors_total",
			Help: "Total number of utterances dropped because encoding failed",
		}),

		// Handoff metrics
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "utterance_handoff_queue_size",
			Help: "Current number of encoded utterances waiting for the sink",
		}),
		HandoffStalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_handoff_stalls_total",
			Help: "Total number of times the capture loop waited on a full handoff queue",
		}),

		// Sink metrics
		SinkDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "utterance_sink_deliveries_total",
			Help: "Total number of utterances delivered to a sink",
		}, []string{"sink"}),
		SinkFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "utterance_sink_failures_total",
			Help: "Total number of failed sink deliveries",
		}, []string{"sink"}),
		SinkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "utterance_sink_duration_seconds",
			Help:    "Time spent delivering an utterance to a sink",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"sink"}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "utterance_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "utterance_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "utterance_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "utterance_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "utterance_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordBlockRead records one successful source read
func (m *Metrics) RecordBlockRead(samples int) {
	m.BlocksRead.Inc()
	m.SamplesRead.Add(float64(samples))
}

// RecordReadError records a source read failure of the given kind
// ("transient" or "terminal")
func (m *Metrics) RecordReadError(kind string) {
	m.ReadErrors.WithLabelValues(kind).Inc()
}

// RecordClassification records the classifier decision for one block
func (m *Metrics) RecordClassification(speech bool) {
	if speech {
		m.SpeechBlocks.Inc()
		return
	}
	m.SilenceBlocks.Inc()
}

// RecordRejectedBlock increments the empty block counter
func (m *Metrics) RecordRejectedBlock() {
	m.RejectedBlocks.Inc()
}

// RecordUtterance records an encoded utterance
func (m *Metrics) RecordUtterance(durationSeconds float64, sizeBytes int) {
	m.UtterancesEmitted.Inc()
	m.UtteranceDuration.Observe(durationSeconds)
	m.UtteranceSize.Observe(float64(sizeBytes))
}

// RecordEncodeError increments the encode errors counter
func (m *Metrics) RecordEncodeError() {
	m.EncodeErrors.Inc()
}

// RecordHandoffStall increments the handoff stall counter
func (m *Metrics) RecordHandoffStall() {
	m.HandoffStalls.Inc()
}

// SetQueueSize sets the current handoff queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetRecording sets the recording gauge
func (m *Metrics) SetRecording(active bool) {
	if active {
		m.RecordingActive.Set(1)
		return
	}
	m.RecordingActive.Set(0)
}

// RecordSessionStarted increments the sessions counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSinkDelivery records the outcome of one sink call
func (m *Metrics) RecordSinkDelivery(sink string, durationSeconds float64, err error) {
	m.SinkDuration.WithLabelValues(sink).Observe(durationSeconds)
	if err != nil {
		m.SinkFailures.WithLabelValues(sink).Inc()
		return
	}
	m.SinkDeliveries.WithLabelValues(sink).Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
