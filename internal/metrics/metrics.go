package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label names shared by every bot metric.
const (
	LabelChatType    = "chat_type"
	LabelContentType = "content_type"
)

// Buckets is used for both the audio duration and the processing time histograms.
var Buckets = []float64{0.1, 0.5, 1, 2, 5, 10}

// Metrics contains the Prometheus metrics of the bot. The vectors grow for
// the life of the process and are never reset.
type Metrics struct {
	MessagesTotal  *prometheus.CounterVec
	DurationTime   *prometheus.HistogramVec
	ProcessingTime *prometheus.HistogramVec
}

// New creates and registers the bot metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{LabelChatType, LabelContentType}

	return &Metrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "telegram_bot_messages_received_total",
			Help: "Total number of received messages",
		}, labels),
		DurationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telegram_bot_duration_seconds",
			Help:    "Message duration time",
			Buckets: Buckets,
		}, labels),
		ProcessingTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telegram_bot_processing_seconds",
			Help:    "Message processing time",
			Buckets: Buckets,
		}, labels),
	}
}

// RecordMessage counts a message accepted for processing.
func (m *Metrics) RecordMessage(chatType, contentType string) {
	m.MessagesTotal.WithLabelValues(chatType, contentType).Inc()
}

// ObserveDuration records the audio length reported by the ASR engine.
func (m *Metrics) ObserveDuration(chatType, contentType string, seconds float64) {
	m.DurationTime.WithLabelValues(chatType, contentType).Observe(seconds)
}

// ObserveProcessing records the wall-clock time spent handling a message.
func (m *Metrics) ObserveProcessing(chatType, contentType string, seconds float64) {
	m.ProcessingTime.WithLabelValues(chatType, contentType).Observe(seconds)
}
