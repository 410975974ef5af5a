package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	BatchRuns            prometheus.Counter
	FetchFailures        prometheus.Counter
	MessagesFetched      prometheus.Counter
	ParseFailures        prometheus.Counter
	MessagesProcessed    prometheus.Counter
	ClassificationErrors prometheus.Counter
	GenerationFallbacks  prometheus.Counter
	CategoryCount        *prometheus.CounterVec
	BatchDuration        prometheus.Histogram
	GenerationDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_batch_runs_total",
			Help: "Total number of batch runs",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_fetch_failures_total",
			Help: "Total number of failed mailbox fetches",
		}),
		MessagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_messages_fetched_total",
			Help: "Total number of raw messages fetched from the mailbox",
		}),
		ParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_parse_failures_total",
			Help: "Total number of messages skipped because they could not be parsed",
		}),
		MessagesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_messages_processed_total",
			Help: "Total number of messages that produced a result",
		}),
		ClassificationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_classification_errors_total",
			Help: "Total number of classification calls that failed",
		}),
		GenerationFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_responder_generation_fallbacks_total",
			Help: "Total number of replies replaced by the static fallback",
		}),
		CategoryCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_mail_responder_category_total",
			Help: "Processed messages by category",
		}, []string{"category"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_mail_responder_batch_duration_seconds",
			Help:    "Time spent processing a batch",
			Buckets: prometheus.DefBuckets,
		}),
		GenerationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smart_mail_responder_generation_duration_seconds",
			Help:    "Latency of text-generation calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"purpose"}),
	}
}
