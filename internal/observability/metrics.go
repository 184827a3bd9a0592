package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// civic-notice pipeline.
type Metrics struct {
	CrawledDocuments prometheus.Counter
	CrawlerFailures  *prometheus.CounterVec // label: source
	BatchRunning     prometheus.Gauge

	// Ingestion metrics.
	MessagesCreated  prometheus.Counter
	DocumentsSkipped prometheus.Counter
	DocumentsFailed  prometheus.Counter
	SlugRetries      prometheus.Counter

	// Notification metrics.
	MatchesCreated   prometheus.Counter
	MatchesAlready   prometheus.Counter
	DevicesDelivered prometheus.Counter
	DeliveryFailures prometheus.Counter

	// Per-stage duration, labels: stage={crawl,ingest,notify}.
	StageDuration *prometheus.HistogramVec

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // label: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // label: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CrawledDocuments,
		m.CrawlerFailures,
		m.BatchRunning,
		m.MessagesCreated,
		m.DocumentsSkipped,
		m.DocumentsFailed,
		m.SlugRetries,
		m.MatchesCreated,
		m.MatchesAlready,
		m.DevicesDelivered,
		m.DeliveryFailures,
		m.StageDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CrawledDocuments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "crawled_documents_total",
			Help:      "Total source documents emitted by crawlers.",
		}),
		CrawlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "crawler_failures_total",
			Help:      "Crawler failures by source identifier.",
		}, []string{"source"}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oboapp_pipeline",
			Name:      "batch_running",
			Help:      "1 while a batch run is active.",
		}),
		MessagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "messages_created_total",
			Help:      "Canonical messages created by the ingestor.",
		}),
		DocumentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "documents_skipped_total",
			Help:      "Source documents skipped as duplicates or irrelevant.",
		}),
		DocumentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "documents_failed_total",
			Help:      "Source documents that failed validation or persistence.",
		}),
		SlugRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "slug_retries_total",
			Help:      "Message slug draws retried after a collision.",
		}),
		MatchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "matches_created_total",
			Help:      "Notification matches recorded.",
		}),
		MatchesAlready: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "matches_already_total",
			Help:      "Match attempts skipped because the pair was already recorded.",
		}),
		DevicesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "devices_delivered_total",
			Help:      "Per-device notification deliveries that succeeded.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "delivery_failures_total",
			Help:      "Per-device notification deliveries that failed.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oboapp_pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each batch stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oboapp_pipeline",
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
	}
}
