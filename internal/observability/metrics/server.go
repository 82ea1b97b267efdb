package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics carries every counter the server exports. A private registry
// keeps the scrape surface limited to what this process owns.
type ServerMetrics struct {
	registry *prometheus.Registry

	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchDegraded *prometheus.CounterVec
	searchResults  *prometheus.HistogramVec

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec

	campaignOpsTotal *prometheus.CounterVec
	linkOpsTotal     *prometheus.CounterVec
}

func NewServerMetrics(service string, queueDepth func() float64) *ServerMetrics {
	registry := prometheus.NewRegistry()

	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loremaster",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by match mode of the top result.",
		},
		[]string{"service", "mode"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loremaster",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	searchDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loremaster",
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Total search requests answered in degraded mode.",
		},
		[]string{"service"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loremaster",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of results returned per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loremaster",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total ingested chunks by outcome.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loremaster",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Chunk ingestion duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	campaignOpsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loremaster",
			Subsystem: "campaign",
			Name:      "operations_total",
			Help:      "Total campaign record operations by kind and outcome.",
		},
		[]string{"service", "operation", "status"},
	)
	linkOpsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loremaster",
			Subsystem: "links",
			Name:      "operations_total",
			Help:      "Total cross-reference operations by kind and outcome.",
		},
		[]string{"service", "operation", "status"},
	)

	registry.MustRegister(
		searchTotal,
		searchDuration,
		searchDegraded,
		searchResults,
		ingestTotal,
		ingestDuration,
		campaignOpsTotal,
		linkOpsTotal,
	)

	if queueDepth != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "loremaster",
				Subsystem: "ingest",
				Name:      "queue_depth",
				Help:      "Ingest admission slots currently held.",
				ConstLabels: prometheus.Labels{
					"service": service,
				},
			},
			queueDepth,
		))
	}

	return &ServerMetrics{
		registry:         registry,
		searchTotal:      searchTotal,
		searchDuration:   searchDuration,
		searchDegraded:   searchDegraded,
		searchResults:    searchResults,
		ingestTotal:      ingestTotal,
		ingestDuration:   ingestDuration,
		campaignOpsTotal: campaignOpsTotal,
		linkOpsTotal:     linkOpsTotal,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) RecordSearch(service, mode string, results int, degraded bool, duration time.Duration) {
	m.searchTotal.WithLabelValues(service, mode).Inc()
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.searchResults.WithLabelValues(service).Observe(float64(results))
	if degraded {
		m.searchDegraded.WithLabelValues(service).Inc()
	}
}

func (m *ServerMetrics) RecordIngest(service, status string, duration time.Duration) {
	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *ServerMetrics) RecordCampaignOp(service, operation, status string) {
	m.campaignOpsTotal.WithLabelValues(service, operation, status).Inc()
}

func (m *ServerMetrics) RecordLinkOp(service, operation, status string) {
	m.linkOpsTotal.WithLabelValues(service, operation, status).Inc()
}
