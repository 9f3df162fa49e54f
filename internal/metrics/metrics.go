// Package metrics exposes Prometheus instruments for the import pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foodops"

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "sessions_started_total",
		Help:      "Import sessions created, by import kind.",
	}, []string{"kind"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "sessions_active",
		Help:      "Import sessions currently held in memory.",
	})

	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "parse_duration_seconds",
		Help:      "Time spent parsing uploaded files, by format.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"format"})

	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "parse_failures_total",
		Help:      "Uploads rejected by the parser, by reason.",
	}, []string{"reason"})

	PreviewRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "preview_rows_total",
		Help:      "Rows validated in previews, by import kind and status.",
	}, []string{"kind", "status"})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "commits_total",
		Help:      "Commit attempts, by import kind and result.",
	}, []string{"kind", "result"})

	EntitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "entities_created_total",
		Help:      "Catalog entities created by imports, by entity kind.",
	}, []string{"kind"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
