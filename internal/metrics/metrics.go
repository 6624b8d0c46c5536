// Package metrics exposes the Prometheus collectors of the site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of the process. A dedicated registry keeps
// tests independent from the global default one.
var Registry = prometheus.NewRegistry()

var (
	CatalogQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alsolved_catalog_queries_total",
		Help: "Catalog pipeline runs by outcome (ok, empty, fetch_error).",
	}, []string{"outcome"})

	DetailLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alsolved_detail_lookups_total",
		Help: "Detail resolutions by outcome (found, not_found, fetch_error).",
	}, []string{"outcome"})

	SourceFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alsolved_source_fetch_errors_total",
		Help: "Failed fetches of the grant document by source kind.",
	}, []string{"source"})

	SourceRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "alsolved_source_records",
		Help: "Records in the last successfully loaded grant document.",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alsolved_http_requests_total",
		Help: "HTTP responses by status code class.",
	}, []string{"code"})

	LinkChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alsolved_link_checks_total",
		Help: "Official grant links checked by outcome (ok, broken, archived).",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		CatalogQueries,
		DetailLookups,
		SourceFetchErrors,
		SourceRecords,
		HTTPRequests,
		LinkChecks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
