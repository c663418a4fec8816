// Package metrics exposes the crawler's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the crawl pipeline updates as it runs.
// Each instance owns its own registry so tests can construct one without
// colliding with prometheus.DefaultRegisterer.
type Metrics struct {
	Registry *prometheus.Registry

	PagesCrawled       *prometheus.CounterVec
	LinksFiltered      prometheus.Counter
	LinksAdmitted      prometheus.Counter
	BackoffInvocations prometheus.Counter
	ActiveWorkers      prometheus.Gauge
	FrontierSize       prometheus.Gauge
}

// PageOutcome labels the crawler_pages_total counter.
type PageOutcome string

const (
	OutcomeSuccess      PageOutcome = "success"
	OutcomeRobotsDenied PageOutcome = "robots_denied"
	OutcomeOffDomain    PageOutcome = "off_domain"
	OutcomeRetriable    PageOutcome = "retriable"
	OutcomeFatal        PageOutcome = "fatal"
)

// New builds a Metrics bound to a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PagesCrawled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total pages processed by the crawl worker, labeled by outcome.",
		}, []string{"outcome"}),
		LinksFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_links_filtered_total",
			Help: "Links discarded by the pre-admission filter (off-domain or robots-denied).",
		}),
		LinksAdmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_links_admitted_total",
			Help: "Links that won frontier admission (push returned newly-admitted).",
		}),
		BackoffInvocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_backoff_invocations_total",
			Help: "Number of times the retriable-status backoff loop ran.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Worker tasks currently not idle-waiting on the frontier.",
		}),
		FrontierSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_frontier_size",
			Help: "Last observed size of the pending frontier queue.",
		}),
	}
}

// ObservePage increments the page counter for outcome.
func (m *Metrics) ObservePage(outcome PageOutcome) {
	m.PagesCrawled.WithLabelValues(string(outcome)).Inc()
}
