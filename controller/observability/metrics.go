package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "defcon_events_ingested_total",
		Help: "Probe events ingested, by result status.",
	}, []string{"status"})

	OutagesConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "defcon_outages_confirmed_total",
		Help: "Global outages opened.",
	})

	OutagesResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "defcon_outages_resolved_total",
		Help: "Global outages closed.",
	})

	ProbesRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "defcon_probes_total",
		Help: "Probe executions, by check kind and result status.",
	}, []string{"kind", "status"})

	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "defcon_probe_duration_seconds",
		Help:    "Wall time of probe executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	AlertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "defcon_alerts_dispatched_total",
		Help: "Alerter invocations, by adapter kind and result.",
	}, []string{"kind", "result"})

	Checkins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "defcon_dms_checkins_total",
		Help: "Dead-man switch check-ins recorded.",
	})

	CleanedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "defcon_cleaned_rows_total",
		Help: "Rows removed by retention sweeps, by table.",
	}, []string{"table"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
