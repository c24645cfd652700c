// Package metrics defines the Prometheus collectors of the batch jobs and
// writes them to a node-exporter textfile when a job ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "psyctl"

// Metrics holds the collectors of one command run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal     *prometheus.CounterVec
	BatchesTotal     *prometheus.CounterVec
	UpdatesTotal     *prometheus.CounterVec
	StagedTotal      prometheus.Counter
	LoadedTotal      *prometheus.CounterVec
	LastRunTimestamp *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Upstream lookups by egress lane and outcome (ok, error).",
			},
			[]string{"egress", "outcome"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches settled by job.",
			},
			[]string{"job"},
		),
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_writes_total",
				Help:      "Catalog writes by job and outcome (ok, error).",
			},
			[]string{"job", "outcome"},
		),
		StagedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "staged_records_total",
				Help:      "Psychologist records written to the staging store.",
			},
		),
		LoadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loaded_records_total",
				Help:      "Staged records bulk loaded into the catalog by outcome (ok, error).",
			},
			[]string{"outcome"},
		),
		LastRunTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished run by job.",
			},
			[]string{"job"},
		),
	}
	m.Registry.MustRegister(
		m.FetchesTotal,
		m.BatchesTotal,
		m.UpdatesTotal,
		m.StagedTotal,
		m.LoadedTotal,
		m.LastRunTimestamp,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch counts one lookup through egress.
func (m *Metrics) ObserveFetch(egress string, err error) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(egress, outcome(err)).Inc()
}

// ObserveBatch counts one settled batch of job.
func (m *Metrics) ObserveBatch(job string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(job).Inc()
}

// ObserveWrite counts one catalog write of job.
func (m *Metrics) ObserveWrite(job string, err error) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(job, outcome(err)).Inc()
}

// ObserveStaged counts n staged records.
func (m *Metrics) ObserveStaged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StagedTotal.Add(float64(n))
}

// ObserveLoaded counts n records of one bulk-load chunk.
func (m *Metrics) ObserveLoaded(n int, err error) {
	if m == nil || n <= 0 {
		return
	}
	m.LoadedTotal.WithLabelValues(outcome(err)).Add(float64(n))
}

// Finish stamps the end of a run of job.
func (m *Metrics) Finish(job string) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// WriteTextfile writes every collector to path in the text exposition
// format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
