package patch

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks per-entry outcomes across calls to Patcher.Apply, following
// the per-package metrics.go convention used for Prometheus instrumentation
// in the retrieved corpus (src/metrics/prometheus.go). No HTTP exporter is
// wired here since PDAR is a one-shot CLI with no server surface; callers
// that want to expose these may register them with their own
// prometheus.Registerer and scrape/push independently.
type Metrics struct {
	applied    *prometheus.CounterVec
	skipped    prometheus.Counter
	rolledBack prometheus.Counter
}

// NewMetrics constructs and registers the Patcher's counters against reg. A
// nil reg is accepted and yields a Metrics that silently discards
// observations, so instrumentation is always optional for callers.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdar",
			Subsystem: "patch",
			Name:      "entries_applied_total",
			Help:      "Number of archive entries successfully applied, by kind.",
		}, []string{"kind"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdar",
			Subsystem: "patch",
			Name:      "entries_skipped_total",
			Help:      "Number of archive entries skipped because they were already applied.",
		}),
		rolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdar",
			Subsystem: "patch",
			Name:      "entries_rolled_back_total",
			Help:      "Number of entries restored to their pre-apply state after an archive-level failure.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.applied, m.skipped, m.rolledBack)
	}

	return m
}

func (m *Metrics) observeApplied(kind string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) observeRolledBack() {
	if m == nil {
		return
	}
	m.rolledBack.Inc()
}
