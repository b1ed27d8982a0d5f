package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "apiary"

// Skip reasons used as the "reason" label of RecordsSkipped.
const (
	SkipMissingWave = "missing_wave"
	SkipUnknown     = "unknown_kind"
	SkipOrphaned    = "orphaned"
)

// Unresolved reasons used as the "reason" label of ArtifactsUnresolved.
const (
	UnresolvedNotFound = "not_found"
	UnresolvedBroken   = "broken"
)

// Metrics holds the counters of analysis runs.
type Metrics struct {
	RecordsSkipped      *prometheus.CounterVec
	Sessions            prometheus.Counter
	Players             prometheus.Counter
	ArtifactsUnresolved *prometheus.CounterVec
	ProgramsClassified  prometheus.Counter
	ProgramsBroken      prometheus.Counter
	ProgramsDefault     prometheus.Counter
	ProgramsResaved     prometheus.Counter
}

// NewMetrics registers the pipeline counters with reg. Tests and one-shot
// CLI runs pass their own prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_skipped_total",
				Help:      "Records skipped during session reconstruction, by reason",
			},
			[]string{"reason"},
		),
		Sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Sessions reconstructed",
		}),
		Players: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "players_total",
			Help:      "Players processed",
		}),
		ArtifactsUnresolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "artifacts_unresolved_total",
				Help:      "Artifacts whose program could not be loaded, by reason",
			},
			[]string{"reason"},
		),
		ProgramsClassified: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "programs_classified_total",
			Help:      "Unique programs classified against their baseline",
		}),
		ProgramsBroken: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "programs_broken_total",
			Help:      "Unique programs whose baseline or comparison failed",
		}),
		ProgramsDefault: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "programs_default_total",
			Help:      "Deployed programs identical to their stock program",
		}),
		ProgramsResaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "programs_resaved_total",
			Help:      "Consecutive identical programs collapsed into one observation",
		}),
	}
}

func (m *Metrics) recordSkipped(missingWave, unknown, orphaned int) {
	m.RecordsSkipped.WithLabelValues(SkipMissingWave).Add(float64(missingWave))
	m.RecordsSkipped.WithLabelValues(SkipUnknown).Add(float64(unknown))
	m.RecordsSkipped.WithLabelValues(SkipOrphaned).Add(float64(orphaned))
}
