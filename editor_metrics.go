package gekko

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EditorMetrics exposes cook and edit activity. A nil *EditorMetrics is valid
// and records nothing.
type EditorMetrics struct {
	cooks            *prometheus.CounterVec
	cookDuration     prometheus.Histogram
	overrideFailures prometheus.Counter
	diffsApplied     *prometheus.CounterVec
	undoLength       prometheus.Gauge
	undoPosition     prometheus.Gauge
}

func NewEditorMetrics(reg prometheus.Registerer) *EditorMetrics {
	m := &EditorMetrics{
		cooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gekko",
			Subsystem: "prefab",
			Name:      "cooks_total",
			Help:      "Prefab cooks by result.",
		}, []string{"result"}),
		cookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gekko",
			Subsystem: "prefab",
			Name:      "cook_duration_seconds",
			Help:      "Wall time of a blocking prefab cook.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		overrideFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gekko",
			Subsystem: "prefab",
			Name:      "override_failures_total",
			Help:      "Component overrides skipped while cooking.",
		}),
		diffsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gekko",
			Subsystem: "editor",
			Name:      "diffs_applied_total",
			Help:      "World diffs applied to the opened prefab, by origin.",
		}, []string{"origin"}),
		undoLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gekko",
			Subsystem: "editor",
			Name:      "undo_chain_length",
			Help:      "Entries in the undo chain.",
		}),
		undoPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gekko",
			Subsystem: "editor",
			Name:      "undo_chain_position",
			Help:      "Current position in the undo chain.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cooks, m.cookDuration, m.overrideFailures, m.diffsApplied, m.undoLength, m.undoPosition)
	}
	return m
}

func (m *EditorMetrics) observeCook(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cooks.WithLabelValues(result).Inc()
	m.cookDuration.Observe(time.Since(start).Seconds())
}

func (m *EditorMetrics) overrideFailed() {
	if m == nil {
		return
	}
	m.overrideFailures.Inc()
}

func (m *EditorMetrics) diffApplied(origin string) {
	if m == nil {
		return
	}
	m.diffsApplied.WithLabelValues(origin).Inc()
}

func (m *EditorMetrics) observeUndo(chain *UndoChain) {
	if m == nil {
		return
	}
	m.undoLength.Set(float64(chain.Len()))
	m.undoPosition.Set(float64(chain.Position()))
}
