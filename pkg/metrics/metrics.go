// Package metrics records rollup activity in a Prometheus registry.
//
// Invocations are short-lived, so nothing is served over HTTP. The registry
// is written to a node-exporter textfile after each run when configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "episodic"

// Recorder holds the rollup metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// RollupsTotal counts committed rollups. Labels: level, reason.
	RollupsTotal *prometheus.CounterVec
	// ItemsRolledTotal counts inputs consumed by rollups. Labels: level.
	ItemsRolledTotal *prometheus.CounterVec
	// FailuresTotal counts failed rollups. Labels: level, kind.
	FailuresTotal *prometheus.CounterVec
	// ShadowPending is the number of pending identifiers. Labels: level.
	ShadowPending *prometheus.GaugeVec
	// LastRolloverSeconds is the unix time of the last rollover. Labels: level.
	LastRolloverSeconds *prometheus.GaugeVec
}

// NewRecorder creates the metrics on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		RollupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_total",
			Help:      "Committed rollups by level and trigger reason.",
		}, []string{"level", "reason"}),
		ItemsRolledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_rolled_total",
			Help:      "Inputs consumed by committed rollups.",
		}, []string{"level"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollup_failures_total",
			Help:      "Failed rollups by level and failure kind.",
		}, []string{"level", "kind"}),
		ShadowPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shadow_pending_items",
			Help:      "Identifiers waiting in a level's shadow buffer.",
		}, []string{"level"}),
		LastRolloverSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_rollover_timestamp_seconds",
			Help:      "Unix time of a level's last rollover.",
		}, []string{"level"}),
	}
	r.registry.MustRegister(r.RollupsTotal, r.ItemsRolledTotal, r.FailuresTotal, r.ShadowPending, r.LastRolloverSeconds)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Rollup records a committed rollup of items inputs.
func (r *Recorder) Rollup(level, reason string, items int, at time.Time) {
	if r == nil {
		return
	}
	r.RollupsTotal.WithLabelValues(level, reason).Inc()
	r.ItemsRolledTotal.WithLabelValues(level).Add(float64(items))
	r.LastRolloverSeconds.WithLabelValues(level).Set(float64(at.Unix()))
}

// Failure records a failed rollup.
func (r *Recorder) Failure(level, kind string) {
	if r == nil {
		return
	}
	r.FailuresTotal.WithLabelValues(level, kind).Inc()
}

// Pending records the size of a level's shadow.
func (r *Recorder) Pending(level string, n int) {
	if r == nil {
		return
	}
	r.ShadowPending.WithLabelValues(level).Set(float64(n))
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
