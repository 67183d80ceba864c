package metrics

import (
	"context"
	"time"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counts events and observes load latency.
type Prometheus struct {
	// Events counts sunk events.
	// Labels: site, experiment, variant, event (exposures|conversions|...)
	Events *prometheus.CounterVec

	// LoadDuration measures the time from mount to READY in seconds.
	// Labels: site, outcome (ready|timeout|error)
	LoadDuration *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on reg.
// Pass prometheus.NewRegistry() in tests to avoid the global registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandit_events_total",
				Help: "Metric events sunk by mounted contexts.",
			},
			[]string{"site", "experiment", "variant", "event"},
		),
		LoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bandit_load_duration_seconds",
				Help:    "Time from mount to READY.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"site", "outcome"},
		),
	}
}

func (p *Prometheus) SinkEvent(snap domain.Snapshot, name string) {
	p.Events.WithLabelValues(snap.Site.Name, snap.Site.Experiment.ID, snap.Variant.Name, name).Inc()
}

// Flush is a no-op: counters are scraped, not pushed.
func (p *Prometheus) Flush(ctx context.Context, final bool) error {
	return nil
}

func (p *Prometheus) ObserveLoad(site, outcome string, d time.Duration) {
	p.LoadDuration.WithLabelValues(site, outcome).Observe(d.Seconds())
}
