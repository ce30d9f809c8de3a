package syncer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks sync passes. A nil *Metrics records nothing.
type Metrics struct {
	changes     *prometheus.CounterVec
	passes      *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errandsync",
			Name:      "sync_changes_total",
			Help:      "Changes applied by sync passes, by action and outcome.",
		}, []string{"action", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "errandsync",
			Name:      "sync_passes_total",
			Help:      "Sync passes by outcome.",
		}, []string{"outcome"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "errandsync",
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Unix time of the last pass that finished without failures.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.changes, m.passes, m.lastSuccess)
	}
	return m
}

func (m *Metrics) record(r Report, err error, now time.Time) {
	if m == nil {
		return
	}
	for _, res := range r.Results {
		c, cerr := res.Get()
		if cerr != nil {
			var ce *ChangeError
			if errors.As(cerr, &ce) {
				m.changes.WithLabelValues(string(ce.Change.Action), "error").Inc()
			}
			continue
		}
		m.changes.WithLabelValues(string(c.Action), "ok").Inc()
	}
	switch {
	case err != nil:
		m.passes.WithLabelValues("error").Inc()
	case len(r.Errors()) > 0:
		m.passes.WithLabelValues("partial").Inc()
	default:
		m.passes.WithLabelValues("ok").Inc()
		m.lastSuccess.Set(float64(now.Unix()))
	}
}
