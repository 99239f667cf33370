package resolver

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	// enumeration failures: listing versions, experiments, runs or artifacts
	outcomeEnumerationError = "enumeration_error"
)

type metrics struct {
	attempts *prometheus.CounterVec
	loaded   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fraudd",
				Name:      "resolution_attempts_total",
				Help:      "Model resolution attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fraudd",
			Name:      "model_loaded",
			Help:      "1 if startup resolution produced a usable model, 0 otherwise",
		}),
	}
	reg.MustRegister(m.attempts, m.loaded)
	return m
}

// observe tolerates a nil receiver so the resolver works uninstrumented.
func (m *metrics) observe(strategy, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(strategy, outcome).Inc()
}

func (m *metrics) setLoaded(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.loaded.Set(1)
		return
	}
	m.loaded.Set(0)
}
