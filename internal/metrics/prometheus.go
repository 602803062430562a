package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using the Prometheus client library.
type PrometheusSink struct {
	callsTotal       *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
}

// NewPrometheusSink creates a sink and registers its collectors on reg. When
// reg already holds the relay collectors, the sink records through those.
// Other registration failures are logged and the collector keeps working unregistered.
func NewPrometheusSink(reg prometheus.Registerer, lg *zap.Logger) *PrometheusSink {
	if lg == nil {
		lg = zap.NewNop()
	}

	return &PrometheusSink{
		callsTotal: register(reg, lg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_calls_total",
			Help: "Provider call attempts by outcome.",
		}, []string{"outcome"})),
		rejectionsTotal: register(reg, lg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_requests_rejected_total",
			Help: "Call requests rejected before reaching the provider.",
		}, []string{"reason"})),
		providerDuration: register(reg, lg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_provider_call_duration_seconds",
			Help:    "Latency of provider call placement in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, lg *zap.Logger, c C) C {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	lg.Warn("metrics: register collector", zap.Error(err))
	return c
}

func (s *PrometheusSink) ProviderCallCompleted(outcome string, duration time.Duration) {
	s.callsTotal.WithLabelValues(outcome).Inc()
	s.providerDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (s *PrometheusSink) RequestRejected(reason string) {
	s.rejectionsTotal.WithLabelValues(reason).Inc()
}
