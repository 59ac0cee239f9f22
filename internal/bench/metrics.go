package bench

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeongseonghan/psklink/internal/modem"
)

// Metrics exports sweep results. A nil *Metrics discards observations.
type Metrics struct {
	bitErrorRate *prometheus.GaugeVec
	meanErrors   *prometheus.GaugeVec
	trials       *prometheus.CounterVec
}

// NewMetrics creates the sweep metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bitErrorRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psklink_bench_bit_error_rate",
				Help: "Mean fraction of bits received in error at a noise level",
			},
			[]string{"order", "noise"},
		),
		meanErrors: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "psklink_bench_mean_bit_errors",
				Help: "Mean number of bit errors per transmission at a noise level",
			},
			[]string{"order", "noise"},
		),
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psklink_bench_trials_total",
				Help: "Total number of benchmark transmissions",
			},
			[]string{"order"},
		),
	}
}

// Observe records one finished noise level.
func (m *Metrics) Observe(order modem.Order, p Point) {
	if m == nil {
		return
	}
	noise := formatFloat(p.Noise)
	m.bitErrorRate.WithLabelValues(order.String(), noise).Set(p.BER)
	m.meanErrors.WithLabelValues(order.String(), noise).Set(p.MeanErrors)
	m.trials.WithLabelValues(order.String()).Add(float64(p.Trials))
}
