package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeongseonghan/psklink/internal/link"
)

// linkMetrics counts traffic through the server's links.
type linkMetrics struct {
	transmissions *prometheus.CounterVec
	bits          *prometheus.CounterVec
	bitErrors     *prometheus.CounterVec
	wsClients     prometheus.GaugeFunc
}

func newLinkMetrics(reg prometheus.Registerer, hub *WSHub) *linkMetrics {
	factory := promauto.With(reg)
	return &linkMetrics{
		transmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psklink_transmissions_total",
				Help: "Total number of transmissions run through the link",
			},
			[]string{"order", "domain"},
		),
		bits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psklink_bits_total",
				Help: "Total number of bits sent through the link",
			},
			[]string{"order"},
		),
		bitErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psklink_bit_errors_total",
				Help: "Total number of bits received in error",
			},
			[]string{"order"},
		),
		wsClients: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "psklink_websocket_clients",
				Help: "Number of connected websocket clients",
			},
			func() float64 { return float64(hub.Count()) },
		),
	}
}

func (m *linkMetrics) observe(domain link.NoiseDomain, res *link.Result) {
	order := res.Order.String()
	m.transmissions.WithLabelValues(order, string(domain)).Inc()
	m.bits.WithLabelValues(order).Add(float64(len(res.Sent)))
	m.bitErrors.WithLabelValues(order).Add(float64(res.BitErrors))
}
