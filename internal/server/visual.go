package server

import (
	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/modem"
)

// maxPlotPoints bounds every array sent to websocket clients.
const maxPlotPoints = 2000

// IQ is a complex value in JSON-friendly form.
type IQ struct {
	I float64 `json:"i"`
	Q float64 `json:"q"`
}

// SignalPayload carries a decimated waveform before and after the channel.
type SignalPayload struct {
	Order       string    `json:"order"`
	SampleRate  float64   `json:"sampleRate"`
	Step        int       `json:"step"`
	Samples     int       `json:"samples"`
	Transmitted []float64 `json:"transmitted"`
	Received    []float64 `json:"received"`
}

// ConstellationPayload carries the nominal phases and the symbol estimates.
type ConstellationPayload struct {
	Order     string `json:"order"`
	Reference []IQ   `json:"reference"`
	Clean     []IQ   `json:"clean"`
	Noisy     []IQ   `json:"noisy"`
	Groups    []int  `json:"groups"`
}

func signalPayload(res *link.Result) SignalPayload {
	tx, step := decimate(res.Transmitted.Samples, maxPlotPoints)
	rx, _ := decimate(res.Channel.Samples, maxPlotPoints)
	return SignalPayload{
		Order:       res.Order.String(),
		SampleRate:  res.Transmitted.Config.SampleRate,
		Step:        step,
		Samples:     res.Transmitted.Len(),
		Transmitted: tx,
		Received:    rx,
	}
}

func constellationPayload(res *link.Result) (ConstellationPayload, error) {
	a, err := modem.NewAlphabet(res.Order)
	if err != nil {
		return ConstellationPayload{}, err
	}
	ref := make([]IQ, int(res.Order))
	for k := range ref {
		ref[k] = toIQ(a.Symbol(a.GroupAt(k)))
	}
	n := min(len(res.Reception.Symbols), maxPlotPoints)
	return ConstellationPayload{
		Order:     res.Order.String(),
		Reference: ref,
		Clean:     toIQs(res.Reception.Symbols[:n]),
		Noisy:     toIQs(res.Reception.Noisy[:n]),
		Groups:    res.Reception.Groups[:n],
	}, nil
}

// decimate keeps every step-th sample so that at most limit remain.
func decimate(samples []float64, limit int) ([]float64, int) {
	step := 1
	if len(samples) > limit {
		step = (len(samples) + limit - 1) / limit
	}
	out := make([]float64, 0, (len(samples)+step-1)/step)
	for i := 0; i < len(samples); i += step {
		out = append(out, samples[i])
	}
	return out, step
}

func toIQ(z complex128) IQ {
	return IQ{I: real(z), Q: imag(z)}
}

func toIQs(zs []complex128) []IQ {
	out := make([]IQ, len(zs))
	for i, z := range zs {
		out[i] = toIQ(z)
	}
	return out
}
