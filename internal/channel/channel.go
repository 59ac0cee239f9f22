// Package channel models an additive white Gaussian noise link, either on the
// raw waveform or on complex symbol estimates.
package channel

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jeongseonghan/psklink/internal/modem"
)

// pcgIncrement derives the second PCG seed word from the first.
const pcgIncrement = 0x9e3779b97f4a7c15

// Channel adds Gaussian noise drawn from a single seeded source.
// It is not safe for concurrent use.
type Channel struct {
	strength float64
	normal   distuv.Normal
}

// New creates a channel with a default noise strength and a deterministic seed.
func New(strength float64, seed uint64) *Channel {
	return &Channel{
		strength: sanitize(strength),
		normal: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   rand.NewPCG(seed, seed^pcgIncrement),
		},
	}
}

// Strength returns the channel's configured noise strength.
func (c *Channel) Strength() float64 {
	return c.strength
}

// SetStrength changes the configured noise strength.
func (c *Channel) SetStrength(strength float64) {
	c.strength = sanitize(strength)
}

// Send passes a waveform through the channel at its configured strength.
func (c *Channel) Send(sig *modem.Signal) *modem.Signal {
	return c.InjectWaveformNoise(sig, c.strength)
}

// InjectWaveformNoise adds strength·N(0, 1) to every sample in place.
// The timeline and padding are left untouched.
func (c *Channel) InjectWaveformNoise(sig *modem.Signal, strength float64) *modem.Signal {
	s := sanitize(strength)
	if sig == nil || s == 0 {
		return sig
	}
	for i := range sig.Samples {
		sig.Samples[i] += s * c.normal.Rand()
	}
	return sig
}

// InjectSymbolNoise returns a copy of symbols with complex Gaussian noise of
// total power strength added: N(0, strength/2) on each of the real and imaginary parts.
func (c *Channel) InjectSymbolNoise(symbols []complex128, strength float64) []complex128 {
	out := make([]complex128, len(symbols))
	copy(out, symbols)

	s := sanitize(strength)
	if s == 0 {
		return out
	}
	sigma := math.Sqrt(s / 2)
	for i := range out {
		out[i] += complex(sigma*c.normal.Rand(), sigma*c.normal.Rand())
	}
	return out
}

// AddSymbolNoise applies symbol noise at the configured strength.
// It makes a Channel usable as a modem.SymbolNoiser.
func (c *Channel) AddSymbolNoise(symbols []complex128) []complex128 {
	return c.InjectSymbolNoise(symbols, c.strength)
}

// sanitize maps negative and non-finite strengths to zero.
func sanitize(strength float64) float64 {
	if !(strength > 0) || math.IsInf(strength, 0) {
		return 0
	}
	return strength
}
