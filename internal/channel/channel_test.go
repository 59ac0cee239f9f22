package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/jeongseonghan/psklink/internal/modem"
)

func flatSignal(n int) *modem.Signal {
	sig := &modem.Signal{
		Timeline: make([]float64, n),
		Samples:  make([]float64, n),
		Padding:  2,
	}
	for i := range sig.Timeline {
		sig.Timeline[i] = float64(i) / 100
	}
	return sig
}

func TestChannel_SameSeedSameNoise(t *testing.T) {
	a := New(0.5, 42).Send(flatSignal(256))
	b := New(0.5, 42).Send(flatSignal(256))
	assert.Equal(t, a.Samples, b.Samples)

	c := New(0.5, 43).Send(flatSignal(256))
	assert.NotEqual(t, a.Samples, c.Samples)
}

func TestChannel_ZeroStrengthIsIdentity(t *testing.T) {
	ch := New(0, 1)

	sig := flatSignal(64)
	sig.Samples[3] = 0.75
	before := sig.Clone()
	ch.Send(sig)
	assert.Equal(t, before.Samples, sig.Samples)

	symbols := []complex128{1, 1i, -1, complex(0.3, -0.4)}
	assert.Equal(t, symbols, ch.AddSymbolNoise(symbols))
}

func TestChannel_NegativeStrengthIsZero(t *testing.T) {
	ch := New(-3, 1)
	assert.Zero(t, ch.Strength())

	ch.SetStrength(math.NaN())
	assert.Zero(t, ch.Strength())

	ch.SetStrength(0.25)
	assert.Equal(t, 0.25, ch.Strength())

	sig := flatSignal(32)
	ch.InjectWaveformNoise(sig, -1)
	assert.Equal(t, make([]float64, 32), sig.Samples)
}

func TestChannel_WaveformNoiseKeepsBookkeeping(t *testing.T) {
	sig := flatSignal(128)
	timeline := append([]float64(nil), sig.Timeline...)

	out := New(1, 7).Send(sig)
	require.Same(t, sig, out)
	assert.Equal(t, timeline, out.Timeline)
	assert.Equal(t, 2, out.Padding)
	assert.Len(t, out.Samples, 128)
	assert.Nil(t, New(1, 7).Send(nil))
}

func TestChannel_WaveformNoiseVariance(t *testing.T) {
	const n = 20000
	for _, s := range []float64{0.1, 0.5, 2} {
		sig := New(0, 99).InjectWaveformNoise(flatSignal(n), s)
		mean, variance := stat.MeanVariance(sig.Samples, nil)
		assert.InDelta(t, 0, mean, 4*s/math.Sqrt(n), "strength %v", s)
		assert.InEpsilon(t, s*s, variance, 0.05, "strength %v", s)
	}
}

func TestChannel_SymbolNoiseVariance(t *testing.T) {
	const n = 20000
	const s = 0.8
	symbols := make([]complex128, n)
	for i := range symbols {
		symbols[i] = 1
	}

	noisy := New(s, 5).AddSymbolNoise(symbols)
	require.Len(t, noisy, n)

	re := make([]float64, n)
	im := make([]float64, n)
	for i, z := range noisy {
		re[i] = real(z) - 1
		im[i] = imag(z)
	}
	_, vRe := stat.MeanVariance(re, nil)
	_, vIm := stat.MeanVariance(im, nil)
	assert.InEpsilon(t, s/2, vRe, 0.05)
	assert.InEpsilon(t, s/2, vIm, 0.05)
	assert.InDelta(t, 0, stat.Correlation(re, im, nil), 0.05)
}

func TestChannel_SymbolNoiseReturnsCopy(t *testing.T) {
	symbols := []complex128{1, -1, 1i}
	orig := append([]complex128(nil), symbols...)

	noisy := New(1, 3).InjectSymbolNoise(symbols, 1)
	assert.Equal(t, orig, symbols)
	assert.NotEqual(t, orig, noisy)
	assert.Empty(t, New(1, 3).AddSymbolNoise(nil))
}

func TestChannel_SymbolNoiseFlipsDecisions(t *testing.T) {
	cfg := modem.Config{Period: 6, SampleRate: 10, Amplitude: 1}
	mod, err := modem.NewModulator(cfg)
	require.NoError(t, err)
	demod, err := modem.NewDemodulator(cfg)
	require.NoError(t, err)

	bits := make([]byte, 400)
	for i := range bits {
		bits[i] = byte(i % 2)
	}
	sig, err := mod.Modulate(bits, modem.QPSK)
	require.NoError(t, err)

	clean, err := demod.Demodulate(sig, modem.QPSK, New(0, 1))
	require.NoError(t, err)
	assert.Equal(t, bits, clean)

	noisy, err := demod.Demodulate(sig, modem.QPSK, New(4, 1))
	require.NoError(t, err)
	assert.NotEqual(t, bits, noisy)
}
