package modem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testConfig keeps windows short: 60 samples per symbol.
var testConfig = Config{Period: 6, SampleRate: 10, Amplitude: 1}

func newPair(t testing.TB, cfg Config) (*Modulator, *Demodulator) {
	t.Helper()
	mod, err := NewModulator(cfg)
	require.NoError(t, err)
	demod, err := NewDemodulator(cfg)
	require.NoError(t, err)
	return mod, demod
}

// rotator turns every symbol by a fixed angle.
type rotator float64

func (r rotator) AddSymbolNoise(symbols []complex128) []complex128 {
	out := make([]complex128, len(symbols))
	rot := complex(math.Cos(float64(r)), math.Sin(float64(r)))
	for i, s := range symbols {
		out[i] = s * rot
	}
	return out
}

func TestModem_ScenarioBPSK(t *testing.T) {
	mod, demod := newPair(t, DefaultConfig())
	bits := []byte{1, 0, 1, 0, 1, 0, 0}

	sig, err := mod.Modulate(bits, BPSK)
	require.NoError(t, err)
	assert.Equal(t, 0, sig.Padding)
	assert.Equal(t, 7, sig.NumSymbols())
	assert.Equal(t, 7*600, sig.Len())

	out, err := demod.Demodulate(sig, BPSK, nil)
	require.NoError(t, err)
	assert.Equal(t, bits, out)
}

func TestModem_ScenarioQPSK(t *testing.T) {
	mod, demod := newPair(t, DefaultConfig())
	bits := []byte{1, 0, 1, 0, 1, 0, 0}

	sig, err := mod.Modulate(bits, QPSK)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Padding)
	assert.Equal(t, 4, sig.NumSymbols())

	rec, err := demod.Receive(sig, QPSK, nil)
	require.NoError(t, err)
	assert.Equal(t, bits, rec.Bits)
	assert.Equal(t, []int{0b10, 0b10, 0b10, 0b00}, rec.Groups)
	assert.Zero(t, rec.Degenerate)
}

func TestModem_RoundTripPadding(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	for _, order := range Orders {
		width := order.BitsPerSymbol()
		for extra := 0; extra < width; extra++ {
			n := 4*width + extra
			bits := make([]byte, n)
			for i := range bits {
				bits[i] = byte((i*5 + i/3) % 2)
			}

			sig, err := mod.Modulate(bits, order)
			require.NoError(t, err)
			assert.Equal(t, PaddingFor(n, width), sig.Padding, "%s n=%d", order, n)

			out, err := demod.Demodulate(sig, order, nil)
			require.NoError(t, err)
			assert.Equal(t, bits, out, "%s n=%d", order, n)
		}
	}
}

func TestModem_16PSKPaddingCounts(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	tests := []struct {
		n       int
		padding int
	}{
		{8, 0},
		{7, 1},
		{6, 2},
		{5, 3},
		{1, 3},
	}
	for _, tt := range tests {
		bits := make([]byte, tt.n)
		for i := range bits {
			bits[i] = 1
		}
		sig, err := mod.Modulate(bits, PSK16)
		require.NoError(t, err)
		assert.Equal(t, tt.padding, sig.Padding, "n=%d", tt.n)

		out, err := demod.Demodulate(sig, PSK16, nil)
		require.NoError(t, err)
		assert.Equal(t, bits, out, "n=%d", tt.n)
	}
}

func TestModem_RoundTripProperty(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	rapid.Check(t, func(t *rapid.T) {
		order := rapid.SampledFrom(Orders).Draw(t, "order")
		bits := rapid.SliceOfN(rapid.ByteRange(0, 1), 0, 48).Draw(t, "bits")

		sig, err := mod.Modulate(bits, order)
		require.NoError(t, err)
		require.Equal(t, sig.NumSymbols()*order.BitsPerSymbol(), len(bits)+sig.Padding)

		out, err := demod.Demodulate(sig, order, nil)
		require.NoError(t, err)
		require.Len(t, out, len(bits))
		require.Equal(t, bits, out)
	})
}

func TestModulate_Empty(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	for _, order := range Orders {
		sig, err := mod.Modulate(nil, order)
		require.NoError(t, err)
		assert.Zero(t, sig.Len())
		assert.Zero(t, sig.NumSymbols())
		assert.Zero(t, sig.Padding)
		assert.Empty(t, sig.Timeline)

		out, err := demod.Demodulate(sig, order, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestModulate_Waveform(t *testing.T) {
	mod, err := NewModulator(testConfig)
	require.NoError(t, err)

	// QPSK group 01 sits at 3π/4, group 00 at π/4.
	sig, err := mod.Modulate([]byte{0, 1, 0, 0}, QPSK)
	require.NoError(t, err)

	spp := testConfig.SamplesPerSymbol()
	require.Equal(t, 2*spp, sig.Len())
	for i := 0; i < spp; i++ {
		tm := float64(i) / testConfig.SampleRate
		assert.InDelta(t, math.Sin(2*math.Pi*tm/6+3*math.Pi/4), sig.Samples[i], 1e-12)
		assert.InDelta(t, math.Sin(2*math.Pi*tm/6+math.Pi/4), sig.Samples[spp+i], 1e-12)
	}
}

func TestModulate_Timeline(t *testing.T) {
	mod, err := NewModulator(DefaultConfig())
	require.NoError(t, err)

	sig, err := mod.Modulate([]byte{1, 1, 0}, BPSK)
	require.NoError(t, err)

	require.Len(t, sig.Timeline, sig.Len())
	assert.Equal(t, 0.0, sig.Timeline[0])
	assert.InDelta(t, 0.01, sig.Timeline[1], 1e-12)
	assert.Less(t, sig.Timeline[len(sig.Timeline)-1], 6.0*3)
	assert.InDelta(t, 18.0, sig.Duration(), 1e-12)
}

func TestModulate_UnknownOrder(t *testing.T) {
	mod, err := NewModulator(testConfig)
	require.NoError(t, err)

	_, err = mod.Modulate([]byte{1}, Order(32))
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestDemodulate_DegenerateWindows(t *testing.T) {
	_, demod := newPair(t, testConfig)
	spp := testConfig.SamplesPerSymbol()

	tests := []struct {
		order Order
		want  []byte
	}{
		{BPSK, []byte{1, 1}},
		{QPSK, []byte{0, 0, 0, 0}},
		{PSK16, []byte{0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		sig := &Signal{Samples: make([]float64, 2*spp)}
		rec, err := demod.Receive(sig, tt.order, nil)
		require.NoError(t, err, tt.order)
		assert.Equal(t, 2, rec.Degenerate, tt.order)
		assert.Equal(t, tt.want, rec.Bits, tt.order)
		for _, z := range rec.Symbols {
			assert.False(t, math.IsNaN(real(z)) || math.IsNaN(imag(z)))
		}
	}
}

func TestDemodulate_NonFiniteWindows(t *testing.T) {
	_, demod := newPair(t, testConfig)
	spp := testConfig.SamplesPerSymbol()

	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		for _, order := range Orders {
			samples := make([]float64, 3*spp)
			for i := range samples {
				samples[i] = bad
			}
			rec, err := demod.Receive(&Signal{Samples: samples}, order, nil)
			require.NoError(t, err, order)
			assert.Equal(t, 3, rec.Degenerate, "%s %v", order, bad)
			for _, z := range rec.Symbols {
				assert.False(t, math.IsNaN(real(z)) || math.IsNaN(imag(z)), "%s %v", order, bad)
			}
		}
	}
}

func TestDemodulate_RaggedTailIgnored(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	sig, err := mod.Modulate([]byte{1, 0, 0, 1}, QPSK)
	require.NoError(t, err)
	sig.Samples = append(sig.Samples, 0.5, -0.5, 0.25)

	out, err := demod.Demodulate(sig, QPSK, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 1}, out)
}

func TestDemodulate_AppliesSymbolNoise(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	bits := []byte{1, 0, 1, 1, 0}
	sig, err := mod.Modulate(bits, BPSK)
	require.NoError(t, err)

	rec, err := demod.Receive(sig, BPSK, rotator(math.Pi))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 0, 1}, rec.Bits)
	assert.NotEqual(t, rec.Symbols, rec.Noisy)

	// A quarter-region turn keeps every QPSK decision.
	qsig, err := mod.Modulate(bits, QPSK)
	require.NoError(t, err)
	out, err := demod.Demodulate(qsig, QPSK, rotator(math.Pi/8))
	require.NoError(t, err)
	assert.Equal(t, bits, out)

	// A full region turn moves every QPSK symbol to its counter-clockwise neighbour.
	out, err = demod.Demodulate(qsig, QPSK, rotator(math.Pi/2))
	require.NoError(t, err)
	assert.NotEqual(t, bits, out)
}

func TestDemodulate_Mismatches(t *testing.T) {
	mod, demod := newPair(t, testConfig)

	sig, err := mod.Modulate([]byte{1, 0, 1}, QPSK)
	require.NoError(t, err)

	_, err = demod.Demodulate(sig, PSK8, nil)
	assert.ErrorIs(t, err, ErrOrderMismatch)

	other, err := NewDemodulator(DefaultConfig())
	require.NoError(t, err)
	_, err = other.Demodulate(sig, QPSK, nil)
	assert.ErrorIs(t, err, ErrConfigMismatch)

	_, err = demod.Demodulate(sig, Order(6), nil)
	assert.ErrorIs(t, err, ErrUnknownOrder)

	bad := sig.Clone()
	bad.Padding = 2
	_, err = demod.Demodulate(bad, QPSK, nil)
	assert.ErrorIs(t, err, ErrInvalidPadding)

	empty := &Signal{Padding: 1}
	_, err = demod.Demodulate(empty, QPSK, nil)
	assert.ErrorIs(t, err, ErrInvalidPadding)
}

func TestDemodulate_ToleratesWaveformNoise(t *testing.T) {
	mod, demod := newPair(t, DefaultConfig())

	bits := []byte{0, 1, 1, 0, 1, 1, 1, 0, 0, 0, 1, 0}
	for _, order := range Orders {
		sig, err := mod.Modulate(bits, order)
		require.NoError(t, err)

		// Deterministic, zero-mean ripple well below the carrier.
		for i := range sig.Samples {
			sig.Samples[i] += 0.05 * math.Sin(float64(i)*1.7)
		}

		out, err := demod.Demodulate(sig, order, nil)
		require.NoError(t, err)
		assert.Equal(t, bits, out, order)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, 600, DefaultConfig().SamplesPerSymbol())

	bad := []Config{
		{},
		{Period: -1, SampleRate: 100, Amplitude: 1},
		{Period: 6, SampleRate: 0, Amplitude: 1},
		{Period: 6, SampleRate: 100, Amplitude: math.NaN()},
		{Period: 0.01, SampleRate: 100, Amplitude: 1},
		{Period: 1, SampleRate: 2, Amplitude: 1},
		{Period: 1, SampleRate: 2.4, Amplitude: 1},
	}
	for _, cfg := range bad {
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "%+v", cfg)
	}

	_, err := NewModulator(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewDemodulator(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestModem_RoundTripFewSamples(t *testing.T) {
	bits := make([]byte, 400)
	for i := range bits {
		bits[i] = byte((i*7 + i/5) % 2)
	}

	for _, rate := range []float64{3, 2.7, 4.4, 7.6, 16.4} {
		cfg := Config{Period: 1, SampleRate: rate, Amplitude: 1}
		require.NoError(t, cfg.Validate(), "rate %v", rate)
		mod, demod := newPair(t, cfg)

		for _, order := range Orders {
			sig, err := mod.Modulate(bits, order)
			require.NoError(t, err)

			out, err := demod.Demodulate(sig, order, nil)
			require.NoError(t, err)
			assert.Equal(t, bits, out, "rate %v %s", rate, order)
		}
	}
}

func TestSignal_Clone(t *testing.T) {
	mod, err := NewModulator(testConfig)
	require.NoError(t, err)

	sig, err := mod.Modulate([]byte{1, 0, 1}, PSK8)
	require.NoError(t, err)

	clone := sig.Clone()
	clone.Samples[0] = 42
	assert.NotEqual(t, 42.0, sig.Samples[0])
	assert.Equal(t, sig.Padding, clone.Padding)
	assert.Equal(t, sig.Config, clone.Config)
}
