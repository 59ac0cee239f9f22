package modem

import (
	"errors"
	"fmt"
	"math"
)

// Default link timing.
const (
	DefaultPeriod     = 6.0   // time units per symbol
	DefaultSampleRate = 100.0 // samples per time unit
	DefaultAmplitude  = 1.0
)

// minSamplesPerSymbol is the fewest samples that pin down a carrier's phase.
// With two, sin(π/4) and sin(3π/4) sample identically.
const minSamplesPerSymbol = 3

var (
	ErrUnknownOrder   = errors.New("unknown modulation order")
	ErrInvalidConfig  = errors.New("invalid link timing")
	ErrConfigMismatch = errors.New("signal timing does not match receiver")
	ErrOrderMismatch  = errors.New("signal order does not match receiver")
	ErrInvalidPadding = errors.New("invalid padding")
)

// Config holds the timing shared by a transmitter and its receiver.
// A waveform can only be decoded with the Config it was synthesised with.
type Config struct {
	Period     float64 `yaml:"period" json:"period"`
	SampleRate float64 `yaml:"sample_rate" json:"sampleRate"`
	Amplitude  float64 `yaml:"amplitude" json:"amplitude"`
}

// DefaultConfig returns the default timing: period 6, 100 samples per unit, amplitude 1.
func DefaultConfig() Config {
	return Config{
		Period:     DefaultPeriod,
		SampleRate: DefaultSampleRate,
		Amplitude:  DefaultAmplitude,
	}
}

// Validate checks that the timing describes at least three samples per symbol.
func (c Config) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"period", c.Period},
		{"sample rate", c.SampleRate},
		{"amplitude", c.Amplitude},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, f.name, f.value)
		}
	}
	if n := c.SamplesPerSymbol(); n < minSamplesPerSymbol {
		return fmt.Errorf("%w: %d samples per symbol, need at least %d", ErrInvalidConfig, n, minSamplesPerSymbol)
	}
	return nil
}

// SamplesPerSymbol returns the number of samples in one symbol period.
func (c Config) SamplesPerSymbol() int {
	return int(math.Round(c.Period * c.SampleRate))
}

// Frequency returns the carrier frequency, one cycle per symbol.
func (c Config) Frequency() float64 {
	return 1 / c.Period
}

// IsZero reports whether c is the zero value.
func (c Config) IsZero() bool {
	return c == Config{}
}

// carrier synthesises one symbol period of A·sin(2π·f·t + phase).
func (c Config) carrier(phase float64) []float64 {
	n := c.SamplesPerSymbol()
	f := c.Frequency()
	wave := make([]float64, n)
	for i := range wave {
		t := float64(i) / c.SampleRate
		wave[i] = c.Amplitude * math.Sin(2*math.Pi*f*t+phase)
	}
	return wave
}
