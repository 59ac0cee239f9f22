package modem

// Signal is a synthesised waveform together with what a receiver needs to
// undo the transmitter's bookkeeping.
type Signal struct {
	Timeline []float64
	Samples  []float64

	// Order the waveform was modulated with.
	Order Order
	// Padding is the number of zero bits appended to fill the last symbol.
	Padding int
	// Config is the timing the waveform was synthesised with.
	Config Config
}

// Len returns the number of samples.
func (s *Signal) Len() int {
	return len(s.Samples)
}

// NumSymbols returns the number of complete symbol periods in the waveform.
func (s *Signal) NumSymbols() int {
	n := s.Config.SamplesPerSymbol()
	if n <= 0 {
		return 0
	}
	return len(s.Samples) / n
}

// Duration returns the length of the waveform in time units.
func (s *Signal) Duration() float64 {
	if s.Config.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / s.Config.SampleRate
}

// Clone returns a deep copy.
func (s *Signal) Clone() *Signal {
	out := *s
	out.Timeline = append([]float64(nil), s.Timeline...)
	out.Samples = append([]float64(nil), s.Samples...)
	return &out
}

// PaddingFor returns how many zero bits complete the last group of n bits.
func PaddingFor(n, width int) int {
	if width <= 0 {
		return 0
	}
	return (width - n%width) % width
}
