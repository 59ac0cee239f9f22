package modem

import (
	"fmt"
)

// symbolTable caches, for one order, the alphabet and the single-period
// carrier of every constellation phase. carriers[k] belongs to region k.
type symbolTable struct {
	alphabet *Alphabet
	carriers [][]float64
}

func newSymbolTables(cfg Config) (map[Order]*symbolTable, error) {
	tables := make(map[Order]*symbolTable, len(Orders))
	for _, order := range Orders {
		alphabet, err := NewAlphabet(order)
		if err != nil {
			return nil, err
		}
		t := &symbolTable{
			alphabet: alphabet,
			carriers: make([][]float64, len(alphabet.phases)),
		}
		for k, phase := range alphabet.phases {
			t.carriers[k] = cfg.carrier(phase)
		}
		tables[order] = t
	}
	return tables, nil
}

// Modulator turns bit sequences into PSK waveforms.
type Modulator struct {
	cfg    Config
	tables map[Order]*symbolTable
}

// NewModulator creates a modulator for the given timing.
func NewModulator(cfg Config) (*Modulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tables, err := newSymbolTables(cfg)
	if err != nil {
		return nil, err
	}
	return &Modulator{cfg: cfg, tables: tables}, nil
}

// Config returns the modulator's timing.
func (m *Modulator) Config() Config {
	return m.cfg
}

// Modulate converts bits into a waveform, one symbol period per bit group.
// A short final group is completed with zero bits; the count is recorded in
// Signal.Padding. An empty bit sequence yields an empty signal.
func (m *Modulator) Modulate(bits []byte, order Order) (*Signal, error) {
	t, ok := m.tables[order]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, int(order))
	}

	width := order.BitsPerSymbol()
	padding := PaddingFor(len(bits), width)
	numSymbols := (len(bits) + padding) / width
	spp := m.cfg.SamplesPerSymbol()

	sig := &Signal{
		Timeline: make([]float64, numSymbols*spp),
		Samples:  make([]float64, numSymbols*spp),
		Order:    order,
		Padding:  padding,
		Config:   m.cfg,
	}

	group := make([]byte, width)
	for i := 0; i < numSymbols; i++ {
		clear(group)
		copy(group, bits[i*width:min((i+1)*width, len(bits))])
		region := t.alphabet.regions[t.alphabet.GroupOf(group)]
		copy(sig.Samples[i*spp:(i+1)*spp], t.carriers[region])
	}

	for i := range sig.Timeline {
		sig.Timeline[i] = float64(i) / m.cfg.SampleRate
	}

	return sig, nil
}
