package modem

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// SymbolNoiser perturbs a sequence of complex symbol estimates.
type SymbolNoiser interface {
	AddSymbolNoise(symbols []complex128) []complex128
}

// Reception is everything the receiver derived from one signal.
type Reception struct {
	Bits []byte
	// Symbols are the per-window estimates before channel noise.
	Symbols []complex128
	// Noisy are the estimates the decisions were made on.
	Noisy  []complex128
	Groups []int
	// Degenerate counts windows without energy that fell back to the first phase.
	Degenerate int
}

// Demodulator recovers bits from PSK waveforms.
type Demodulator struct {
	cfg       Config
	tables    map[Order]*symbolTable
	detectors map[Order]detector
	logger    *log.Logger
}

// NewDemodulator creates a demodulator for the given timing.
func NewDemodulator(cfg Config) (*Demodulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tables, err := newSymbolTables(cfg)
	if err != nil {
		return nil, err
	}

	d := &Demodulator{
		cfg:       cfg,
		tables:    tables,
		detectors: make(map[Order]detector, len(tables)),
		logger:    log.New(io.Discard),
	}
	for order, t := range tables {
		if order == BPSK {
			d.detectors[order] = t.arcCosine(cfg.carrier(0))
		} else {
			d.detectors[order] = t.maxCorrelation()
		}
	}
	return d, nil
}

// SetLogger sets the logger used for diagnostics.
func (d *Demodulator) SetLogger(logger *log.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Config returns the demodulator's timing.
func (d *Demodulator) Config() Config {
	return d.cfg
}

// Demodulate converts a waveform back to the bits it was modulated from.
// noise, if not nil, is applied to the symbol estimates before the decision.
func (d *Demodulator) Demodulate(sig *Signal, order Order, noise SymbolNoiser) ([]byte, error) {
	rec, err := d.Receive(sig, order, noise)
	if err != nil {
		return nil, err
	}
	return rec.Bits, nil
}

// Receive demodulates a waveform and returns the intermediate symbol estimates
// along with the bits. A signal whose Order or Config is the zero value is
// accepted as-is; otherwise both must match the receiver.
func (d *Demodulator) Receive(sig *Signal, order Order, noise SymbolNoiser) (*Reception, error) {
	t, ok := d.tables[order]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, int(order))
	}
	if sig.Order != 0 && sig.Order != order {
		return nil, fmt.Errorf("%w: signal is %s, receiver is %s", ErrOrderMismatch, sig.Order, order)
	}
	if !sig.Config.IsZero() && sig.Config != d.cfg {
		return nil, fmt.Errorf("%w: signal %+v, receiver %+v", ErrConfigMismatch, sig.Config, d.cfg)
	}
	width := order.BitsPerSymbol()
	if sig.Padding < 0 || sig.Padding >= width {
		return nil, fmt.Errorf("%w: %d bits for %s", ErrInvalidPadding, sig.Padding, order)
	}

	spp := d.cfg.SamplesPerSymbol()
	numSymbols := len(sig.Samples) / spp
	detect := d.detectors[order]

	rec := &Reception{
		Symbols: make([]complex128, numSymbols),
		Groups:  make([]int, numSymbols),
	}
	for i := range numSymbols {
		z, ok := detect(sig.Samples[i*spp : (i+1)*spp])
		if !ok {
			rec.Degenerate++
			d.logger.Debug("degenerate symbol window", "symbol", i, "order", order)
		}
		rec.Symbols[i] = z
	}

	if noise != nil {
		rec.Noisy = noise.AddSymbolNoise(rec.Symbols)
		if len(rec.Noisy) != numSymbols {
			return nil, fmt.Errorf("symbol noise returned %d symbols, want %d", len(rec.Noisy), numSymbols)
		}
	} else {
		rec.Noisy = append([]complex128(nil), rec.Symbols...)
	}

	bits := make([]byte, 0, numSymbols*width)
	for i, z := range rec.Noisy {
		group := t.alphabet.DecideSymbol(z)
		rec.Groups[i] = group
		bits = append(bits, t.alphabet.GroupBits(group)...)
	}

	if sig.Padding > len(bits) {
		return nil, fmt.Errorf("%w: %d bits but only %d recovered", ErrInvalidPadding, sig.Padding, len(bits))
	}
	rec.Bits = bits[:len(bits)-sig.Padding]

	if rec.Degenerate > 0 {
		d.logger.Warn("signal contained degenerate windows", "count", rec.Degenerate, "symbols", numSymbols)
	}
	return rec, nil
}
