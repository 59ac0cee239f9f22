// Package link runs bits through a complete transmitter, noisy channel and
// receiver.
package link

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jeongseonghan/psklink/internal/channel"
	"github.com/jeongseonghan/psklink/internal/modem"
)

// NoiseDomain selects where the channel adds noise.
type NoiseDomain string

const (
	// NoiseSymbol perturbs the complex symbol estimates before the decision.
	NoiseSymbol NoiseDomain = "symbol"
	// NoiseWaveform perturbs every waveform sample before detection.
	NoiseWaveform NoiseDomain = "waveform"
	// NoiseBoth applies both, at the same strength.
	NoiseBoth NoiseDomain = "both"
)

// ErrUnknownDomain is returned for an unrecognised noise domain name.
var ErrUnknownDomain = errors.New("unknown noise domain")

// ParseNoiseDomain parses a domain name case-insensitively. The empty string
// selects NoiseSymbol.
func ParseNoiseDomain(s string) (NoiseDomain, error) {
	d := NoiseDomain(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case "":
		return NoiseSymbol, nil
	case NoiseSymbol, NoiseWaveform, NoiseBoth:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

func (d NoiseDomain) waveform() bool { return d == NoiseWaveform || d == NoiseBoth }
func (d NoiseDomain) symbol() bool   { return d == NoiseSymbol || d == NoiseBoth }

// Options configures a Link.
type Options struct {
	Domain NoiseDomain
	Seed   uint64
	Logger *log.Logger
}

// Result describes one transmission.
type Result struct {
	Order modem.Order
	// Sent are the input bits; Received are the bits the receiver recovered.
	Sent     []byte
	Received []byte
	// BitErrors counts positions where Sent and Received differ.
	BitErrors int

	// Transmitted is the clean waveform, Channel the waveform after
	// waveform-domain noise. They share no memory.
	Transmitted *modem.Signal
	Channel     *modem.Signal
	Reception   *modem.Reception
}

// BER returns the fraction of sent bits received in error.
func (r *Result) BER() float64 {
	if len(r.Sent) == 0 {
		return 0
	}
	return float64(r.BitErrors) / float64(len(r.Sent))
}

// Link owns one modulator, channel and demodulator sharing a timing config.
// It is not safe for concurrent use.
type Link struct {
	mod     *modem.Modulator
	demod   *modem.Demodulator
	channel *channel.Channel
	domain  NoiseDomain
	logger  *log.Logger
}

// New creates a link for the given timing.
func New(cfg modem.Config, opts Options) (*Link, error) {
	domain, err := ParseNoiseDomain(string(opts.Domain))
	if err != nil {
		return nil, err
	}
	mod, err := modem.NewModulator(cfg)
	if err != nil {
		return nil, fmt.Errorf("create modulator: %w", err)
	}
	demod, err := modem.NewDemodulator(cfg)
	if err != nil {
		return nil, fmt.Errorf("create demodulator: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	demod.SetLogger(logger)

	return &Link{
		mod:     mod,
		demod:   demod,
		channel: channel.New(0, opts.Seed),
		domain:  domain,
		logger:  logger,
	}, nil
}

// Domain returns the link's noise domain.
func (l *Link) Domain() NoiseDomain {
	return l.domain
}

// Config returns the link's timing.
func (l *Link) Config() modem.Config {
	return l.mod.Config()
}

// Transmit modulates bits, passes them through the channel at the given
// noise strength and demodulates the result.
func (l *Link) Transmit(bits []byte, order modem.Order, strength float64) (*Result, error) {
	sig, err := l.mod.Modulate(bits, order)
	if err != nil {
		return nil, fmt.Errorf("modulate: %w", err)
	}

	l.channel.SetStrength(strength)
	rx := sig.Clone()
	if l.domain.waveform() {
		l.channel.Send(rx)
	}
	var noiser modem.SymbolNoiser
	if l.domain.symbol() {
		noiser = l.channel
	}

	rec, err := l.demod.Receive(rx, order, noiser)
	if err != nil {
		return nil, fmt.Errorf("demodulate: %w", err)
	}

	res := &Result{
		Order:       order,
		Sent:        bits,
		Received:    rec.Bits,
		BitErrors:   CountBitErrors(bits, rec.Bits),
		Transmitted: sig,
		Channel:     rx,
		Reception:   rec,
	}
	l.logger.Info("transmitted",
		"order", order,
		"bits", len(bits),
		"symbols", sig.NumSymbols(),
		"padding", sig.Padding,
		"noise", l.channel.Strength(),
		"domain", l.domain,
		"errors", res.BitErrors)
	return res, nil
}

// CountBitErrors counts differing positions over the shorter of a and b.
func CountBitErrors(a, b []byte) int {
	n := min(len(a), len(b))
	errs := 0
	for i := range n {
		if a[i]&1 != b[i]&1 {
			errs++
		}
	}
	return errs
}
