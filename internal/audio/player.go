// Package audio plays synthesised waveforms on the default output device.
package audio

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

const (
	DefaultPlaybackRate = 44100
	FramesPerBuf        = 600 // one symbol at the default timing
	NumChannels         = 1
	// Headroom is the peak level waveforms are scaled to before playback.
	Headroom = 0.8
)

// Init initializes PortAudio.
func Init() error {
	return portaudio.Initialize()
}

// Terminate cleans up PortAudio.
func Terminate() error {
	return portaudio.Terminate()
}

// Player streams waveforms to the default output device.
type Player struct {
	rate   float64
	frames int
	logger *log.Logger

	mu sync.Mutex
}

// NewPlayer creates a player for the given output sample rate.
func NewPlayer(rate float64, logger *log.Logger) *Player {
	if !(rate > 0) {
		rate = DefaultPlaybackRate
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Player{rate: rate, frames: FramesPerBuf, logger: logger}
}

// Play writes samples to the default output stream in FramesPerBuf chunks,
// blocking until they are played or ctx is done. Only one waveform plays at a time.
func (p *Player) Play(ctx context.Context, samples []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]float32, p.frames)
	stream, err := portaudio.OpenDefaultStream(0, NumChannels, p.rate, p.frames, buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	chunks := Chunks(Normalize(samples, Headroom), p.frames)
	p.logger.Debug("playing waveform", "samples", len(samples), "rate", p.rate, "buffers", len(chunks))
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(buf, chunk)
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Normalize converts samples to float32 scaled so the largest magnitude equals peak.
// Silence is returned unscaled.
func Normalize(samples []float64, peak float64) []float32 {
	var maxAbs float64
	for _, s := range samples {
		maxAbs = math.Max(maxAbs, math.Abs(s))
	}
	gain := 1.0
	if maxAbs > 0 {
		gain = peak / maxAbs
	}
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s * gain)
	}
	return out
}

// Chunks splits samples into buffers of exactly frames samples, padding the
// last one with zeros.
func Chunks(samples []float32, frames int) [][]float32 {
	var out [][]float32
	for i := 0; i < len(samples); i += frames {
		chunk := make([]float32, frames)
		copy(chunk, samples[i:min(i+frames, len(samples))])
		out = append(out, chunk)
	}
	return out
}
