// Package bench measures how bit errors grow with channel noise.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/modem"
)

var (
	ErrInvalidSweep = errors.New("invalid sweep")
	ErrNoBits       = errors.New("nothing to transmit")
)

const (
	// levelSeedStep spreads per-level seeds apart.
	levelSeedStep = 0x9e3779b97f4a7c15
	maxLevels     = 100000
)

// Sweep describes a range of noise strengths to test one order at.
type Sweep struct {
	Order modem.Order
	// Start and End bound the noise strengths; End is included.
	Start float64
	End   float64
	Step  float64
	// Trials is the number of transmissions per level.
	Trials int
	// Workers bounds how many levels run at once. Zero uses GOMAXPROCS.
	Workers int
	Seed    uint64
	Domain  link.NoiseDomain
	Config  modem.Config

	// Progress, if set, is called once per finished level. Calls are serialised.
	Progress func(done, total int, p Point)
	Metrics  *Metrics
	Logger   *log.Logger
}

// Point summarises all trials at one noise strength.
type Point struct {
	Noise      float64 `json:"noise"`
	Trials     int     `json:"trials"`
	MeanErrors float64 `json:"meanErrors"`
	MinErrors  int     `json:"minErrors"`
	MaxErrors  int     `json:"maxErrors"`
	BER        float64 `json:"ber"`
}

// Levels returns the noise strengths the sweep visits.
func (s Sweep) Levels() ([]float64, error) {
	if !(s.Step > 0) || math.IsInf(s.Step, 0) {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidSweep, s.Step)
	}
	if s.Start < 0 || s.End < s.Start || math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.End, 0) {
		return nil, fmt.Errorf("%w: range [%v, %v]", ErrInvalidSweep, s.Start, s.End)
	}
	if (s.End-s.Start)/s.Step >= maxLevels {
		return nil, fmt.Errorf("%w: more than %d levels", ErrInvalidSweep, maxLevels)
	}
	eps := s.Step * 1e-9
	var levels []float64
	for i := 0; ; i++ {
		v := s.Start + float64(i)*s.Step
		if v > s.End+eps {
			break
		}
		levels = append(levels, math.Min(v, s.End))
	}
	return levels, nil
}

func (s Sweep) validate() error {
	if !s.Order.Valid() {
		return fmt.Errorf("%w: %d", modem.ErrUnknownOrder, int(s.Order))
	}
	if s.Trials < 1 {
		return fmt.Errorf("%w: %d trials", ErrInvalidSweep, s.Trials)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: %d workers", ErrInvalidSweep, s.Workers)
	}
	return nil
}

// Run transmits bits Trials times at every level of the sweep and returns one
// point per level, in level order.
func Run(ctx context.Context, bits []byte, s Sweep) ([]Point, error) {
	if len(bits) == 0 {
		return nil, ErrNoBits
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	levels, err := s.Levels()
	if err != nil {
		return nil, err
	}
	if s.Config.IsZero() {
		s.Config = modem.DefaultConfig()
	}
	logger := s.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	workers := s.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	points := make([]Point, len(levels))
	var (
		mu   sync.Mutex
		done int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, noise := range levels {
		g.Go(func() error {
			l, err := link.New(s.Config, link.Options{
				Domain: s.Domain,
				Seed:   s.Seed + uint64(i)*levelSeedStep,
			})
			if err != nil {
				return err
			}
			p, err := runLevel(ctx, l, bits, s.Order, noise, s.Trials)
			if err != nil {
				return fmt.Errorf("noise %v: %w", noise, err)
			}
			points[i] = p
			s.Metrics.Observe(s.Order, p)

			mu.Lock()
			defer mu.Unlock()
			done++
			logger.Info("noise level done",
				"order", s.Order,
				"noise", noise,
				"mean_errors", p.MeanErrors,
				"ber", p.BER,
				"progress", fmt.Sprintf("%d/%d", done, len(levels)))
			if s.Progress != nil {
				s.Progress(done, len(levels), p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func runLevel(ctx context.Context, l *link.Link, bits []byte, order modem.Order, noise float64, trials int) (Point, error) {
	p := Point{Noise: noise, Trials: trials, MinErrors: math.MaxInt}
	total := 0
	for range trials {
		if err := ctx.Err(); err != nil {
			return Point{}, err
		}
		res, err := l.Transmit(bits, order, noise)
		if err != nil {
			return Point{}, err
		}
		total += res.BitErrors
		p.MinErrors = min(p.MinErrors, res.BitErrors)
		p.MaxErrors = max(p.MaxErrors, res.BitErrors)
	}
	p.MeanErrors = float64(total) / float64(trials)
	p.BER = p.MeanErrors / float64(len(bits))
	return p, nil
}
