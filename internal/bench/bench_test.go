package bench

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/modem"
)

var testConfig = modem.Config{Period: 6, SampleRate: 10, Amplitude: 1}

func testBits() []byte {
	bits := make([]byte, 40)
	for i := range bits {
		bits[i] = byte((i*7 + i/5) % 2)
	}
	return bits
}

func TestSweep_Levels(t *testing.T) {
	levels, err := Sweep{Start: 0, End: 0.3, Step: 0.1}.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 4)
	assert.InDelta(t, 0.3, levels[3], 1e-12)

	levels, err = Sweep{Start: 0.5, End: 0.5, Step: 0.1}.Levels()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, levels)

	for _, bad := range []Sweep{
		{Start: 0, End: 1, Step: 0},
		{Start: 1, End: 0, Step: 0.1},
		{Start: -1, End: 1, Step: 0.1},
		{Start: 0, End: 1e9, Step: 1e-6},
	} {
		_, err := bad.Levels()
		assert.ErrorIs(t, err, ErrInvalidSweep, "%+v", bad)
	}
}

func TestRun_PointsInLevelOrder(t *testing.T) {
	var calls []int
	points, err := Run(context.Background(), testBits(), Sweep{
		Order:   modem.QPSK,
		Start:   0,
		End:     2,
		Step:    0.5,
		Trials:  20,
		Workers: 3,
		Seed:    1,
		Domain:  link.NoiseSymbol,
		Config:  testConfig,
		Progress: func(done, total int, _ Point) {
			assert.Equal(t, 5, total)
			calls = append(calls, done)
		},
	})
	require.NoError(t, err)
	require.Len(t, points, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)

	for i, p := range points {
		assert.InDelta(t, 0.5*float64(i), p.Noise, 1e-12)
		assert.Equal(t, 20, p.Trials)
		assert.LessOrEqual(t, float64(p.MinErrors), p.MeanErrors)
		assert.GreaterOrEqual(t, float64(p.MaxErrors), p.MeanErrors)
		assert.InDelta(t, p.MeanErrors/40, p.BER, 1e-12)
	}
	assert.Zero(t, points[0].MaxErrors)
	assert.Greater(t, points[4].MeanErrors, points[0].MeanErrors)
}

func TestRun_Deterministic(t *testing.T) {
	s := Sweep{Order: modem.PSK8, Start: 0.2, End: 0.6, Step: 0.2, Trials: 10, Seed: 7, Config: testConfig}
	a, err := Run(context.Background(), testBits(), s)
	require.NoError(t, err)
	s.Workers = 1
	b, err := Run(context.Background(), testBits(), s)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	ok := Sweep{Order: modem.BPSK, Start: 0, End: 1, Step: 0.5, Trials: 1, Config: testConfig}

	_, err := Run(ctx, nil, ok)
	assert.ErrorIs(t, err, ErrNoBits)

	bad := ok
	bad.Trials = 0
	_, err = Run(ctx, testBits(), bad)
	assert.ErrorIs(t, err, ErrInvalidSweep)

	bad = ok
	bad.Order = modem.Order(7)
	_, err = Run(ctx, testBits(), bad)
	assert.ErrorIs(t, err, modem.ErrUnknownOrder)

	bad = ok
	bad.Domain = "nowhere"
	_, err = Run(ctx, testBits(), bad)
	assert.ErrorIs(t, err, link.ErrUnknownDomain)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testBits(), Sweep{Order: modem.QPSK, Start: 0, End: 1, Step: 0.1, Trials: 50, Config: testConfig})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV(t *testing.T) {
	points := []Point{
		{Noise: 0, Trials: 10, MeanErrors: 0, MinErrors: 0, MaxErrors: 0, BER: 0},
		{Noise: 0.25, Trials: 10, MeanErrors: 1.5, MinErrors: 0, MaxErrors: 4, BER: 0.0375},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, points))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"0.25", "10", "1.5", "0", "4", "0.0375"}, rows[2])
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	_, err := Run(context.Background(), testBits(), Sweep{
		Order: modem.BPSK, Start: 0, End: 0.5, Step: 0.5, Trials: 4, Config: testConfig, Metrics: m,
	})
	require.NoError(t, err)

	assert.Equal(t, 8.0, testutil.ToFloat64(m.trials.WithLabelValues("BPSK")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.bitErrorRate.WithLabelValues("BPSK", "0")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.meanErrors))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.Observe(modem.BPSK, Point{}) })
}
