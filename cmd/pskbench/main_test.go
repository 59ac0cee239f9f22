package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeongseonghan/psklink/internal/config"
	"github.com/jeongseonghan/psklink/internal/modem"
)

func TestRun_WritesCSV(t *testing.T) {
	cfg := config.Default()
	cfg.Link = modem.Config{Period: 6, SampleRate: 10, Amplitude: 1}
	cfg.Order = modem.BPSK
	cfg.Bench = config.BenchConfig{Start: 0, End: 0.2, Step: 0.1, Trials: 3, Workers: 2}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, []byte{1, 0, 1, 1, 0, 0, 1}, log.New(io.Discard), &out))

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "noise", rows[0][0])
	assert.Equal(t, []string{"0", "3", "0", "0", "0", "0"}, rows[1])
}

func TestLoadBits(t *testing.T) {
	bits, err := loadBits("101", "")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1}, bits)

	_, err = loadBits("", "")
	assert.Error(t, err)
	_, err = loadBits("1", "f")
	assert.Error(t, err)
}
