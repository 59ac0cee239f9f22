package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/jeongseonghan/psklink/internal/bench"
	"github.com/jeongseonghan/psklink/internal/bitstream"
	"github.com/jeongseonghan/psklink/internal/config"
	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/logging"
	"github.com/jeongseonghan/psklink/internal/modem"
)

func main() {
	configPath := flag.StringP("config", "c", "", "YAML configuration file")
	bitsFlag := flag.String("bits", "", "Literal bit sequence to send")
	file := flag.String("file", "", "Send the contents of a file")
	csvPath := flag.String("csv", "", "Write results to this path instead of stdout")
	modulation := flag.StringP("modulation", "m", "", "BPSK, QPSK, 8PSK or 16PSK")
	start := flag.Float64("start", 0, "First noise strength")
	end := flag.Float64("end", 0, "Last noise strength (inclusive)")
	step := flag.Float64("step", 0, "Noise increment")
	trials := flag.IntP("trials", "t", 0, "Transmissions per noise level")
	workers := flag.IntP("workers", "w", 0, "Noise levels run in parallel")
	domain := flag.String("domain", "", "Noise domain: symbol, waveform or both")
	seed := flag.Uint64("seed", 0, "Noise seed")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := logging.New(os.Stderr, "pskbench", log.InfoLevel)
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatal("failed to load config", "err", err)
		}
	}

	fs := flag.CommandLine
	if fs.Changed("modulation") {
		order, err := modem.ParseOrder(*modulation)
		if err != nil {
			logger.Fatal("bad modulation", "err", err)
		}
		cfg.Order = order
	}
	if fs.Changed("start") {
		cfg.Bench.Start = *start
	}
	if fs.Changed("end") {
		cfg.Bench.End = *end
	}
	if fs.Changed("step") {
		cfg.Bench.Step = *step
	}
	if fs.Changed("trials") {
		cfg.Bench.Trials = *trials
	}
	if fs.Changed("workers") {
		cfg.Bench.Workers = *workers
	}
	if fs.Changed("domain") {
		cfg.Noise.Domain = link.NoiseDomain(*domain)
	}
	if fs.Changed("seed") {
		cfg.Noise.Seed = *seed
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	logger.SetLevel(cfg.Level())

	bits, err := loadBits(*bitsFlag, *file)
	if err != nil {
		logger.Fatal("no input", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := io.Writer(os.Stdout)
	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			logger.Fatal("failed to create output", "err", err)
		}
		defer f.Close()
		out = f
	}

	if err := run(ctx, cfg, bits, logger, out); err != nil {
		logger.Fatal("benchmark failed", "err", err)
	}
}

func run(ctx context.Context, cfg *config.Config, bits []byte, logger *log.Logger, out io.Writer) error {
	sweep := cfg.Sweep()
	sweep.Logger = logger

	logger.Info("starting sweep",
		"order", sweep.Order,
		"bits", len(bits),
		"start", sweep.Start,
		"end", sweep.End,
		"step", sweep.Step,
		"trials", sweep.Trials,
		"domain", sweep.Domain)

	points, err := bench.Run(ctx, bits, sweep)
	if err != nil {
		return err
	}
	return bench.WriteCSV(out, points)
}

func loadBits(literal, file string) ([]byte, error) {
	switch {
	case literal != "" && file != "":
		return nil, errors.New("--bits and --file are mutually exclusive")
	case literal != "":
		return bitstream.ParseBits(literal)
	case file != "":
		return bitstream.ReadFile(file)
	}
	return nil, errors.New("one of --bits or --file is required")
}
