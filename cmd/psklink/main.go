package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/jeongseonghan/psklink/internal/audio"
	"github.com/jeongseonghan/psklink/internal/bitstream"
	"github.com/jeongseonghan/psklink/internal/config"
	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/logging"
	"github.com/jeongseonghan/psklink/internal/modem"
)

type options struct {
	bits  string
	file  string
	pbm   string
	scale int
	out   string
	play  bool
}

func main() {
	var opts options
	configPath := flag.StringP("config", "c", "", "YAML configuration file")
	flag.StringVar(&opts.bits, "bits", "", "Literal bit sequence to send, e.g. 1010100")
	flag.StringVar(&opts.file, "file", "", "Send the contents of a file")
	flag.StringVar(&opts.pbm, "pbm", "", "Send a plain PBM bitmap")
	flag.IntVar(&opts.scale, "scale", 1, "Enlarge the PBM bitmap before sending")
	flag.StringVarP(&opts.out, "out", "o", "", "Write what was received to this path")
	flag.BoolVar(&opts.play, "play", false, "Play the transmitted waveform")
	modulation := flag.StringP("modulation", "m", "", "BPSK, QPSK, 8PSK or 16PSK")
	noise := flag.Float64P("noise", "n", 0, "Noise strength")
	domain := flag.String("domain", "", "Noise domain: symbol, waveform or both")
	seed := flag.Uint64("seed", 0, "Noise seed")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := logging.New(os.Stderr, "psklink", log.InfoLevel)
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatal("failed to load config", "err", err)
		}
	}
	if flag.CommandLine.Changed("modulation") {
		order, err := modem.ParseOrder(*modulation)
		if err != nil {
			logger.Fatal("bad modulation", "err", err)
		}
		cfg.Order = order
	}
	if flag.CommandLine.Changed("noise") {
		cfg.Noise.Strength = *noise
	}
	if flag.CommandLine.Changed("domain") {
		cfg.Noise.Domain = link.NoiseDomain(*domain)
	}
	if flag.CommandLine.Changed("seed") {
		cfg.Noise.Seed = *seed
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, logger, os.Stdout); err != nil {
		logger.Fatal("transmission failed", "err", err)
	}
}

func run(ctx context.Context, opts options, cfg *config.Config, logger *log.Logger, stdout io.Writer) error {
	bits, bitmap, err := loadBits(opts)
	if err != nil {
		return err
	}

	l, err := link.New(cfg.Link, link.Options{
		Domain: cfg.Noise.Domain,
		Seed:   cfg.Noise.Seed,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	res, err := l.Transmit(bits, cfg.Order, cfg.Noise.Strength)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "modulation: %s\n", cfg.Order)
	fmt.Fprintf(stdout, "noise:      %g (%s)\n", cfg.Noise.Strength, cfg.Noise.Domain)
	fmt.Fprintf(stdout, "bits:       %d (+%d padding, %d symbols, %d samples)\n",
		len(bits), res.Transmitted.Padding, res.Transmitted.NumSymbols(), res.Transmitted.Len())
	fmt.Fprintf(stdout, "errors:     %d (BER %.4g)\n", res.BitErrors, res.BER())
	if opts.bits != "" {
		fmt.Fprintf(stdout, "sent:       %s\n", bitstream.FormatBits(res.Sent))
		fmt.Fprintf(stdout, "received:   %s\n", bitstream.FormatBits(res.Received))
	}

	if opts.out != "" {
		if err := writeReceived(opts, bitmap, res.Received); err != nil {
			return err
		}
		logger.Info("wrote received data", "path", opts.out)
	}

	if opts.play {
		if err := audio.Init(); err != nil {
			return fmt.Errorf("initialize audio: %w", err)
		}
		defer audio.Terminate()
		player := audio.NewPlayer(cfg.Audio.PlaybackRate, logger)
		if err := player.Play(ctx, res.Transmitted.Samples); err != nil {
			return fmt.Errorf("play: %w", err)
		}
	}
	return nil
}

func loadBits(opts options) ([]byte, *bitstream.Bitmap, error) {
	sources := 0
	for _, s := range []string{opts.bits, opts.file, opts.pbm} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return nil, nil, errors.New("exactly one of --bits, --file or --pbm is required")
	}

	switch {
	case opts.bits != "":
		bits, err := bitstream.ParseBits(opts.bits)
		return bits, nil, err
	case opts.file != "":
		bits, err := bitstream.ReadFile(opts.file)
		return bits, nil, err
	}

	f, err := os.Open(opts.pbm)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	bitmap, err := bitstream.ReadPBM(f)
	if err != nil {
		return nil, nil, err
	}
	if opts.scale > 1 {
		if bitmap, err = bitmap.Scale(opts.scale); err != nil {
			return nil, nil, err
		}
	}
	bits, err := bitmap.Bits()
	return bits, bitmap, err
}

func writeReceived(opts options, sent *bitstream.Bitmap, received []byte) error {
	switch {
	case sent != nil:
		bitmap, err := bitstream.BitmapFromBits(received)
		if err != nil {
			return err
		}
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		if err := bitmap.WritePBM(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case opts.file != "":
		return bitstream.WriteFile(opts.out, received)
	default:
		return os.WriteFile(opts.out, []byte(bitstream.FormatBits(received)+"\n"), 0644)
	}
}
