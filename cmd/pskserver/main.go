package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"

	"github.com/jeongseonghan/psklink/internal/audio"
	"github.com/jeongseonghan/psklink/internal/config"
	"github.com/jeongseonghan/psklink/internal/logging"
	"github.com/jeongseonghan/psklink/internal/server"
)

func main() {
	configPath := flag.StringP("config", "c", "", "YAML configuration file")
	addr := flag.String("addr", "", "Server address (overrides server.addr)")
	uploadDir := flag.String("upload-dir", "", "Upload directory (overrides server.upload_dir)")
	receiveDir := flag.String("receive-dir", "", "Receive directory (overrides server.receive_dir)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	enableAudio := flag.Bool("audio", false, "Allow clients to play waveforms on this machine")
	listDevices := flag.Bool("list-devices", false, "List audio devices and exit")
	flag.Parse()

	logger := logging.New(os.Stderr, "pskserver", log.InfoLevel)
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatal("failed to load config", "err", err)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *uploadDir != "" {
		cfg.Server.UploadDir = *uploadDir
	}
	if *receiveDir != "" {
		cfg.Server.ReceiveDir = *receiveDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	logger.SetLevel(cfg.Level())

	var player server.Player
	if *enableAudio || *listDevices {
		if err := audio.Init(); err != nil {
			logger.Fatal("failed to initialize PortAudio", "err", err)
		}
		defer audio.Terminate()

		if *listDevices {
			if err := audio.PrintDevices(os.Stdout); err != nil {
				logger.Fatal("failed to list devices", "err", err)
			}
			return
		}
		player = audio.NewPlayer(cfg.Audio.PlaybackRate, logger)
	}

	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.ReceiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("failed to create directory", "dir", dir, "err", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handlers := server.NewHandlers(server.Options{
		Config:   cfg,
		Registry: reg,
		Logger:   logger,
		Player:   player,
	})
	srv := server.NewServer(cfg.Server.Addr, handlers, reg, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("link configured",
		"order", cfg.Order,
		"period", cfg.Link.Period,
		"sample_rate", cfg.Link.SampleRate,
		"noise", cfg.Noise.Strength,
		"domain", cfg.Noise.Domain)
	if err := srv.Start(); err != nil {
		logger.Fatal("server error", "err", err)
	}
	<-done
}
