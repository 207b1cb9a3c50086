package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/utterance-capture/internal/audio"
	"github.com/skypro1111/utterance-capture/internal/capture"
	"github.com/skypro1111/utterance-capture/internal/config"
	"github.com/skypro1111/utterance-capture/internal/logging"
	"github.com/skypro1111/utterance-capture/internal/metrics"
	"github.com/skypro1111/utterance-capture/internal/server"
	"github.com/skypro1111/utterance-capture/internal/sink"
	"github.com/skypro1111/utterance-capture/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "utterance-capture"
	serviceVersion    = "1.0.0"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	if err := run(cfg, logger, *configPath); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, configPath string) error {
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("source", cfg.Capture.Source),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("block_samples", cfg.Capture.BlockSamples),
		slog.Int("amplitude_threshold", int(cfg.Segmentation.AmplitudeThreshold)),
		slog.Duration("silence_threshold", cfg.Segmentation.GetSilenceThreshold()),
		slog.String("output_dir", cfg.Sink.OutputDir),
		slog.Bool("transcription", cfg.Sink.Transcription.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	opener, err := newOpener(cfg.Capture, logger)
	if err != nil {
		return err
	}

	fileSink, err := sink.NewFileSink(cfg.Sink.OutputDir, cfg.Sink.KeepRecent, logger)
	if err != nil {
		return err
	}
	sinks := sink.Multi{sink.Instrument("file", fileSink, appMetrics)}

	var transcriber *transcription.Client
	if tc := cfg.Sink.Transcription; tc.Enabled {
		transcriber, err = transcription.NewClient(transcription.Config{
			Endpoint:   tc.Endpoint,
			APIKey:     tc.APIKey,
			Timeout:    tc.GetTimeoutDuration(),
			MaxRetries: tc.MaxRetries,
			Language:   tc.Language,
			Model:      tc.Model,
		}, appMetrics)
		if err != nil {
			return fmt.Errorf("failed to create transcription client: %w", err)
		}
		defer transcriber.Close()

		sinks = append(sinks, sink.Instrument("transcription", sink.NewTranscriptionSink(transcriber, logger), appMetrics))
		logger.Info("Transcription enabled", slog.String("endpoint", tc.Endpoint))
	}

	controller := capture.NewController(opener, sinks, capture.Config{QueueSize: cfg.Sink.QueueSize}, logger, appMetrics)
	defaults := paramsFromConfig(cfg)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, server.Deps{
			Config:     cfg,
			Recorder:   controller,
			Utterances: fileSink,
			Defaults:   defaults,
			Metrics:    appMetrics,
			Gatherer:   registry,
		})
		if err := httpServer.Start(); err != nil {
			controller.Close(context.Background())
			return err
		}
	}

	if cfg.Capture.Autostart {
		if err := controller.Start(defaults); err != nil {
			logger.Error("Failed to start recording", slog.String("error", err.Error()))
			if httpServer == nil {
				controller.Close(context.Background())
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Without the HTTP API nothing can restart a session, so the service
	// exits when the autostarted one ends.
	if httpServer == nil {
		g.Go(func() error {
			if err := controller.Wait(gctx); err == nil {
				logger.Info("Recording session ended, shutting down")
				stop()
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		// Stop HTTP server first (stop accepting new requests)
		if httpServer != nil {
			if err := httpServer.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stopping HTTP server: %w", err))
			}
		}

		// Flush pending speech and drain queued utterances
		if err := controller.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("closing capture controller: %w", err))
		}

		for _, err := range errs {
			logger.Error("Shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", httpAddr(httpServer)),
		slog.Bool("recording", controller.Running()),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	// Get final statistics
	status := controller.Status()
	attrs := []any{
		slog.Uint64("blocks_read", status.BlocksRead),
		slog.Uint64("read_errors", status.ReadErrors),
		slog.Uint64("utterances", status.Utterances),
		slog.Uint64("delivered", status.Delivered),
		slog.Uint64("delivery_failures", status.DeliveryFails),
		slog.Uint64("files_saved", fileSink.Saved()),
	}
	if transcriber != nil {
		stats := transcriber.GetStats()
		attrs = append(attrs,
			slog.Uint64("transcriptions", stats.SuccessRequests),
			slog.Uint64("transcription_failures", stats.FailedRequests),
		)
	}
	logger.Info("Final recorder statistics", attrs...)

	logger.Info("Service stopped")
	return nil
}

// newOpener returns the opener for the configured capture source
func newOpener(cfg config.CaptureConfig, logger *slog.Logger) (capture.Opener, error) {
	switch cfg.Source {
	case config.SourceUDP:
		return capture.UDPOpener{
			Config: capture.UDPConfig{
				Address:     cfg.UDPAddress,
				ReadTimeout: cfg.GetReadTimeout(),
			},
			Logger: logger,
		}, nil
	case config.SourceReader:
		return capture.ReaderOpener{
			Path:         cfg.InputPath,
			BlockSamples: cfg.BlockSamples,
			Realtime:     cfg.Realtime,
		}, nil
	case config.SourcePortAudio:
		if !capture.PortAudioAvailable {
			return nil, fmt.Errorf("source %q requires a build with -tags portaudio", cfg.Source)
		}
		return capture.PortAudioOpener{BlockSamples: cfg.BlockSamples}, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
	}
}

// paramsFromConfig builds the default session parameters
func paramsFromConfig(cfg *config.Config) capture.Params {
	return capture.Params{
		Format: audio.Format{
			SampleRate:    cfg.Capture.SampleRate,
			Channels:      cfg.Capture.Channels,
			BitsPerSample: cfg.Capture.BitDepth,
		},
		AmplitudeThreshold: cfg.Segmentation.AmplitudeThreshold,
		SilenceThreshold:   cfg.Segmentation.GetSilenceThreshold(),
	}
}

func httpAddr(h *server.HTTPServer) string {
	if h == nil {
		return "disabled"
	}
	return h.Addr()
}
