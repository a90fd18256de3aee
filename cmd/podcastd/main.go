// Podcastd turns a topic into a multi-speaker podcast: an LLM writes the
// script, a TTS provider voices each line in parallel, and ffmpeg merges the
// clips into one MP3 served back over HTTP.
//
// Usage:
//
//	podcastd [flags]
//	podcastd --config /path/to/podcastd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nadzzz/podcastd/docs"
	"github.com/nadzzz/podcastd/internal/config"
	"github.com/nadzzz/podcastd/internal/health"
	"github.com/nadzzz/podcastd/internal/jobs"
	"github.com/nadzzz/podcastd/internal/llm/openai"
	"github.com/nadzzz/podcastd/internal/media"
	"github.com/nadzzz/podcastd/internal/pipeline"
	"github.com/nadzzz/podcastd/internal/storage"
	"github.com/nadzzz/podcastd/internal/transport"
	grpctransport "github.com/nadzzz/podcastd/internal/transport/grpc"
	httptransport "github.com/nadzzz/podcastd/internal/transport/http"
	"github.com/nadzzz/podcastd/internal/tts"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/podcastd.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("podcastd %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("podcastd starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("podcastd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("podcastd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Artifact store.
	var store storage.Store
	switch cfg.Storage.Backend {
	case "nats":
		ns, err := storage.ConnectNATS(ctx, cfg.Storage.NATS.URL, cfg.Storage.NATS.Bucket)
		if err != nil {
			return err
		}
		defer ns.Close()
		store = ns
		slog.Info("using NATS object store", "url", cfg.Storage.NATS.URL, "bucket", cfg.Storage.NATS.Bucket)
	default:
		ls, err := storage.NewLocal(cfg.Storage.Dir)
		if err != nil {
			return err
		}
		store = ls
		slog.Info("using local artifact store", "dir", cfg.Storage.Dir)
	}

	tool, err := media.New(cfg.Media)
	if err != nil {
		return err
	}

	defaultCreds, err := readOptional(cfg.TTS.ProvidersFile)
	if err != nil {
		return err
	}

	registry := tts.DefaultRegistry()
	runner := pipeline.New(openai.NewFactory(cfg.LLM), tool, tool, store, cfg.TTS.RetryBaseDelay)
	orch := jobs.New(runner, registry, tool, store, jobs.NewNotifier(cfg.Jobs.Callback), jobs.Options{
		ProviderDir:        cfg.TTS.ConfigDir,
		DefaultCredentials: defaultCreds,
		Settings:           tts.Settings{RequestTimeout: cfg.TTS.RequestTimeout},
		MaxAttempts:        cfg.TTS.MaxRetries,
		DefaultThreads:     cfg.TTS.DefaultThreads,
		MaxThreads:         cfg.TTS.MaxThreads,
		Retention:          cfg.Jobs.Retention,
	})
	go orch.RunSweeper(ctx, cfg.Jobs.SweepInterval, tool.WorkDir())

	// Dependency probes shared by /readyz and the gRPC health service.
	probeStore := func(ctx context.Context) error {
		_, err := store.Exists(ctx, "healthcheck")
		return err
	}
	probeFFmpeg := func(context.Context) error {
		_, err := exec.LookPath(cfg.Media.FFmpeg)
		return err
	}

	// Start health check server.
	healthServer := health.New(cfg.Server.HealthPort)
	healthServer.AddCheck("store", probeStore)
	healthServer.AddCheck("ffmpeg", probeFFmpeg)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	// Initialize enabled transports.
	var transports []transport.Transport
	var grpcT *grpctransport.Transport

	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(httptransport.Options{
			Port:        cfg.Transports.HTTP.Port,
			MaxFormMB:   cfg.Transports.HTTP.MaxFormMB,
			Auth:        cfg.Auth,
			ProviderDir: cfg.TTS.ConfigDir,
		}, orch, store, registry))
	}
	if cfg.Transports.GRPC.Enabled {
		grpcT = grpctransport.New(cfg.Transports.GRPC.Port)
		transports = append(transports, grpcT)
	}

	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	// Start all transports.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	healthServer.SetReady(true)
	if grpcT != nil {
		grpcT.SetServing(true)
		go grpcT.Watch(ctx, 15*time.Second, func(ctx context.Context) error {
			return errors.Join(probeStore(ctx), probeFFmpeg(ctx))
		})
	}
	slog.Info("podcastd ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"providers", registry.List())

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs did not drain", "error", err)
	}
	return nil
}

// readOptional returns the file's contents, or nil if it does not exist.
func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("default tts credentials file not found", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tts credentials: %w", err)
	}
	return data, nil
}
