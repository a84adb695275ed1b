// main package for the kokoro-service
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/kokoro-service/internal/config"
	"github.com/book-expert/kokoro-service/internal/core"
	"github.com/book-expert/kokoro-service/internal/metrics"
	"github.com/book-expert/kokoro-service/internal/objectstore"
	"github.com/book-expert/kokoro-service/internal/server"
	"github.com/book-expert/kokoro-service/internal/tts"
	"github.com/book-expert/kokoro-service/internal/tts/cache"
	"github.com/book-expert/kokoro-service/internal/tts/onnx"
	"github.com/book-expert/kokoro-service/internal/tts/phonemizer"
	"github.com/book-expert/kokoro-service/internal/tts/voices"
	"github.com/book-expert/kokoro-service/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// components holds everything built from the configuration.
type components struct {
	synthesizer *tts.Synthesizer
	engine      *onnx.Engine
	metrics     *metrics.Collector
}

func run(ctx context.Context) error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "kokoro-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}
	defer bootstrapLog.Close()

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, "kokoro-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Build the synthesis pipeline
	built, err := buildComponents(cfg, log)
	if err != nil {
		log.Error("Failed to initialize synthesis pipeline: %v", err)

		return err
	}
	defer closeQuietly(log, "inference engine", built.engine)

	// 5. Optional NATS job worker
	var natsWorker *worker.NatsWorker

	if cfg.NATS.URL != "" {
		var cleanup func()

		natsWorker, cleanup, err = buildWorker(ctx, cfg, built, log)
		if err != nil {
			log.Error("Failed to start NATS worker: %v", err)

			return err
		}
		defer cleanup()
	} else {
		log.Info("NATS_URL not set; job worker disabled")
	}

	// 6. HTTP API
	handler := server.NewHandler(
		built.metrics.Instrument(built.synthesizer, metrics.TransportHTTP),
		built.synthesizer,
		log,
		server.WithDefaultSpeed(cfg.TTS.DefaultSpeed),
	)
	router := server.NewRouter(handler, server.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		Metrics:        built.metrics.Handler(),
	}, log)
	httpServer := server.New(cfg.Addr(), router, cfg.ShutdownTimeout(), log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.Run(groupCtx)
	})

	if natsWorker != nil {
		group.Go(func() error {
			return natsWorker.Run(groupCtx)
		})
	}

	log.System("Kokoro service initialized. Listening on %s", cfg.Addr())

	err = group.Wait()
	if err != nil {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("Kokoro service stopped")

	return nil
}

// buildComponents loads the model, the phonemizer and the voice embeddings.
func buildComponents(cfg *config.Config, log *logger.Logger) (*components, error) {
	engine, err := onnx.New(onnx.Config{
		ModelPath:      voices.ModelPath(cfg.Assets.Path),
		LibraryPath:    cfg.Assets.OnnxLibraryPath,
		IntraOpThreads: cfg.Assets.IntraOpThreads,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference engine: %w", err)
	}

	espeak, err := phonemizer.New(phonemizer.Config{
		BinaryPath: cfg.Espeak.Path,
		DataPath:   cfg.Espeak.DataPath,
		ExtraArgs:  cfg.Espeak.ExtraArgs,
	}, log)
	if err != nil {
		closeQuietly(log, "inference engine", engine)

		return nil, fmt.Errorf("failed to create phonemizer: %w", err)
	}

	store := voices.NewStore(cfg.Assets.Path)

	if cfg.Assets.PreloadVoices {
		preloadErr := store.PreloadAll()
		if preloadErr != nil {
			log.Warn("Some voices failed to preload and will load on first use: %v", preloadErr)
		}

		log.Info("Preloaded %d of %d voices", len(store.Available()), len(voices.All()))
	}

	resultCache, err := cache.New(cfg.Cache.Capacity, cfg.CacheTTL())
	if err != nil {
		closeQuietly(log, "inference engine", engine)

		return nil, fmt.Errorf("failed to create synthesis cache: %w", err)
	}

	synthesizer := tts.New(espeak, engine, store, resultCache, log)

	collector := metrics.New()
	collector.RegisterCache(synthesizer.CacheStats)

	return &components{synthesizer: synthesizer, engine: engine, metrics: collector}, nil
}

// buildWorker connects to NATS and opens the configured object store.
func buildWorker(
	ctx context.Context,
	cfg *config.Config,
	built *components,
	log *logger.Logger,
) (*worker.NatsWorker, func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("kokoro-service"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	store, closeStore, err := buildObjectStore(ctx, cfg, natsConnection)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:        cfg.NATS.TextProcessedSubject,
		QueueGroup:     cfg.NATS.QueueGroup,
		ResultSubject:  cfg.NATS.AudioChunkCreatedSubject,
		DefaultVoice:   cfg.TTS.DefaultVoice,
		DefaultSpeed:   cfg.TTS.DefaultSpeed,
		MessageTimeout: cfg.JobTimeout(),
	}, store, built.metrics.Instrument(built.synthesizer, metrics.TransportNATS), log)
	if err != nil {
		closeQuietly(log, "object store", closeStore)
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create NATS worker: %w", err)
	}

	cleanup := func() {
		closeQuietly(log, "object store", closeStore)
		natsConnection.Close()
	}

	return natsWorker, cleanup, nil
}

// buildObjectStore opens the backend named by the configuration.
func buildObjectStore(
	ctx context.Context,
	cfg *config.Config,
	natsConnection *nats.Conn,
) (core.ObjectStore, io.Closer, error) {
	switch cfg.NATS.ObjectStoreBackend {
	case config.BackendRedis:
		store, err := objectstore.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.RedisObjectTTL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open redis object store: %w", err)
		}

		return store, store, nil
	default:
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}

		store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open NATS object store: %w", err)
		}

		return store, nil, nil
	}
}

func closeQuietly(log *logger.Logger, name string, closer io.Closer) {
	if closer == nil {
		return
	}

	err := closer.Close()
	if err != nil {
		log.Warn("Failed to close %s: %v", name, err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)

	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
