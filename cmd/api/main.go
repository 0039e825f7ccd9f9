package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/licitacao-pipeline/internal/config"
	"github.com/iago/licitacao-pipeline/internal/extractor"
	httpserver "github.com/iago/licitacao-pipeline/internal/http"
	"github.com/iago/licitacao-pipeline/internal/http/handlers"
	"github.com/iago/licitacao-pipeline/internal/pipeline"
	"github.com/iago/licitacao-pipeline/internal/queue"
	"github.com/iago/licitacao-pipeline/internal/repository"
	"github.com/iago/licitacao-pipeline/internal/rules"
	"github.com/iago/licitacao-pipeline/internal/worker"
)

func main() {
	loaded, dotEnvErr := config.LoadDotEnv(".env", ".env.local")
	cfg := config.Load()
	logger := newLogger(cfg)
	if dotEnvErr != nil {
		logger.Warn().Err(dotEnvErr).Msg("failed loading .env files")
	}
	if len(loaded) > 0 {
		logger.Info().Strs("files", loaded).Msg("environment files loaded")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ruleSet, err := loadRules(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("rules_file", cfg.RulesFile).Msg("failed loading rule data")
	}

	tasks, tasksCloser := setupTaskRepository(ctx, cfg, logger)
	defer tasksCloser()

	producer, consumer, streams, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	results, err := setupResultStore(ctx, cfg, streams, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("result_store", cfg.ResultStore).Msg("failed initializing result store")
	}

	orchestrator := pipeline.NewOrchestrator(
		tasks,
		results,
		producer,
		setupExtractor(cfg, logger),
		pipeline.NewAnalyzer(ruleSet),
		pipeline.NewHTTPNotifier(cfg.CallbackTimeout(), nil),
		pipeline.Config{StoragePrefix: cfg.StoragePrefix},
		logger,
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool := worker.NewPool(consumer, orchestrator.Run, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		OnPanic:     orchestrator.Fail,
	}, logger)
	pool.Start(workerCtx)
	logger.Info().Int("concurrency", pool.Concurrency()).Msg("worker pool started")

	api := handlers.NewAPI(orchestrator, handlers.Limits{
		MaxFileSize: cfg.MaxFileSize,
		MaxPages:    cfg.MaxPages,
	}, logger).WithBackends(handlers.Backends{
		Queue:   backendName(producer),
		Tasks:   backendName(tasks),
		Results: backendName(results),
	})

	handler := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api listening")
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Wait blocks until running handlers observe the cancellation and return.
	stopWorkers()
	pool.Wait()
	logger.Info().Msg("worker pool stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if strings.EqualFold(cfg.LogFormat, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "licitacao-pipeline").Logger()
}

func loadRules(cfg config.Config) (*rules.Set, error) {
	set := rules.Default()
	if cfg.RulesFile != "" {
		loaded, err := rules.Load(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		set = loaded
	}
	set.Quality.Thresholds = rules.Thresholds{
		Excellent: cfg.QualityThresholdExcellent,
		Good:      cfg.QualityThresholdGood,
		Fair:      cfg.QualityThresholdFair,
	}
	return set, set.Validate()
}

func setupTaskRepository(
	ctx context.Context,
	cfg config.Config,
	logger zerolog.Logger,
) (repository.TaskRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info().Msg("DATABASE_URL not configured, using in-memory task repository")
		return repository.NewMemoryTaskRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresTaskRepository(ctx, cfg.DatabaseURL)
	if err == nil {
		err = pgRepo.EnsureSchema(ctx)
		if err != nil {
			pgRepo.Close()
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize postgres task repository, fallback to memory")
		return repository.NewMemoryTaskRepository(), func() {}
	}
	logger.Info().Msg("postgres task repository initialized")
	return pgRepo, pgRepo.Close
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger zerolog.Logger,
) (queue.Producer, queue.Consumer, *queue.StreamsQueue, func()) {
	if cfg.RedisAddr == "" {
		logger.Info().Int("capacity", cfg.QueueCapacity).Msg("REDIS_ADDR not configured, using local queue")
		local := queue.NewLocalQueue(cfg.QueueCapacity, logger)
		return local, local, nil, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Stream:    cfg.RedisStream,
		DLQStream: cfg.RedisDLQ,
		Group:     cfg.RedisGroup,
		Consumer:  cfg.RedisConsumer,
		Capacity:  cfg.QueueCapacity,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize redis streams queue, fallback to local")
		local := queue.NewLocalQueue(cfg.QueueCapacity, logger)
		return local, local, nil, func() {}
	}
	logger.Info().Str("stream", cfg.RedisStream).Msg("redis streams queue initialized")
	return streams, streams, streams, func() {
		_ = streams.Close()
	}
}

func setupResultStore(
	ctx context.Context,
	cfg config.Config,
	streams *queue.StreamsQueue,
	logger zerolog.Logger,
) (repository.ResultStore, error) {
	switch cfg.ResultStore {
	case config.ResultStoreRedis:
		if streams == nil {
			return nil, errors.New("redis result store needs a reachable REDIS_ADDR")
		}
		logger.Info().Dur("ttl", cfg.ResultTTL()).Msg("redis result store initialized")
		return repository.NewRedisResultStore(streams.Client(), cfg.ResultTTL()), nil
	case config.ResultStoreMinio:
		store, err := repository.NewMinioResultStore(repository.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("minio result store initialized")
		return store, nil
	default:
		logger.Info().Msg("using in-memory result store")
		return repository.NewMemoryResultStore(), nil
	}
}

func backendName(backend any) string {
	switch backend.(type) {
	case *queue.StreamsQueue:
		return "redis_streams"
	case *queue.LocalQueue:
		return "local"
	case *repository.PostgresTaskRepository:
		return "postgres"
	case *repository.RedisResultStore:
		return "redis"
	case *repository.MinioResultStore:
		return "minio"
	default:
		return "memory"
	}
}

func setupExtractor(cfg config.Config, logger zerolog.Logger) extractor.Extractor {
	if cfg.ExtractorURL == "" {
		logger.Warn().Msg("EXTRACTOR_URL not configured, only plain-text documents can be processed")
		return extractor.NewTextExtractor()
	}
	return extractor.NewHTTPClient(extractor.HTTPClientConfig{
		BaseURL:          cfg.ExtractorURL,
		APIKey:           cfg.ExtractorAPIKey,
		Timeout:          cfg.ExtractorTimeout(),
		MaxResponseBytes: cfg.ExtractorMaxBytes,
	})
}
