package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"tgisper/internal/asr"
	"tgisper/internal/audio"
	"tgisper/internal/bot"
	"tgisper/internal/config"
	"tgisper/internal/metrics"
	"tgisper/internal/queue"
	"tgisper/internal/storage"
	"tgisper/internal/worker"
	"tgisper/pkg/cache"
	"tgisper/pkg/logger"
	"tgisper/pkg/resilience"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting tgisper bot service")

	if *resetDB {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("POSTGRES_DSN environment variable is required for -reset-db")
		}
		logger.Info("Resetting database...")
		if err := storage.ResetMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	loader, err := audio.NewLoader(cfg.Audio.Decoder, cfg.Audio.SampleRate, audio.ExecRunner{})
	if err != nil {
		logger.Fatal("Failed to initialize audio loader", zap.Error(err))
	}

	opts := asr.Options{
		Model:      cfg.ASR.Model,
		Language:   cfg.ASR.Language,
		VADFilter:  cfg.ASR.VADFilter,
		BeamSize:   cfg.ASR.BeamSize,
		SampleRate: loader.SampleRate(),
	}
	engine, err := asr.New(cfg.ASR.Backend, cfg.ASR.URL, cfg.ASR.APIKey, opts, cfg.ASR.Timeout)
	if err != nil {
		logger.Fatal("Failed to initialize ASR engine", zap.Error(err))
	}

	if cfg.ASR.StartupCheck {
		checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
		err := asr.Check(checkCtx, engine)
		cancelCheck()
		if err != nil {
			logger.Fatal("ASR engine is not reachable", zap.String("url", cfg.ASR.URL), zap.Error(err))
		}
	}

	breaker := resilience.NewCircuitBreaker(cfg.ASR.BreakerFailures, cfg.ASR.BreakerTimeout,
		resilience.WithStateChange(func(from, to resilience.State) {
			logger.Warn("ASR circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}))
	transcriber := asr.Guard(engine, breaker)

	logger.Info("ASR engine configured",
		zap.String("backend", cfg.ASR.Backend),
		zap.String("url", cfg.ASR.URL),
		zap.String("model", cfg.ASR.Model))

	m := metrics.New(prometheus.DefaultRegisterer)
	metricsServer := metrics.NewServer(cfg.Metrics.Addr, prometheus.DefaultGatherer)

	b, err := bot.NewBot(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
	}

	procOpts := []worker.Option{worker.WithSeparator(cfg.ASR.JoinSeparator)}
	var closers []func()

	ctx := context.Background()

	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		closers = append(closers, func() { redisCache.Close() })
		procOpts = append(procOpts, worker.WithCache(redisCache, cfg.Redis.TTL))
		logger.Info("Redis connection established")
	}

	if cfg.Postgres.DSN != "" {
		db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		closers = append(closers, db.Close)
		procOpts = append(procOpts, worker.WithJournal(db))
		logger.Info("Database connection established")
	}

	if cfg.S3.Bucket != "" {
		s3, err := storage.NewS3Storage(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
		procOpts = append(procOpts, worker.WithArchive(s3))
		logger.Info("S3 archive enabled", zap.String("bucket", cfg.S3.Bucket))
	}

	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		closers = append(closers, func() { rabbitMQ.Close() })
		procOpts = append(procOpts, worker.WithPublisher(rabbitMQ))
		logger.Info("RabbitMQ connection established")
	}

	b.SetProcessor(worker.NewProcessor(b.Transport(), loader, transcriber, m, procOpts...))

	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting Telegram bot")
		b.Start()
	}()

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	b.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Failed to shut down metrics server", zap.Error(err))
	}

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}

	logger.Info("Bot service shutdown complete")
}
