package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/searcher/requests"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-server/pkg/redis"
)

const maxIngestLag = 10000

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	stopWords, err := tokenizer.NewStopWords(cfg.Search.StopWords)
	if err != nil {
		return fmt.Errorf("stop words: %w", err)
	}
	policy, err := indexer.ParsePolicy(cfg.Search.Policy)
	if err != nil {
		return err
	}
	engine := indexer.NewEngine(stopWords, indexer.WithWorkers(cfg.Search.Workers))
	exec := executor.New(engine, executor.Config{
		Workers:     cfg.Search.Workers,
		BucketCount: cfg.Search.BucketCount,
	})
	queue := requests.NewQueue(exec,
		requests.WithWindow(cfg.Search.RequestWindow),
		requests.WithMetrics(m),
	)
	slog.Info("search engine ready",
		"stop_words", stopWords.Len(),
		"policy", policy.String(),
		"request_window", queue.Window(),
	)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", engine.DocumentCount(), engine.Terms()),
		}
	})

	opts := []handler.Option{
		handler.WithMetrics(m),
		handler.WithDefaultPolicy(policy),
		handler.WithTracing(cfg.Tracing.Enabled),
	}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			checker.Register("redis", func(context.Context) health.ComponentHealth {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "unavailable at startup"}
			})
		} else {
			defer redisClient.Close()
			opts = append(opts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m)))
			checker.Register("redis", health.Ping("redis", 2*time.Second, health.StatusDegraded, redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, time.Second, m)
		collector.Start(ctx)
		opts = append(opts, handler.WithCollector(collector))
	}

	h := handler.New(engine, exec, queue, opts...)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Kafka.Enabled {
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer ingestProducer.Close()
		ingesthandler.New(publisher.New(ingestProducer)).Register(mux)

		onChange := func(ctx context.Context, event ingestion.IngestEvent) {
			h.InvalidateCache(ctx)
		}
		// Each replica holds the whole index, so it gets its own group and
		// replays the topic from the start.
		group := cfg.Kafka.ConsumerGroup + "-" + uuid.NewString()[:8]
		ingest := consumer.New(kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(engine, m, onChange),
			kafka.WithGroupID(group),
			kafka.FromBeginning(),
		))
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("ingest consumer stopped", "error", err)
			}
		}()
		checker.Register("kafka_ingest", func(context.Context) health.ComponentHealth {
			lag := ingest.Lag()
			if lag > maxIngestLag {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("lag %d", lag)}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("lag %d", lag)}
		})
		slog.Info("consuming documents from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", group,
		)
	}

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if collector != nil {
		collector.Close()
	}
	return nil
}
