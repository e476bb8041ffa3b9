package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/consumer"
	importhandler "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("tmserver failed", "error", err)
		os.Exit(1)
	}
	slog.Info("tmserver stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	locales, err := locale.NewTable(cfg.Locales.Supported...)
	if err != nil {
		return err
	}

	engine, err := indexer.NewEngine(cfg.Index, indexer.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	stats := engine.Stats()
	slog.Info("index ready",
		"units", stats.Units,
		"generation", stats.Generation,
		"segments", stats.Segments,
		"data_dir", cfg.Index.DataDir,
		"persist", cfg.Index.Persist,
	)
	flushDone := engine.StartFlushLoop(ctx)
	defer func() {
		stop()
		<-flushDone
		if err := engine.Close(); err != nil {
			slog.Error("closing index", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		st := engine.Stats()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d units, generation %d", st.Units, st.Generation)}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis, "tm")
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Ping(false, redisClient.Ping))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var (
		importLedger consumer.Ledger
		summarizer   importhandler.Summarizer
	)
	if cfg.Postgres.Enabled {
		db, err := postgres.Connect(ctx, cfg.Postgres, resilience.RetryConfig{})
		if err != nil {
			return fmt.Errorf("connecting to import ledger: %w", err)
		}
		defer db.Close()
		l, err := ledger.New(ctx, db)
		if err != nil {
			return err
		}
		importLedger, summarizer = l, l
		checker.Register("postgres", health.Ping(true, db.Ping))
	}

	var imports *importhandler.Handler
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.UnitImport)
		defer producer.Close()
		imports = importhandler.New(producer, locales, summarizer)

		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.UnitImport,
			consumer.HandleMessage(engine, importLedger, locales, m))
		defer kc.Close()
		go func() {
			if err := consumer.New(kc).Start(ctx); err != nil {
				slog.Error("import consumer error", "error", err)
			}
		}()
		slog.Info("import consumer started", "topic", cfg.Kafka.Topics.UnitImport, "group", cfg.Kafka.ConsumerGroup)
	}

	sc := scorer.New(cfg.Matching.OrderPenaltyFloor, cfg.Matching.CodeMismatchPenalty)
	svc := handler.NewService(engine, executor.New(engine, sc), queryCache, locales, m, cfg.Matching)
	svc.TraceSlowQueries(cfg.Server.SlowQuery)

	if cfg.RPC.Enabled {
		rpc := grpc.NewServer(cfg.RPC.Timeout)
		handler.RegisterRPC(rpc, svc, checker.Ready)
		if err := rpc.Listen(cfg.RPC.Addr); err != nil {
			return err
		}
		defer rpc.Stop()
		go func() {
			if err := rpc.Accept(); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	handler.New(svc).Register(mux)
	if imports != nil {
		imports.Register(mux)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
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

	slog.Info("tmserver listening", "addr", server.Addr, "rpc", cfg.RPC.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		return err
	}
	return nil
}
