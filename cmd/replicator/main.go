package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/polymirror/engine/internal/api"
	"github.com/polymirror/engine/internal/auth"
	"github.com/polymirror/engine/internal/broadcast"
	"github.com/polymirror/engine/internal/config"
	"github.com/polymirror/engine/internal/database"
	"github.com/polymirror/engine/internal/dedup"
	"github.com/polymirror/engine/internal/engine"
	"github.com/polymirror/engine/internal/executor"
	"github.com/polymirror/engine/internal/feed"
	"github.com/polymirror/engine/internal/ledger"
	"github.com/polymirror/engine/internal/planner"
	"github.com/polymirror/engine/internal/subs"
	"github.com/polymirror/engine/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/replicator.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting replicator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"exchange_url", cfg.Exchange.RestURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database and make sure the tables exist
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Subscription store and cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	subStore := subs.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
	subCache := subs.NewCache(subs.CacheConfig{
		RefreshInterval: cfg.Engine.SubscriptionRefresh,
	}, subStore, logger)

	if err := subCache.Start(ctx); err != nil {
		logger.Error("failed to load subscriptions", "error", err)
		os.Exit(1)
	}
	defer stopComponent(subCache.Stop, "subscription cache", logger)

	logger.Info("subscriptions loaded",
		"leaders", len(subCache.ActiveLeaders()),
	)

	// Exchange client with signing credentials
	creds, err := auth.LoadCredentials(
		cfg.Exchange.Address,
		cfg.Exchange.APIKey,
		cfg.Exchange.APISecret,
		cfg.Exchange.Passphrase,
	)
	if err != nil {
		logger.Error("invalid exchange credentials", "error", err)
		os.Exit(1)
	}
	exchange := api.NewClient(
		cfg.Exchange.RestURL,
		creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Exchange.Timeout),
	)

	// Fingerprint store and retention sweeper
	fpStore := dedup.NewPostgresStore(pool)
	sweeper := dedup.NewSweeper(dedup.SweeperConfig{
		Interval:  cfg.Dedup.SweepInterval,
		Retention: cfg.Dedup.RetentionWindow,
	}, fpStore, logger)

	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}
	defer stopComponent(sweeper.Stop, "sweeper", logger)

	// Observer broadcast, optionally mirrored to Kafka
	hub := broadcast.NewHub(broadcast.HubConfig{
		ObserverQueueSize: cfg.Broadcast.ObserverQueueSize,
	}, logger)
	defer hub.Close()

	var sink broadcast.Sink = hub
	if cfg.Kafka.Enabled {
		kafkaSink := broadcast.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafkaSink.Close()
		sink = broadcast.Tee{hub, kafkaSink}
		logger.Info("kafka sink enabled", "topic", cfg.Kafka.Topic)
	}

	// Replica ledger and executor
	replicaLedger := ledger.NewPostgresLedger(pool)
	exec := executor.New(executor.Config{
		MaxAttempts: cfg.Executor.MaxAttempts,
		BackoffBase: cfg.Executor.BackoffBase,
		BackoffMax:  cfg.Executor.BackoffMax,
	}, replicaLedger, exchange, sink, logger)

	// Finish what a previous run left behind before taking new trades
	recovered, err := exec.Recover(ctx)
	if err != nil {
		logger.Error("failed to recover unresolved orders", "error", err)
		os.Exit(1)
	}
	if recovered > 0 {
		logger.Info("recovered unresolved orders", "count", recovered)
	}

	// Planner
	marketMins := make(map[string]decimal.Decimal, len(cfg.Planner.MarketMinSizes))
	for market := range cfg.Planner.MarketMinSizes {
		marketMins[market] = cfg.Planner.MinSizeFor(market)
	}
	pl := planner.New(planner.Config{
		DefaultMinSize: cfg.Planner.MinSizeFor(""),
		MarketMinSizes: marketMins,
	})

	// Leader feed ingestor
	feedCfg := feed.DefaultIngestorConfig(cfg.Exchange.WSURL)
	feedCfg.BufferSize = cfg.Feed.BufferSize
	feedCfg.ReconnectBaseDelay = cfg.Feed.ReconnectBaseDelay
	feedCfg.ReconnectMaxDelay = cfg.Feed.ReconnectMaxDelay
	feedCfg.PingInterval = cfg.Feed.PingInterval
	feedCfg.PingTimeout = cfg.Feed.ReadTimeout
	feedCfg.CompositeBucket = cfg.Dedup.CompositeBucket

	ingestor := feed.NewIngestor(feedCfg, subCache, logger)
	if err := ingestor.Start(ctx); err != nil {
		logger.Error("failed to start feed ingestor", "error", err)
		os.Exit(1)
	}
	defer stopComponent(ingestor.Stop, "feed ingestor", logger)

	// Replication engine
	eng := engine.New(engine.Config{
		Workers:          cfg.Engine.Workers,
		DispatchDepth:    cfg.Engine.DispatchDepth,
		FailureThreshold: cfg.Engine.FailureThreshold,
	}, ingestor, fpStore, subCache, pl, exec, sink, logger)

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	defer stopComponent(eng.Stop, "engine", logger)

	// Observer WebSocket endpoint
	observerMux := http.NewServeMux()
	observerMux.Handle("/ws", hub)
	observerServer := &http.Server{
		Addr:    cfg.Broadcast.ListenAddr,
		Handler: observerMux,
	}
	go func() {
		logger.Info("starting observer server", "addr", cfg.Broadcast.ListenAddr)
		if err := observerServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("observer server error", "error", err)
		}
	}()

	// Health endpoint
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pool, ingestor, eng, exec, hub, logger),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("replicator running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/healthz", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)
	observerServer.Shutdown(shutdownCtx)

	logger.Info("replicator stopped")
}

// stopComponent gives a component a bounded shutdown window.
func stopComponent(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("component shutdown failed", "component", name, "error", err)
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(
	pool *pgxpool.Pool,
	ingestor *feed.Ingestor,
	eng *engine.Engine,
	exec *executor.Executor,
	hub *broadcast.Hub,
	logger *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check feed
		feedStats := ingestor.Stats()
		health.Components["feed"] = feedStats
		if feedStats.Watchers > 0 && feedStats.Connected == 0 {
			health.Status = "degraded"
		}

		health.Components["engine"] = eng.Stats()
		health.Components["executor"] = exec.Stats()
		health.Components["broadcast"] = hub.Stats()

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"feed":      ingestor.Stats(),
			"engine":    eng.Stats(),
			"executor":  exec.Stats(),
			"broadcast": hub.Stats(),
		})
	})

	return mux
}
