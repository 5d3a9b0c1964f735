// feedtest subscribes to one or more leader trade feeds and streams
// normalized trades to the console, bypassing dedup and submission.
// Usage: go run ./cmd/feedtest --config configs/replicator.local.yaml --leaders 0xabc,0xdef
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/polymirror/engine/internal/config"
	"github.com/polymirror/engine/internal/feed"
	"github.com/polymirror/engine/internal/model"
)

// staticLeaders serves a fixed leader set from the command line.
type staticLeaders struct {
	leaders []model.LeaderAccount
}

func (s *staticLeaders) ActiveLeaders() []model.LeaderAccount {
	return s.leaders
}

func main() {
	configPath := flag.String("config", "configs/replicator.example.yaml", "path to config file")
	leaderList := flag.String("leaders", "", "comma-separated leader account ids")
	verbose := flag.Bool("verbose", false, "print full trade JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *leaderList == "" {
		logger.Error("at least one leader id is required, pass --leaders")
		os.Exit(1)
	}

	source := &staticLeaders{}
	for _, id := range strings.Split(*leaderList, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			source.leaders = append(source.leaders, model.LeaderAccount{ID: id, Address: id, Active: true})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	feedCfg := feed.DefaultIngestorConfig(cfg.Exchange.WSURL)
	if cfg.Feed.BufferSize > 0 {
		feedCfg.BufferSize = cfg.Feed.BufferSize
	}
	if cfg.Dedup.CompositeBucket > 0 {
		feedCfg.CompositeBucket = cfg.Dedup.CompositeBucket
	}

	ingestor := feed.NewIngestor(feedCfg, source, logger)

	logger.Info("starting feed ingestor",
		"ws_url", feedCfg.WSURL,
		"leaders", len(source.leaders),
	)
	if err := ingestor.Start(ctx); err != nil {
		logger.Error("failed to start feed ingestor", "error", err)
		os.Exit(1)
	}

	// Console printer
	go func() {
		for trade := range ingestor.Trades() {
			if *verbose {
				data, _ := json.MarshalIndent(trade, "", "  ")
				fmt.Printf("[TRADE] %s\n", data)
			} else {
				fmt.Printf("[TRADE] leader=%s market=%s side=%s price=%s size=%s fp=%s\n",
					trade.LeaderID, trade.Market, trade.Side, trade.Price, trade.Size, trade.Fingerprint)
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := ingestor.Stats()
				logger.Info("stats",
					"watchers", stats.Watchers,
					"connected", stats.Connected,
					"events", stats.Events,
					"malformed", stats.Malformed,
					"reconnects", stats.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	ingestor.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}
