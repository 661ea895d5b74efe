// streamtest connects one scanner table to the stream and prints decoded
// events and published views to the console.
// Usage: go run ./cmd/streamtest --config configs/scanner.yaml --table trending
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/config"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/loader"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/router"
	"github.com/rickgao/dex-scanner/internal/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	tableName := flag.String("table", "trending", "table to stream")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	top := flag.Int("top", 5, "rows to print per published view")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	var tc *config.TableConfig
	for i := range cfg.Tables {
		if cfg.Tables[i].Name == *tableName {
			tc = &cfg.Tables[i]
		}
	}
	if tc == nil {
		logger.Error("unknown table", "table", *tableName)
		os.Exit(1)
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

	sockCfg := connection.DefaultSocketConfig()
	sockCfg.Client.URL = cfg.API.WSURL
	sockCfg.Client.APIKey = cfg.API.APIKey
	socket := connection.NewSocket(sockCfg, logger)

	// Each frame is decoded twice: once for the engine, once for the console.
	rtr := router.NewRouter(router.RouterConfig{Table: tc.Name}, nil, logger)
	console := router.NewRouter(router.RouterConfig{Table: tc.Name}, nil, logger)
	socket.On(rtr.Handle)
	socket.On(console.Handle)

	engine := scanner.New(scanner.Config{
		Table:    tc.Name,
		Debounce: cfg.Scanner.Debounce,
		Sort:     tc.Filter.Sort(),
	}, socket, scanner.WithLogger(logger))

	engine.OnPublish(func(rows []model.Row) {
		fmt.Printf("[PUBLISH] rows=%d\n", len(rows))
		for i, r := range rows {
			if i >= *top {
				break
			}
			fmt.Printf("  %2d. %-10s %-6s price=%-14g mcap=%-14g vol=%g\n",
				i+1, r.TokenSymbol, r.Chain, r.PriceUsd, r.Mcap, r.VolumeUsd)
		}
	})
	socket.OnReconnect(func() {
		if err := engine.Resubscribe(ctx); err != nil {
			logger.Warn("resubscribe failed", "error", err)
		}
	})

	go engine.Consume(ctx, rtr.Events())
	go printEvents(ctx, console.Events(), *verbose)

	client := api.NewClient(cfg.API.RestURL, cfg.API.APIKey, api.WithLogger(logger))
	ldr := loader.New(loader.Config{Table: tc.Name}, client, engine, loader.WithLogger(logger))
	if err := ldr.SetFilter(ctx, tc.Filter); err != nil {
		logger.Error("initial snapshot failed", "error", err, "blocked", api.IsBlocked(err))
	}

	if err := engine.SetRealtime(ctx, true); err != nil {
		logger.Error("failed to enable realtime", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				routerStats := rtr.Stats()
				sockStats := socket.Stats()
				engStats := engine.Stats()
				logger.Info("stats",
					"socket", sockStats.State,
					"received", sockStats.Received,
					"sent", sockStats.Sent,
					"router_routed", routerStats.MessagesRouted,
					"parse_errors", routerStats.ParseErrors,
					"rows", engStats.Rows,
					"subscribed", engStats.Subscribed,
					"ticks", engStats.TicksApplied,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "table", tc.Name)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	engine.Close()
	socket.Disconnect()
	rtr.Close()
	console.Close()

	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, q *router.Queue[router.Event], verbose bool) {
	for {
		ev, ok := q.Pop(ctx)
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Printf("[%s] %s\n", ev.Kind, data)
			continue
		}

		switch ev.Kind {
		case router.KindTick:
			trade, ok := ev.Tick.LatestTrade()
			if !ok {
				fmt.Printf("[TICK] pair=%s outliers only\n", ev.Tick.Pair.Pair)
				continue
			}
			fmt.Printf("[TICK] pair=%s token=%s swaps=%d price=%s\n",
				ev.Tick.Pair.Pair, ev.Tick.Pair.Token, len(ev.Tick.Swaps), trade.PriceToken1Usd)
		case router.KindPairStats:
			ps := ev.PairStats.Pair
			fmt.Printf("[PAIR-STATS] pair=%s honeypot=%v verified=%v migration=%s\n",
				ps.PairAddress, ps.Token1IsHoneypot, ps.IsVerified, ev.PairStats.MigrationProgress)
		case router.KindScannerPairs:
			fmt.Printf("[SCANNER-PAIRS] pairs=%d\n", len(ev.Pairs))
		}
	}
}
