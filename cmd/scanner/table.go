package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/config"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/loader"
	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/router"
	"github.com/rickgao/dex-scanner/internal/scanner"
	"github.com/rickgao/dex-scanner/internal/writer"
)

// table is one independent scanner pipeline: its own stream connection,
// router, engine and loader.
type table struct {
	cfg    config.TableConfig
	logger *slog.Logger

	socket *connection.Socket
	router router.Router
	engine *scanner.Engine
	loader *loader.Loader

	retry     bool
	retryBase time.Duration
	retryMax  time.Duration

	detach []func()
	done   chan struct{}
}

func newTable(
	cfg *config.ScannerConfig,
	tc config.TableConfig,
	client *api.Client,
	m *metrics.Metrics,
	logger *slog.Logger,
) *table {
	logger = logger.With("table", tc.Name)

	sockCfg := connection.SocketConfig{
		Client: connection.ClientConfig{
			URL:              cfg.API.WSURL,
			APIKey:           cfg.API.APIKey,
			HandshakeTimeout: cfg.API.Timeout,
			PingInterval:     cfg.Stream.PingInterval,
			PingTimeout:      cfg.Stream.PingTimeout,
			WriteTimeout:     cfg.Stream.WriteTimeout,
			BufferSize:       cfg.Stream.BufferSize,
		},
		Reconnect:         *cfg.Stream.Reconnect,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxDelay,
	}
	socket := connection.NewSocket(sockCfg, logger)

	rtCfg := router.DefaultRouterConfig()
	rtCfg.Table = tc.Name
	rt := router.NewRouter(rtCfg, m, logger)

	engCfg := scanner.Config{
		Table:       tc.Name,
		Debounce:    cfg.Scanner.Debounce,
		FlashWindow: cfg.Scanner.FlashWindow,
		Strategy:    scanner.Strategy(cfg.Scanner.Strategy),
		Sort:        tc.Filter.Sort(),
	}
	engine := scanner.New(engCfg, socket,
		scanner.WithLogger(logger),
		scanner.WithMetrics(m),
	)

	ldr := loader.New(loader.Config{
		Table:           tc.Name,
		InitialPages:    cfg.Loader.InitialPages,
		RefreshInterval: cfg.Loader.RefreshInterval,
		Concurrency:     cfg.Loader.Concurrency,
		Timeout:         cfg.Loader.Timeout,
	}, client, engine,
		loader.WithLogger(logger),
		loader.WithMetrics(m),
	)

	return &table{
		cfg:    tc,
		logger: logger,
		socket: socket,
		router: rt,
		engine: engine,
		loader: ldr,

		retry:     sockCfg.Reconnect,
		retryBase: sockCfg.ReconnectBaseWait,
		retryMax:  sockCfg.ReconnectMaxWait,

		done: make(chan struct{}),
	}
}

// start wires the pipeline and loads the first pages. Snapshot and
// stream failures are logged; the table keeps running stale.
func (t *table) start(ctx context.Context, prices *router.Queue[writer.PriceRecord]) {
	t.detach = append(t.detach,
		t.socket.On(t.router.Handle),
		t.socket.OnReconnect(func() {
			if err := t.engine.Resubscribe(ctx); err != nil {
				t.logger.Warn("resubscribe after reconnect failed", "error", err)
			}
		}),
		t.engine.OnPrice(func(u model.PriceUpdate) {
			prices.Push(writer.PriceRecord{Table: t.cfg.Name, Update: u})
		}),
	)

	go func() {
		defer close(t.done)
		t.engine.Consume(ctx, t.router.Events())
	}()

	if err := t.loader.SetFilter(ctx, t.cfg.Filter); err != nil {
		if api.IsBlocked(err) {
			t.logger.Warn("initial snapshot blocked or unreachable", "error", err)
		} else {
			t.logger.Error("initial snapshot failed", "error", err)
		}
	}
	if t.cfg.Sort != nil {
		t.engine.SetSort(*t.cfg.Sort)
	}

	if t.cfg.RealtimeEnabled() {
		if err := t.engine.SetRealtime(ctx, true); err != nil {
			t.logger.Warn("stream unavailable, serving snapshots only", "error", err)
			if t.retry {
				go t.retryRealtime(ctx)
			}
		}
	}

	if err := t.loader.Start(ctx); err != nil {
		t.logger.Error("start loader failed", "error", err)
	}

	t.logger.Info("table started",
		"realtime", t.cfg.RealtimeEnabled(),
		"rows", t.engine.Stats().Rows,
	)
}

// retryRealtime re-enables realtime with exponential backoff until the
// stream accepts a connection. The Socket only redials sessions that were
// once open, so a stream that is down at startup is retried here.
func (t *table) retryRealtime(ctx context.Context) {
	wait := t.retryBase
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := max(t.retryMax, wait)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		err := t.engine.SetRealtime(ctx, true)
		if err == nil {
			t.logger.Info("stream established")
			return
		}
		if errors.Is(err, scanner.ErrClosed) {
			return
		}
		t.logger.Debug("stream retry failed", "error", err, "next_wait", wait)
		wait = min(wait*2, maxWait)
	}
}

// stop tears the pipeline down in reverse order.
func (t *table) stop(ctx context.Context) {
	if err := t.loader.Stop(ctx); err != nil {
		t.logger.Warn("loader stop timed out", "error", err)
	}
	t.engine.Close()
	if err := t.socket.Disconnect(); err != nil {
		t.logger.Debug("socket disconnect", "error", err)
	}
	for _, fn := range t.detach {
		fn()
	}
	t.router.Close()

	select {
	case <-t.done:
	case <-ctx.Done():
	}
	t.logger.Info("table stopped")
}

// tableStatus is the health view of one table.
type tableStatus struct {
	Name     string                 `json:"name"`
	Realtime bool                   `json:"realtime"`
	Socket   string                 `json:"socket"`
	Engine   scanner.Stats          `json:"engine"`
	Loader   loader.Progress        `json:"loader"`
	Router   router.RouterStats     `json:"router"`
	Stream   connection.SocketStats `json:"stream"`
}

func (t *table) status() tableStatus {
	stats := t.engine.Stats()
	return tableStatus{
		Name:     t.cfg.Name,
		Realtime: stats.Realtime,
		Socket:   t.socket.State().String(),
		Engine:   stats,
		Loader:   t.loader.Progress(),
		Router:   t.router.Stats(),
		Stream:   t.socket.Stats(),
	}
}
