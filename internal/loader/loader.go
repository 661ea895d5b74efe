package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/model"
)

// ErrNoFilter is returned when pages are requested before SetFilter.
var ErrNoFilter = errors.New("no active filter")

// errStale marks a request cancelled by a filter switch.
var errStale = errors.New("filter changed")

// PageFetcher fetches one page of scanner results.
type PageFetcher interface {
	GetScannerPage(ctx context.Context, f model.Filter, page int) (*api.ScannerResponse, error)
}

// Sink receives filter switches and snapshot pages.
type Sink interface {
	SetFilter(ctx context.Context, f model.Filter) error
	IngestSnapshotPage(records []api.ScannerResult)
}

// Config holds loader configuration.
type Config struct {
	Table           string        // Label for logs and metrics
	InitialPages    int           // Pages fetched on each filter change (default: 1)
	RefreshInterval time.Duration // Re-fetch loaded pages this often (0: off)
	Concurrency     int           // Max concurrent page requests on refresh (default: 4)
	Timeout         time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		InitialPages: 1,
		Concurrency:  4,
		Timeout:      10 * time.Second,
	}
}

// Progress describes how much of the active filter's result set is loaded.
type Progress struct {
	Generation uint64
	Pages      int
	Loaded     int
	TotalRows  int
	HasMore    bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithClock sets the clock driving periodic refresh.
func WithClock(c clock.Clock) Option {
	return func(l *Loader) {
		l.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// Loader pages through scanner results for one table.
type Loader struct {
	cfg     Config
	fetcher PageFetcher
	sink    Sink
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu guards filter state and serializes ingestion against filter
	// switches so a stale page never lands after a reset.
	mu        sync.Mutex
	filter    model.Filter
	hasFilter bool
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	pageSizes []int // row count of each loaded page
	totalRows int

	// fetchMu keeps page requests of one loader sequential.
	fetchMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Loader.
func New(cfg Config, fetcher PageFetcher, sink Sink, opts ...Option) *Loader {
	def := DefaultConfig()
	if cfg.InitialPages <= 0 {
		cfg.InitialPages = def.InitialPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	l := &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		clock:   clock.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("table", cfg.Table)
	return l
}

// SetFilter makes f the active filter, resets the sink and loads the
// initial pages. Pages still in flight for the previous filter are
// cancelled and discarded.
func (l *Loader) SetFilter(ctx context.Context, f model.Filter) error {
	l.mu.Lock()
	if l.genCancel != nil {
		l.genCancel()
	}
	l.gen++
	l.genCtx, l.genCancel = context.WithCancel(context.Background())
	l.filter = f
	l.hasFilter = true
	l.pageSizes = nil
	l.totalRows = 0
	err := l.sink.SetFilter(ctx, f)
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("set filter: %w", err)
	}

	for range l.cfg.InitialPages {
		more, err := l.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// HasMore reports whether another page can be loaded: nothing has been
// loaded yet, or fewer rows than the server's total were loaded and the
// last page was non-empty.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMoreLocked()
}

func (l *Loader) hasMoreLocked() bool {
	if !l.hasFilter {
		return false
	}
	if len(l.pageSizes) == 0 {
		return true
	}
	last := l.pageSizes[len(l.pageSizes)-1]
	return l.loadedLocked() < l.totalRows && last > 0
}

func (l *Loader) loadedLocked() int {
	n := 0
	for _, size := range l.pageSizes {
		n += size
	}
	return n
}

// Progress returns the current paging state.
func (l *Loader) Progress() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Progress{
		Generation: l.gen,
		Pages:      len(l.pageSizes),
		Loaded:     l.loadedLocked(),
		TotalRows:  l.totalRows,
		HasMore:    l.hasMoreLocked(),
	}
}

// LoadMore fetches the next page. It reports whether a page was applied.
func (l *Loader) LoadMore(ctx context.Context) (bool, error) {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	l.mu.Lock()
	if !l.hasFilter {
		l.mu.Unlock()
		return false, ErrNoFilter
	}
	if !l.hasMoreLocked() {
		l.mu.Unlock()
		return false, nil
	}
	gen, genCtx, f := l.gen, l.genCtx, l.filter
	page := len(l.pageSizes) + 1
	l.mu.Unlock()

	resp, err := l.fetch(ctx, genCtx, f, page)
	if errors.Is(err, errStale) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		l.logger.Debug("discarding page for stale filter", "page", page)
		return false, nil
	}
	l.pageSizes = append(l.pageSizes, len(resp.Pairs))
	l.totalRows = resp.TotalRows
	l.sink.IngestSnapshotPage(resp.Pairs)

	l.logger.Debug("page loaded",
		"page", page,
		"rows", len(resp.Pairs),
		"total_rows", resp.TotalRows,
	)
	return true, nil
}

// Refresh re-fetches every loaded page concurrently and ingests them in
// page order.
func (l *Loader) Refresh(ctx context.Context) error {
	l.fetchMu.Lock()
	defer l.fetchMu.Unlock()

	l.mu.Lock()
	if !l.hasFilter {
		l.mu.Unlock()
		return ErrNoFilter
	}
	gen, genCtx, f := l.gen, l.genCtx, l.filter
	pages := len(l.pageSizes)
	l.mu.Unlock()

	if pages == 0 {
		return nil
	}

	start := l.clock.Now()
	results := make([]*api.ScannerResponse, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i := range pages {
		g.Go(func() error {
			resp, err := l.fetch(gctx, genCtx, f, i+1)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, errStale) {
			return nil
		}
		return fmt.Errorf("refresh: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		l.logger.Debug("discarding refresh for stale filter")
		return nil
	}
	for i, resp := range results {
		l.pageSizes[i] = len(resp.Pairs)
		l.totalRows = resp.TotalRows
		l.sink.IngestSnapshotPage(resp.Pairs)
	}

	l.logger.Info("refresh complete",
		"pages", pages,
		"rows", l.loadedLocked(),
		"duration", l.clock.Since(start),
	)
	return nil
}

// fetch requests one page, bounded by the per-request timeout and
// cancelled when the filter generation ends.
func (l *Loader) fetch(ctx, genCtx context.Context, f model.Filter, page int) (*api.ScannerResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(genCtx, cancel)
	defer stop()

	start := l.clock.Now()
	resp, err := l.fetcher.GetScannerPage(ctx, f, page)
	if err != nil {
		if genCtx.Err() != nil {
			return nil, errStale
		}
		kind := "error"
		if api.IsBlocked(err) {
			kind = "blocked"
			l.logger.Warn("scanner blocked or unreachable", "page", page, "error", err)
		} else {
			l.logger.Error("fetch scanner page", "page", page, "error", err)
		}
		l.metrics.RecordSnapshotError(l.cfg.Table, kind)
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	l.metrics.RecordSnapshotPage(l.cfg.Table, l.clock.Since(start).Seconds())
	return resp, nil
}

// Start begins periodic refresh when RefreshInterval is set.
func (l *Loader) Start(ctx context.Context) error {
	if l.cfg.RefreshInterval <= 0 {
		return nil
	}

	ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run(ctx)

	l.logger.Info("snapshot loader started", "refresh_interval", l.cfg.RefreshInterval)
	return nil
}

// Stop gracefully shuts down periodic refresh.
func (l *Loader) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("snapshot loader stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := l.clock.Ticker(l.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil && !errors.Is(err, ErrNoFilter) {
				l.logger.Warn("periodic refresh failed", "error", err)
			}
		}
	}
}
