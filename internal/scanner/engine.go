package scanner

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/metrics"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/router"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("scanner engine closed")

// Transport is the stream connection the engine drives.
type Transport interface {
	// Connect opens the connection. It is a no-op while one is open or
	// opening.
	Connect(ctx context.Context) error

	// Send writes one outbound message. Sending while disconnected must be
	// a silent no-op.
	Send(event string, data any) error
}

// Strategy selects which rows are wanted for per-row subscriptions.
type Strategy string

const (
	// StrategyVisible subscribes every row in the last published view.
	StrategyVisible Strategy = "visible"
	// StrategyMounted subscribes rows explicitly marked with Mount.
	StrategyMounted Strategy = "mounted"
)

// Config configures an Engine.
type Config struct {
	Table       string        // Label for logs and metrics
	Debounce    time.Duration // Default: 100ms
	FlashWindow time.Duration // Default: 800ms
	Strategy    Strategy      // Default: visible
	Sort        model.Sort
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for debouncing and flash timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// entry is one row plus which of its protected fields the stream owns.
type entry struct {
	row       model.Row
	priceLive bool // PriceUsd and Mcap were set by a tick
	auditLive bool // Audit was set by pair-stats
}

// Stats is a point-in-time view of engine state.
type Stats struct {
	Rows             int
	ViewRows         int
	Subscribed       int
	Mounted          int
	Realtime         bool
	Streaming        bool
	FilterSubscribed bool
	Pending          bool
	Publishes        int64
	TicksApplied     int64
	UnknownEvents    int64
}

// Engine is the synchronization engine for one scanner table.
type Engine struct {
	cfg       Config
	transport Transport
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	notifyMu sync.Mutex // held by the goroutine delivering notifications
	notices  []func()   // queued under mu, delivered in order

	rows      map[model.RowID]*entry
	byPair    map[string]map[model.RowID]struct{}
	view      []model.Row
	sort      model.Sort
	debouncer *Debouncer

	filter           model.Filter
	hasFilter        bool
	filterSubscribed bool
	realtime         bool // wanted by the caller
	streaming        bool // transport connected since realtime was enabled
	closed           bool

	subscribed map[model.RowID]api.PairSubscription
	mounted    map[model.RowID]struct{}

	publishes     int64
	ticksApplied  int64
	unknownEvents int64

	obsMu          sync.RWMutex
	nextObserverID uint64
	publishObs     map[uint64]func([]model.Row)
	priceObs       map[uint64]func(model.PriceUpdate)
}

// New creates an Engine with realtime disabled and no active filter.
func New(cfg Config, transport Transport, opts ...Option) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.FlashWindow <= 0 {
		cfg.FlashWindow = model.DefaultFlashWindow
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyVisible
	}

	e := &Engine{
		cfg:        cfg,
		transport:  transport,
		clock:      clock.New(),
		logger:     slog.Default(),
		rows:       make(map[model.RowID]*entry),
		byPair:     make(map[string]map[model.RowID]struct{}),
		sort:       cfg.Sort,
		subscribed: make(map[model.RowID]api.PairSubscription),
		mounted:    make(map[model.RowID]struct{}),
		publishObs: make(map[uint64]func([]model.Row)),
		priceObs:   make(map[uint64]func(model.PriceUpdate)),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("table", cfg.Table)
	e.debouncer = NewDebouncer(e.clock, cfg.Debounce)

	return e
}

// Rows returns a copy of the last published sorted view.
func (e *Engine) Rows() []model.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.view)
}

// Row returns the current table value for id.
func (e *Engine) Row(id model.RowID) (model.Row, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.rows[id]
	if !ok {
		return model.Row{}, false
	}
	return ent.row, true
}

// Filter returns the active filter and whether one was set.
func (e *Engine) Filter() (model.Filter, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter, e.hasFilter
}

// FlashWindow returns how long a flash stays active for consumers.
func (e *Engine) FlashWindow() time.Duration {
	return e.cfg.FlashWindow
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Stats returns current engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Rows:             len(e.rows),
		ViewRows:         len(e.view),
		Subscribed:       len(e.subscribed),
		Mounted:          len(e.mounted),
		Realtime:         e.realtime,
		Streaming:        e.streaming,
		FilterSubscribed: e.filterSubscribed,
		Pending:          e.debouncer.Pending(),
		Publishes:        e.publishes,
		TicksApplied:     e.ticksApplied,
		UnknownEvents:    e.unknownEvents,
	}
}

// OnPublish registers fn to receive every published view. The slice is
// shared between observers and must not be modified. Observers run outside
// the engine lock and may call engine methods.
func (e *Engine) OnPublish(fn func([]model.Row)) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObserverID++
	id := e.nextObserverID
	e.publishObs[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.publishObs, id)
		e.obsMu.Unlock()
	}
}

// OnPrice registers fn to receive every price change applied from a tick.
func (e *Engine) OnPrice(fn func(model.PriceUpdate)) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.nextObserverID++
	id := e.nextObserverID
	e.priceObs[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.priceObs, id)
		e.obsMu.Unlock()
	}
}

// SetSort changes the ordering policy and schedules a recompute.
func (e *Engine) SetSort(s model.Sort) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.sort = s
	e.scheduleLocked()
}

// Consume applies events from q in order until q is closed and drained or
// ctx is done.
func (e *Engine) Consume(ctx context.Context, q *router.Queue[router.Event]) {
	for {
		ev, ok := q.Pop(ctx)
		if !ok {
			return
		}
		e.Apply(ev)
	}
}

// Apply dispatches one decoded stream event.
func (e *Engine) Apply(ev router.Event) {
	switch ev.Kind {
	case router.KindTick:
		if ev.Tick != nil {
			e.IngestTick(*ev.Tick)
		}
	case router.KindPairStats:
		if ev.PairStats != nil {
			e.IngestPairStats(*ev.PairStats)
		}
	case router.KindScannerPairs:
		e.IngestSnapshotPage(ev.Pairs)
	}
}

// Close unsubscribes every row and the filter, stops the recompute timer
// and rejects further commands.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.unsubscribeAllRowsLocked()
	e.unsubscribeFilterLocked()
	e.realtime = false
	e.streaming = false
	e.debouncer.Stop()
	e.closed = true
	e.logger.Debug("scanner engine closed")
}

// scheduleLocked requests a debounced recompute.
func (e *Engine) scheduleLocked() {
	e.debouncer.Schedule(e.flush)
}

// flush is the debounce timer callback.
func (e *Engine) flush(token uint64) {
	e.mu.Lock()
	if e.closed || !e.debouncer.Fired(token) {
		e.mu.Unlock()
		return
	}

	view := e.publishLocked()
	e.unlockAndNotify(func() { e.notifyPublish(view) })
}

// publishLocked snapshots, sorts and installs the view, then reconciles
// row subscriptions against it.
func (e *Engine) publishLocked() []model.Row {
	view := make([]model.Row, 0, len(e.rows))
	for _, ent := range e.rows {
		view = append(view, ent.row)
	}
	sortRows(view, e.sort)

	e.view = view
	e.publishes++
	e.reconcileLocked()

	e.metrics.RecordPublish(e.cfg.Table, len(view), len(e.subscribed))
	e.logger.Debug("published view", "rows", len(view), "subscribed", len(e.subscribed))

	return slices.Clone(view)
}

// unlockAndNotify queues notify, releases the engine lock and delivers
// queued notifications. Notifications run in the order they were queued;
// if another goroutine is already delivering, it picks this one up.
func (e *Engine) unlockAndNotify(notify func()) {
	e.notices = append(e.notices, notify)
	e.mu.Unlock()

	if !e.notifyMu.TryLock() {
		return
	}
	for {
		e.mu.Lock()
		batch := e.notices
		e.notices = nil
		if len(batch) == 0 {
			e.notifyMu.Unlock()
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

func (e *Engine) notifyPublish(view []model.Row) {
	e.obsMu.RLock()
	fns := make([]func([]model.Row), 0, len(e.publishObs))
	for _, fn := range e.publishObs {
		fns = append(fns, fn)
	}
	e.obsMu.RUnlock()

	for _, fn := range fns {
		fn(view)
	}
}

func (e *Engine) notifyPrice(u model.PriceUpdate) {
	e.obsMu.RLock()
	fns := make([]func(model.PriceUpdate), 0, len(e.priceObs))
	for _, fn := range e.priceObs {
		fns = append(fns, fn)
	}
	e.obsMu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}

// send issues one transport message. Failures are logged; the engine
// state already reflects the intent.
func (e *Engine) send(event string, data any) {
	if e.transport == nil {
		return
	}
	if err := e.transport.Send(event, data); err != nil {
		e.logger.Debug("stream send failed", "event", event, "error", err)
		return
	}
	e.metrics.RecordSend(e.cfg.Table, event)
}
