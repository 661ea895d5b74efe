package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/metrics"
)

var errMissingData = errors.New("missing data")

// Router decodes raw stream frames into typed events and queues them in
// delivery order for a single consumer.
type Router interface {
	// Handle decodes one frame. It is registered as a Socket listener and
	// never blocks.
	Handle(raw connection.RawMessage)

	// Events returns the queue of decoded events.
	Events() *Queue[Event]

	// Close stops accepting frames; queued events remain readable.
	Close()

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	events *Queue[Event]

	received        atomic.Int64
	routed          atomic.Int64
	parseErrors     atomic.Int64
	unknownMessages atomic.Int64
}

// NewRouter creates a new Message Router. m may be nil.
func NewRouter(cfg RouterConfig, m *metrics.Metrics, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		events:  NewQueue[Event](cfg.QueueHint),
	}
}

// Events returns the decoded event queue.
func (r *router) Events() *Queue[Event] {
	return r.events
}

// Close closes the event queue.
func (r *router) Close() {
	r.events.Close()
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		ParseErrors:      r.parseErrors.Load(),
		UnknownMessages:  r.unknownMessages.Load(),
		Queue:            r.events.Stats(),
	}
}

// Handle parses and routes a single frame.
func (r *router) Handle(raw connection.RawMessage) {
	r.received.Add(1)

	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.parseError("envelope", err)
		return
	}

	ev := Event{Kind: EventKind(env.Event), ReceivedAt: raw.ReceivedAt}

	var err error
	switch ev.Kind {
	case KindTick:
		ev.Tick, err = parseTick(env.Data)
	case KindPairStats:
		ev.PairStats, err = parsePairStats(env.Data)
	case KindScannerPairs:
		ev.Pairs, err = parseScannerPairs(env.Data)
	default:
		r.unknownMessages.Add(1)
		r.logger.Debug("skipping message type", "event", env.Event)
		return
	}
	if err != nil {
		r.parseError(env.Event, err)
		return
	}

	if r.events.Push(ev) {
		r.routed.Add(1)
		r.metrics.RecordFrame(r.cfg.Table, env.Event)
	}
}

func (r *router) parseError(event string, err error) {
	r.parseErrors.Add(1)
	r.metrics.RecordParseError(r.cfg.Table)
	r.logger.Warn("dropping malformed stream frame", "event", event, "error", err)
}

func isNull(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

// parseTick decodes a tick. The pair identity is required.
func parseTick(data json.RawMessage) (*api.TickPayload, error) {
	if isNull(data) {
		return nil, errMissingData
	}
	var tick api.TickPayload
	if err := json.Unmarshal(data, &tick); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	if tick.Pair.Pair == "" || tick.Pair.Token == "" {
		return nil, errors.New("tick without pair identity")
	}
	return &tick, nil
}

// parsePairStats decodes a pair-stats event. The pair address is required.
func parsePairStats(data json.RawMessage) (*api.PairStatsPayload, error) {
	if isNull(data) {
		return nil, errMissingData
	}
	var stats api.PairStatsPayload
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode pair-stats: %w", err)
	}
	if stats.Pair.PairAddress == "" {
		return nil, errors.New("pair-stats without pair address")
	}
	return &stats, nil
}

// parseScannerPairs decodes an unsolicited scanner page.
func parseScannerPairs(data json.RawMessage) ([]api.ScannerResult, error) {
	if isNull(data) {
		return nil, errMissingData
	}
	var payload api.ScannerPairsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode scanner-pairs: %w", err)
	}
	return payload.Results.Pairs, nil
}
