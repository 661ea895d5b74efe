package router

import (
	"encoding/json"
	"time"

	"github.com/rickgao/dex-scanner/internal/api"
)

// EventKind identifies a decoded inbound stream event.
type EventKind string

const (
	KindTick         EventKind = "tick"
	KindPairStats    EventKind = "pair-stats"
	KindScannerPairs EventKind = "scanner-pairs"
)

// Event is one decoded inbound stream event. Exactly one payload field is
// set, matching Kind.
type Event struct {
	Kind       EventKind
	ReceivedAt time.Time

	Tick      *api.TickPayload
	PairStats *api.PairStatsPayload
	Pairs     []api.ScannerResult
}

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	Table     string // Label for logs and metrics
	QueueHint int    // Initial queue capacity. Default: 1024
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		QueueHint: 1024,
	}
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	Queue            QueueStats
}

// envelope is the outer shape of every stream frame.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
