package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Outbound event names.
const (
	EventScannerFilter            = "scanner-filter"
	EventUnsubscribeScannerFilter = "unsubscribe-scanner-filter"
	EventSubscribePair            = "subscribe-pair"
	EventUnsubscribePair          = "unsubscribe-pair"
	EventSubscribePairStats       = "subscribe-pair-stats"
	EventUnsubscribePairStats     = "unsubscribe-pair-stats"
)

// Inbound event names.
const (
	EventTick         = "tick"
	EventPairStats    = "pair-stats"
	EventScannerPairs = "scanner-pairs"
)

// Outbound is a message sent to the stream server.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is an inbound frame delivered to Socket listeners.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// Handler receives inbound frames. Handlers run on the socket's read
// goroutine and must not block.
type Handler func(RawMessage)

// State is the socket connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "disconnected"
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://api-rs.dexcelerate.com/ws)
	APIKey           string        // Optional bearer token
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       10000,
	}
}

// SocketConfig configures a Socket.
type SocketConfig struct {
	Client ClientConfig

	// Reconnect enables automatic reconnection after the connection drops.
	// An explicit Disconnect never triggers a reconnect.
	Reconnect         bool
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		Client:            DefaultClientConfig(),
		Reconnect:         true,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}

// SocketStats provides counters about a socket.
type SocketStats struct {
	State      State
	Received   int64
	Sent       int64
	Dropped    int64 // Sends skipped while not open
	Reconnects int64
}
