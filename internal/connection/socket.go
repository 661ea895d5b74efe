package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Socket is a persistent stream connection. It survives individual Client
// lifetimes: Connect dials a fresh Client whenever none is open.
type Socket struct {
	cfg    SocketConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	client Client
	stop   chan struct{} // closed to end the current session's pump and reconnect loop

	handlersMu     sync.RWMutex
	handlers       map[uint64]Handler
	reconnectHooks map[uint64]func()
	nextID         uint64

	received   atomic.Int64
	sent       atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewSocket creates a disconnected socket.
func NewSocket(cfg SocketConfig, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		cfg:            cfg,
		logger:         logger,
		handlers:       make(map[uint64]Handler),
		reconnectHooks: make(map[uint64]func()),
	}
}

// Connect dials the server unless a connection is already open or opening.
func (s *Socket) Connect(ctx context.Context) error {
	_, err := s.connect(ctx)
	return err
}

// connect reports whether this call established the connection.
func (s *Socket) connect(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return false, nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	c := NewClient(s.cfg.Client, s.logger)
	if err := c.Connect(ctx); err != nil {
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return false, fmt.Errorf("connect %s: %w", s.cfg.Client.URL, err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnect won the race
		s.mu.Unlock()
		c.Close()
		return false, nil
	}
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.client = c
	s.state = StateOpen
	s.stop = stop
	s.mu.Unlock()

	go s.pump(c, stop)

	s.logger.Info("stream connected", "url", s.cfg.Client.URL)
	return true, nil
}

// Disconnect closes the connection and cancels any pending reconnect.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.state = StateDisconnected
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	s.logger.Info("stream disconnected", "url", s.cfg.Client.URL)
	return c.Close()
}

// Send encodes and writes one outbound message. While the socket is not
// open the message is dropped and Send returns nil.
func (s *Socket) Send(event string, data any) error {
	s.mu.Lock()
	c := s.client
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || c == nil {
		s.dropped.Add(1)
		s.logger.Debug("stream not open, dropping send", "event", event)
		return nil
	}

	payload, err := json.Marshal(Outbound{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	if err := c.Send(payload); err != nil {
		if errors.Is(err, ErrNotConnected) {
			s.dropped.Add(1)
			return nil
		}
		return fmt.Errorf("send %s: %w", event, err)
	}

	s.sent.Add(1)
	return nil
}

// On registers a listener for inbound frames and returns a func that
// removes it.
func (s *Socket) On(h Handler) func() {
	s.handlersMu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = h
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.handlers, id)
		s.handlersMu.Unlock()
	}
}

// OnReconnect registers a hook run after an automatic reconnect succeeds.
// Server-side subscriptions do not survive a dropped connection, so hooks
// typically re-issue them.
func (s *Socket) OnReconnect(fn func()) func() {
	s.handlersMu.Lock()
	s.nextID++
	id := s.nextID
	s.reconnectHooks[id] = fn
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.reconnectHooks, id)
		s.handlersMu.Unlock()
	}
}

// State returns the connection state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns socket counters.
func (s *Socket) Stats() SocketStats {
	return SocketStats{
		State:      s.State(),
		Received:   s.received.Load(),
		Sent:       s.sent.Load(),
		Dropped:    s.dropped.Load(),
		Reconnects: s.reconnects.Load(),
	}
}

// pump forwards frames from one client to the listeners until the client
// fails or the session is stopped.
func (s *Socket) pump(c Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case msg := <-c.Messages():
			s.received.Add(1)
			s.broadcast(RawMessage{Data: msg.Data, ReceivedAt: msg.ReceivedAt})

		case err := <-c.Errors():
			s.logger.Warn("stream connection error", "error", err)

			s.mu.Lock()
			if s.client != c {
				s.mu.Unlock()
				return
			}
			s.client = nil
			s.state = StateDisconnected
			s.mu.Unlock()

			c.Close()

			if s.cfg.Reconnect {
				s.reconnect(stop)
			}
			return
		}
	}
}

func (s *Socket) broadcast(msg RawMessage) {
	s.handlersMu.RLock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// session is stopped by Disconnect or a newer Connect.
func (s *Socket) reconnect(stop <-chan struct{}) {
	wait := s.cfg.ReconnectBaseWait
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := s.cfg.ReconnectMaxWait
	if maxWait < wait {
		maxWait = wait
	}

	for {
		select {
		case <-stop:
			return
		case <-time.After(wait):
		}

		s.logger.Info("attempting reconnection", "url", s.cfg.Client.URL)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		ok, err := s.connect(ctx)
		cancel()

		if err != nil {
			s.logger.Warn("reconnection failed", "error", err)

			wait *= 2
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}
		if !ok {
			// Someone else connected or disconnected meanwhile
			return
		}

		s.reconnects.Add(1)
		s.logger.Info("reconnected", "url", s.cfg.Client.URL)

		s.handlersMu.RLock()
		hooks := make([]func(), 0, len(s.reconnectHooks))
		for _, fn := range s.reconnectHooks {
			hooks = append(hooks, fn)
		}
		s.handlersMu.RUnlock()

		for _, fn := range hooks {
			fn()
		}
		return
	}
}
