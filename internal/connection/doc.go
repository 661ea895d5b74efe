// Package connection implements the stream transport.
//
// Client is a single WebSocket connection with a read loop and heartbeat.
// Socket wraps successive Clients behind a stable connect/disconnect,
// send and listen API:
//   - Connect is idempotent while a connection is open or opening
//   - Send while disconnected is a silent no-op
//   - On registers a listener and returns its unsubscribe func
//   - Optional reconnect with exponential backoff, announced to
//     OnReconnect hooks so callers can re-issue their subscriptions
package connection
