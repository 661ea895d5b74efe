// Package api provides the DEX scanner REST client and the wire payloads
// shared by the REST snapshot endpoint and the WebSocket stream.
//
// REST endpoint:
//   - GET /scanner?{filter}&page=N -> {"pairs": [...], "totalRows": N}
//
// Stream events (inbound): tick, pair-stats, scanner-pairs
//
// Numeric fields arrive as either JSON strings or numbers and are decoded
// into Numeric, then coerced with ParseNumericOrZero during normalization.
package api
