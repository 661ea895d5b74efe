// Package writer implements the batch writer for price history.
//
// Every price change applied from a tick is queued by the engine's price
// observer and appended to the price_ticks table in batches. Writes are
// append-only; a nil database turns the writer into a counting sink.
package writer
