// Package model defines shared data types used across the scanner service.
//
// Conventions:
//   - Prices, volumes and market caps: float64 USD
//   - Percent changes: float64 percentage points (5 = +5%)
//   - Timestamps: time.Time (UTC)
//   - IDs: RowID = pairAddress + "-" + tokenAddress
package model
