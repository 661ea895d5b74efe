package model

import (
	"strconv"
	"time"
)

// DefaultFlashWindow is how long a price flash stays visible after a tick.
const DefaultFlashWindow = 800 * time.Millisecond

// RowID identifies a row by its pair and token address.
// It is stable across snapshot and stream sources.
type RowID string

// NewRowID builds the composite key for a pair/token identity.
func NewRowID(pairAddress, tokenAddress string) RowID {
	return RowID(pairAddress + "-" + tokenAddress)
}

// Flash is the direction of the most recent price change.
type Flash string

const (
	FlashNone Flash = ""
	FlashUp   Flash = "up"
	FlashDown Flash = "down"
)

// -----------------------------------------------------------------------------
// Row
// -----------------------------------------------------------------------------

// Row is one normalized market entity (a token traded on a pair).
type Row struct {
	ID RowID

	// Identity
	ChainID         int    // Numeric chain id (1, 56, 8453, 900)
	Chain           string // Chain name (ETH, BSC, BASE, SOL)
	Exchange        string // Router address
	PairAddress     string
	TokenAddress    string
	TokenName       string
	TokenSymbol     string
	TokenBaseSymbol string

	// Pricing
	PriceUsd     float64
	VolumeUsd    float64
	Mcap         float64
	McapChangePc float64
	PriceChanges PriceChanges
	Flash        Flash     // Set by ticks only
	FlashAt      time.Time // When Flash was set

	Liquidity    Liquidity
	Transactions Transactions
	Audit        Audit

	// Inputs for incremental updates
	TotalSupply *float64 // nil when unknown
	MigrationPc *float64 // nil when not migrating
	CreatedAt   time.Time
}

// PriceChanges holds percentage price changes over fixed windows.
type PriceChanges struct {
	M5  float64
	H1  float64
	H6  float64
	H24 float64
}

// Liquidity holds current USD liquidity and its percentage change.
type Liquidity struct {
	Current  float64
	ChangePc float64
}

// Transactions holds buy/sell counts.
type Transactions struct {
	Buys  int
	Sells int
}

// Audit holds contract audit flags and optional social links.
type Audit struct {
	MintAuthDisabled   bool
	FreezeAuthDisabled bool
	Honeypot           bool
	ContractVerified   bool
	Renounced          bool
	LiquidityLocked    bool

	LinkDiscord  *string
	LinkTelegram *string
	LinkTwitter  *string
	LinkWebsite  *string
	DexPaid      *bool
}

// FlashActive returns the flash direction if it was set less than window ago.
func (r Row) FlashActive(now time.Time, window time.Duration) Flash {
	if r.Flash == FlashNone || r.FlashAt.IsZero() {
		return FlashNone
	}
	if now.Sub(r.FlashAt) >= window {
		return FlashNone
	}
	return r.Flash
}

// PriceUpdate describes a price change applied from a tick.
type PriceUpdate struct {
	RowID        RowID
	ChainID      int
	PairAddress  string
	TokenAddress string
	PriceUsd     float64
	Mcap         float64
	Flash        Flash
	ObservedAt   time.Time
}

// -----------------------------------------------------------------------------
// Chains
// -----------------------------------------------------------------------------

var chainNames = map[int]string{
	1:    "ETH",
	56:   "BSC",
	8453: "BASE",
	900:  "SOL",
}

// ChainName returns the stream chain name for a chain id.
// Unknown ids fall back to their decimal form.
func ChainName(chainID int) string {
	if name, ok := chainNames[chainID]; ok {
		return name
	}
	return strconv.Itoa(chainID)
}
