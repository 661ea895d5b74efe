package api

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/dex-scanner/internal/model"
)

// Float parses the value. ok is false when it is unset, unparsable or does
// not fit a finite float64.
func (n Numeric) Float() (float64, bool) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}

	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumericOrZero returns the numeric value, or 0 when it is unset,
// unparsable or non-finite.
func ParseNumericOrZero(n Numeric) float64 {
	f, _ := n.Float()
	return f
}

var maxCount = decimal.NewFromInt(math.MaxInt)

// ParseCountOrZero parses a whole count such as a trade tally. Fractions
// are truncated, negative or unparsable values become 0 and values past
// the int range saturate at math.MaxInt.
func ParseCountOrZero(n Numeric) int {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return 0
	}
	if d.GreaterThan(maxCount) {
		return math.MaxInt
	}
	return int(d.IntPart())
}

// mcapExtractor yields one candidate market cap source from a record.
type mcapExtractor func(*ScannerResult) Numeric

// mcapSources are tried in order; the first finite value > 0 wins.
var mcapSources = []mcapExtractor{
	func(sr *ScannerResult) Numeric { return sr.CurrentMcap },
	func(sr *ScannerResult) Numeric { return sr.InitialMcap },
	func(sr *ScannerResult) Numeric { return sr.PairMcapUsd },
	func(sr *ScannerResult) Numeric { return sr.PairMcapUsdInitial },
}

// ComputeMcap returns the first positive market cap among the record's
// sources, or 0 if none qualify.
func ComputeMcap(sr *ScannerResult) float64 {
	for _, extract := range mcapSources {
		if v, ok := extract(sr).Float(); ok && v > 0 {
			return v
		}
	}
	return 0
}

// ParseAge parses an RFC 3339 timestamp. Returns the zero time on failure.
func ParseAge(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// optionalFloat returns a pointer to the parsed value, or nil when it is
// absent or not a finite number.
func optionalFloat(n Numeric) *float64 {
	f, ok := n.Float()
	if !ok {
		return nil
	}
	return &f
}

// ToRow normalizes a raw scanner record into a Row.
func (sr *ScannerResult) ToRow() model.Row {
	return model.Row{
		ID:              model.NewRowID(sr.PairAddress, sr.Token1Address),
		ChainID:         sr.ChainID,
		Chain:           model.ChainName(sr.ChainID),
		Exchange:        sr.RouterAddress,
		PairAddress:     sr.PairAddress,
		TokenAddress:    sr.Token1Address,
		TokenName:       sr.Token1Name,
		TokenSymbol:     sr.Token1Symbol,
		TokenBaseSymbol: sr.Token0Symbol,

		PriceUsd:     ParseNumericOrZero(sr.Price),
		VolumeUsd:    ParseNumericOrZero(sr.Volume),
		Mcap:         ComputeMcap(sr),
		McapChangePc: ParseNumericOrZero(sr.PercentChangeInMcap),
		PriceChanges: model.PriceChanges{
			M5:  ParseNumericOrZero(sr.Diff5M),
			H1:  ParseNumericOrZero(sr.Diff1H),
			H6:  ParseNumericOrZero(sr.Diff6H),
			H24: ParseNumericOrZero(sr.Diff24H),
		},

		Liquidity: model.Liquidity{
			Current:  ParseNumericOrZero(sr.Liquidity),
			ChangePc: ParseNumericOrZero(sr.PercentChangeInLiquidity),
		},
		Transactions: model.Transactions{
			Buys:  ParseCountOrZero(sr.Buys),
			Sells: ParseCountOrZero(sr.Sells),
		},
		Audit: model.Audit{
			MintAuthDisabled:   sr.IsMintAuthDisabled,
			FreezeAuthDisabled: sr.IsFreezeAuthDisabled,
			Honeypot:           sr.HoneyPot != nil && *sr.HoneyPot,
			ContractVerified:   sr.ContractVerified,
			Renounced:          sr.ContractRenounced,
			LiquidityLocked:    sr.LiquidityLocked,
			LinkDiscord:        sr.DiscordLink,
			LinkTelegram:       sr.TelegramLink,
			LinkTwitter:        sr.TwitterLink,
			LinkWebsite:        sr.WebLink,
			DexPaid:            sr.DexPaid,
		},

		TotalSupply: optionalFloat(sr.Token1TotalSupplyFormatted),
		MigrationPc: optionalFloat(sr.MigrationProgress),
		CreatedAt:   ParseAge(sr.Age),
	}
}
