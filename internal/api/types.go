package api

import (
	"bytes"
	"encoding/json"
)

// Numeric is a number that may arrive as a JSON string, a JSON number or
// null. The raw text is kept; use Float or ParseNumericOrZero to read it.
type Numeric string

// UnmarshalJSON accepts strings, numbers and null.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Numeric(s)
		return nil
	}
	*n = Numeric(data)
	return nil
}

// MarshalJSON writes the value as a JSON string, or null when unset.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

// IsSet reports whether a value was present.
func (n Numeric) IsSet() bool {
	return n != ""
}

// ScannerResponse from GET /scanner
type ScannerResponse struct {
	Pairs     []ScannerResult `json:"pairs"`
	TotalRows int             `json:"totalRows"`
}

// ScannerResult is one raw pair record from the scanner endpoint or a
// scanner-pairs stream event.
type ScannerResult struct {
	Age           string `json:"age"` // RFC 3339 creation time
	ChainID       int    `json:"chainId"`
	PairAddress   string `json:"pairAddress"`
	RouterAddress string `json:"routerAddress"`

	Token0Symbol  string `json:"token0Symbol"`
	Token1Address string `json:"token1Address"`
	Token1Name    string `json:"token1Name"`
	Token1Symbol  string `json:"token1Symbol"`

	Token1TotalSupplyFormatted Numeric `json:"token1TotalSupplyFormatted"`

	Price  Numeric `json:"price"`
	Volume Numeric `json:"volume"`

	// Market cap sources, in fallback order
	CurrentMcap        Numeric `json:"currentMcap"`
	InitialMcap        Numeric `json:"initialMcap"`
	PairMcapUsd        Numeric `json:"pairMcapUsd"`
	PairMcapUsdInitial Numeric `json:"pairMcapUsdInitial"`

	PercentChangeInMcap Numeric `json:"percentChangeInMcap"`
	Diff5M              Numeric `json:"diff5M"`
	Diff1H              Numeric `json:"diff1H"`
	Diff6H              Numeric `json:"diff6H"`
	Diff24H             Numeric `json:"diff24H"`

	Liquidity                Numeric `json:"liquidity"`
	PercentChangeInLiquidity Numeric `json:"percentChangeInLiquidity"`

	Buys  Numeric `json:"buys"`
	Sells Numeric `json:"sells"`

	// Audit
	IsMintAuthDisabled   bool  `json:"isMintAuthDisabled"`
	IsFreezeAuthDisabled bool  `json:"isFreezeAuthDisabled"`
	HoneyPot             *bool `json:"honeyPot"`
	ContractVerified     bool  `json:"contractVerified"`
	ContractRenounced    bool  `json:"contractRenounced"`
	LiquidityLocked      bool  `json:"liquidityLocked"`
	DexPaid              *bool `json:"dexPaid"`

	DiscordLink  *string `json:"discordLink"`
	TelegramLink *string `json:"telegramLink"`
	TwitterLink  *string `json:"twitterLink"`
	WebLink      *string `json:"webLink"`

	MigrationProgress Numeric `json:"migrationProgress"`
}
