package api

import "github.com/rickgao/dex-scanner/internal/model"

// TickPayload is the data of a "tick" stream event: a batch of swaps for
// one pair/token identity.
type TickPayload struct {
	Pair  TickPair `json:"pair"`
	Swaps []Swap   `json:"swaps"`
}

// TickPair identifies the row a tick applies to.
type TickPair struct {
	Pair  string `json:"pair"`
	Token string `json:"token"`
	Chain string `json:"chain"`
}

// RowID returns the id of the row the tick applies to.
func (t TickPayload) RowID() model.RowID {
	return model.NewRowID(t.Pair.Pair, t.Pair.Token)
}

// LatestTrade returns the last non-outlier swap in arrival order.
func (t TickPayload) LatestTrade() (Swap, bool) {
	for i := len(t.Swaps) - 1; i >= 0; i-- {
		if !t.Swaps[i].IsOutlier {
			return t.Swaps[i], true
		}
	}
	return Swap{}, false
}

// Swap is one trade inside a tick.
type Swap struct {
	Timestamp      string  `json:"timestamp"`
	AddressTo      string  `json:"addressTo"`
	AddressFrom    string  `json:"addressFrom"`
	Token0Address  string  `json:"token0Address"`
	TokenInAddress string  `json:"tokenInAddress"`
	AmountToken0   Numeric `json:"amountToken0"`
	AmountToken1   Numeric `json:"amountToken1"`
	PriceToken0Usd Numeric `json:"priceToken0Usd"`
	PriceToken1Usd Numeric `json:"priceToken1Usd"`
	IsOutlier      bool    `json:"isOutlier"`
}

// PairStatsPayload is the data of a "pair-stats" stream event.
type PairStatsPayload struct {
	Pair              PairStats `json:"pair"`
	MigrationProgress Numeric   `json:"migrationProgress"`
}

// PairStats carries audit flags for a pair. Pointer and Numeric fields are
// optional and only applied when present.
type PairStats struct {
	PairAddress              string  `json:"pairAddress"`
	MintAuthorityRenounced   bool    `json:"mintAuthorityRenounced"`
	FreezeAuthorityRenounced bool    `json:"freezeAuthorityRenounced"`
	Token1IsHoneypot         bool    `json:"token1IsHoneypot"`
	IsVerified               bool    `json:"isVerified"`
	TotalLockedRatio         Numeric `json:"totalLockedRatio"`
	LinkDiscord              *string `json:"linkDiscord"`
	LinkTelegram             *string `json:"linkTelegram"`
	LinkTwitter              *string `json:"linkTwitter"`
	LinkWebsite              *string `json:"linkWebsite"`
	DexPaid                  *bool   `json:"dexPaid"`
}

// ScannerPairsPayload is the data of a "scanner-pairs" stream event.
type ScannerPairsPayload struct {
	Results struct {
		Pairs []ScannerResult `json:"pairs"`
	} `json:"results"`
}

// PairSubscription is the payload of the per-row subscribe and unsubscribe
// messages.
type PairSubscription struct {
	Pair  string `json:"pair"`
	Token string `json:"token"`
	Chain string `json:"chain"`
}

// NewPairSubscription builds the subscription payload for a row.
func NewPairSubscription(r model.Row) PairSubscription {
	return PairSubscription{
		Pair:  r.PairAddress,
		Token: r.TokenAddress,
		Chain: model.ChainName(r.ChainID),
	}
}
