package model

import "encoding/json"

// RankBy selects the value rows are ordered by.
type RankBy string

const (
	RankNone      RankBy = ""
	RankVolume    RankBy = "volume"
	RankAge       RankBy = "age"
	RankLiquidity RankBy = "liquidity"
	RankMcap      RankBy = "mcap"
)

// Valid reports whether r is a known rank key.
func (r RankBy) Valid() bool {
	switch r {
	case RankNone, RankVolume, RankAge, RankLiquidity, RankMcap:
		return true
	}
	return false
}

// OrderBy is the sort direction.
type OrderBy string

const (
	OrderAsc  OrderBy = "asc"
	OrderDesc OrderBy = "desc"
)

// Sort is the ordering policy of the published view.
// An empty OrderBy means descending.
type Sort struct {
	RankBy  RankBy  `yaml:"rank_by"`
	OrderBy OrderBy `yaml:"order_by"`
}

// Descending reports whether the sort direction is descending.
func (s Sort) Descending() bool {
	return s.OrderBy != OrderAsc
}

// Filter selects which pairs the scanner returns.
// Nil fields are omitted from both the REST query and the stream subscription.
type Filter struct {
	Chain     *string  `json:"chain,omitempty" yaml:"chain"`
	RankBy    *RankBy  `json:"rankBy,omitempty" yaml:"rank_by"`
	OrderBy   *OrderBy `json:"orderBy,omitempty" yaml:"order_by"`
	MinVol24H *float64 `json:"minVol24H,omitempty" yaml:"min_vol_24h"`
	MaxAge    *float64 `json:"maxAge,omitempty" yaml:"max_age"`
	MinMcap   *float64 `json:"minMcap,omitempty" yaml:"min_mcap"`
	IsNotHP   *bool    `json:"isNotHP,omitempty" yaml:"is_not_hp"`
}

// Key returns a canonical string for equality checks between filters.
func (f Filter) Key() string {
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	return string(data)
}

// Sort returns the view ordering requested by the filter.
func (f Filter) Sort() Sort {
	var s Sort
	if f.RankBy != nil {
		s.RankBy = *f.RankBy
	}
	if f.OrderBy != nil {
		s.OrderBy = *f.OrderBy
	}
	return s
}
