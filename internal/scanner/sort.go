package scanner

import (
	"cmp"
	"slices"

	"github.com/rickgao/dex-scanner/internal/model"
)

// rankValue returns the value rows are ordered by. RankNone ranks every
// row equally so ordering falls through to the id.
func rankValue(r *model.Row, key model.RankBy) float64 {
	switch key {
	case model.RankVolume:
		return r.VolumeUsd
	case model.RankAge:
		return float64(r.CreatedAt.UnixMilli())
	case model.RankLiquidity:
		return r.Liquidity.Current
	case model.RankMcap:
		return r.Mcap
	default:
		return 0
	}
}

// sortRows orders rows in place by the rank key, breaking ties by id
// ascending regardless of direction.
func sortRows(rows []model.Row, s model.Sort) {
	desc := s.Descending()
	slices.SortFunc(rows, func(a, b model.Row) int {
		va, vb := rankValue(&a, s.RankBy), rankValue(&b, s.RankBy)
		if va != vb {
			if desc {
				return cmp.Compare(vb, va)
			}
			return cmp.Compare(va, vb)
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
