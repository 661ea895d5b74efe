package model

import (
	"testing"
	"time"
)

func TestNewRowID(t *testing.T) {
	id := NewRowID("0xpair", "0xtoken")
	if id != "0xpair-0xtoken" {
		t.Errorf("NewRowID = %q, want %q", id, "0xpair-0xtoken")
	}
}

func TestRow_FlashActive(t *testing.T) {
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	r := Row{Flash: FlashUp, FlashAt: at}

	tests := []struct {
		name string
		now  time.Time
		want Flash
	}{
		{"immediately", at, FlashUp},
		{"inside window", at.Add(799 * time.Millisecond), FlashUp},
		{"at window edge", at.Add(DefaultFlashWindow), FlashNone},
		{"after window", at.Add(2 * time.Second), FlashNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.FlashActive(tt.now, DefaultFlashWindow); got != tt.want {
				t.Errorf("FlashActive = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("never set", func(t *testing.T) {
		if got := (Row{}).FlashActive(at, DefaultFlashWindow); got != FlashNone {
			t.Errorf("FlashActive = %q, want none", got)
		}
	})
}

func TestChainName(t *testing.T) {
	tests := map[int]string{
		1:    "ETH",
		56:   "BSC",
		8453: "BASE",
		900:  "SOL",
		137:  "137",
	}
	for id, want := range tests {
		if got := ChainName(id); got != want {
			t.Errorf("ChainName(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestFilter_Key(t *testing.T) {
	chain := "SOL"
	vol := 1000.0

	a := Filter{Chain: &chain, MinVol24H: &vol}
	chain2 := "SOL"
	vol2 := 1000.0
	b := Filter{Chain: &chain2, MinVol24H: &vol2}

	if a.Key() != b.Key() {
		t.Errorf("equal filters have different keys: %s vs %s", a.Key(), b.Key())
	}

	other := "ETH"
	c := Filter{Chain: &other}
	if a.Key() == c.Key() {
		t.Error("different filters share a key")
	}

	if (Filter{}).Key() != "{}" {
		t.Errorf("empty filter key = %s, want {}", (Filter{}).Key())
	}
}

func TestFilter_Sort(t *testing.T) {
	rank := RankVolume
	order := OrderAsc
	f := Filter{RankBy: &rank, OrderBy: &order}

	s := f.Sort()
	if s.RankBy != RankVolume {
		t.Errorf("RankBy = %q, want %q", s.RankBy, RankVolume)
	}
	if s.Descending() {
		t.Error("expected ascending sort")
	}

	if !(Filter{}).Sort().Descending() {
		t.Error("default sort should be descending")
	}
}

func TestRankBy_Valid(t *testing.T) {
	for _, r := range []RankBy{RankNone, RankVolume, RankAge, RankLiquidity, RankMcap} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if RankBy("price").Valid() {
		t.Error("price should not be a valid rank key")
	}
}
