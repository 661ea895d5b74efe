package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/model"
	"github.com/rickgao/dex-scanner/internal/router"
)

// sent is one message recorded by fakeTransport.
type sent struct {
	Event string
	Data  any
}

type fakeTransport struct {
	mu         sync.Mutex
	connects   int
	connectErr error
	block      chan struct{} // when set, Connect waits for it to close
	sent       []sent
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTransport) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) Send(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{Event: event, Data: data})
	return nil
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.Event
	}
	return out
}

func (f *fakeTransport) count(event string) int {
	n := 0
	for _, e := range f.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

type harness struct {
	engine    *Engine
	clock     *clock.Mock
	transport *fakeTransport
	published chan []model.Row
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	mock := clock.NewMock()
	tr := &fakeTransport{}
	e := New(cfg, tr, WithClock(mock))
	h := &harness{
		engine:    e,
		clock:     mock,
		transport: tr,
		published: make(chan []model.Row, 64),
	}
	e.OnPublish(func(rows []model.Row) { h.published <- rows })
	t.Cleanup(e.Close)
	return h
}

// flush advances past the debounce delay and waits for the publish.
func (h *harness) flush(t *testing.T) []model.Row {
	t.Helper()
	h.clock.Add(DefaultDebounce)
	return h.waitPublish(t)
}

func (h *harness) waitPublish(t *testing.T) []model.Row {
	t.Helper()
	select {
	case rows := <-h.published:
		return rows
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish")
		return nil
	}
}

func (h *harness) assertNoPublish(t *testing.T) {
	t.Helper()
	select {
	case rows := <-h.published:
		t.Fatalf("unexpected publish of %d rows", len(rows))
	case <-time.After(50 * time.Millisecond):
	}
}

func record(pair, token, price, volume string) api.ScannerResult {
	return api.ScannerResult{
		ChainID:       1,
		PairAddress:   pair,
		Token1Address: token,
		Token1Symbol:  "TKN",
		Price:         api.Numeric(price),
		Volume:        api.Numeric(volume),
		CurrentMcap:   "1000",
	}
}

func tick(pair, token string, prices ...string) api.TickPayload {
	swaps := make([]api.Swap, len(prices))
	for i, p := range prices {
		swaps[i] = api.Swap{PriceToken1Usd: api.Numeric(p)}
	}
	return api.TickPayload{
		Pair:  api.TickPair{Pair: pair, Token: token, Chain: "ETH"},
		Swaps: swaps,
	}
}

func TestEngine_SnapshotInsertsAndPublishes(t *testing.T) {
	h := newHarness(t, Config{Sort: model.Sort{RankBy: model.RankVolume}})

	h.engine.IngestSnapshotPage([]api.ScannerResult{
		record("p1", "t1", "1.5", "10"),
		record("p2", "t2", "2", "30"),
	})
	rows := h.flush(t)

	require.Len(t, rows, 2)
	assert.Equal(t, model.NewRowID("p2", "t2"), rows[0].ID)
	assert.Equal(t, 1.5, rows[1].PriceUsd)
	assert.Equal(t, "ETH", rows[1].Chain)
	assert.Equal(t, rows, h.engine.Rows())
}

func TestEngine_SnapshotIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	page := []api.ScannerResult{
		record("pa", "ta", "1", "1"),
		record("pb", "tb", "2", "2"),
	}

	h.engine.IngestSnapshotPage(page)
	first := h.flush(t)
	h.engine.IngestSnapshotPage(page)
	second := h.flush(t)

	require.Len(t, second, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, h.engine.Stats().Rows)
}

func TestEngine_StreamValuesWinOverSnapshot(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")

	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})
	h.engine.IngestTick(tick("p1", "t1", "7"))
	h.engine.IngestPairStats(api.PairStatsPayload{Pair: api.PairStats{
		PairAddress: "p1",
		IsVerified:  true,
	}})

	refreshed := record("p1", "t1", "3", "99")
	refreshed.CurrentMcap = "5000"
	h.engine.IngestSnapshotPage([]api.ScannerResult{refreshed})

	row, ok := h.engine.Row(id)
	require.True(t, ok)
	assert.Equal(t, 7.0, row.PriceUsd, "tick price survives snapshot")
	assert.Equal(t, 1000.0, row.Mcap, "mcap without supply stays at the pre-tick value")
	assert.Equal(t, model.FlashNone, row.Flash, "refresh clears the flash")
	assert.True(t, row.FlashAt.IsZero())
	assert.True(t, row.Audit.ContractVerified, "pair-stats audit survives snapshot")
	assert.Equal(t, 99.0, row.VolumeUsd, "unprotected fields refresh")
}

func TestEngine_SnapshotWinsWithoutStream(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")

	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})
	next := record("p1", "t1", "4", "5")
	next.CurrentMcap = "2500"
	hp := true
	next.HoneyPot = &hp
	h.engine.IngestSnapshotPage([]api.ScannerResult{next})

	row, _ := h.engine.Row(id)
	assert.Equal(t, 4.0, row.PriceUsd)
	assert.Equal(t, 2500.0, row.Mcap)
	assert.True(t, row.Audit.Honeypot)
}

func TestEngine_TickUpdatesPriceMcapAndFlash(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")

	rec := record("p1", "t1", "1", "5")
	rec.Token1TotalSupplyFormatted = "100"
	h.engine.IngestSnapshotPage([]api.ScannerResult{rec})

	var updates []model.PriceUpdate
	h.engine.OnPrice(func(u model.PriceUpdate) { updates = append(updates, u) })

	h.engine.IngestTick(tick("p1", "t1", "2"))

	row, ok := h.engine.Row(id)
	require.True(t, ok)
	assert.Equal(t, 2.0, row.PriceUsd)
	assert.Equal(t, 200.0, row.Mcap)
	assert.Equal(t, model.FlashUp, row.Flash)
	assert.Equal(t, h.clock.Now(), row.FlashAt)

	require.Len(t, updates, 1)
	assert.Equal(t, id, updates[0].RowID)
	assert.Equal(t, 200.0, updates[0].Mcap)

	h.engine.IngestTick(tick("p1", "t1", "1.5"))
	row, _ = h.engine.Row(id)
	assert.Equal(t, model.FlashDown, row.Flash)

	h.engine.IngestTick(tick("p1", "t1", "1.5"))
	row, _ = h.engine.Row(id)
	assert.Equal(t, model.FlashNone, row.Flash)
}

func TestEngine_TickUsesLastNonOutlier(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})

	tk := tick("p1", "t1", "3", "4", "900")
	tk.Swaps[2].IsOutlier = true
	h.engine.IngestTick(tk)

	row, _ := h.engine.Row(id)
	assert.Equal(t, 4.0, row.PriceUsd)
}

func TestEngine_OutlierOnlyTickIsNoop(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})
	h.flush(t)
	before, _ := h.engine.Row(id)

	tk := tick("p1", "t1", "50", "60")
	tk.Swaps[0].IsOutlier = true
	tk.Swaps[1].IsOutlier = true
	h.engine.IngestTick(tk)
	h.engine.IngestTick(tick("p1", "t1"))

	after, _ := h.engine.Row(id)
	assert.Equal(t, before, after)
	assert.False(t, h.engine.Stats().Pending)
	assert.Zero(t, h.engine.Stats().TicksApplied)
}

func TestEngine_DropsMalformedAndUnknownTicks(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})

	h.engine.IngestTick(tick("p1", "t1", "not-a-number"))
	h.engine.IngestTick(tick("p1", "t1", "NaN"))
	h.engine.IngestTick(tick("ghost", "t9", "5"))

	row, _ := h.engine.Row(id)
	assert.Equal(t, 1.0, row.PriceUsd)
	assert.Equal(t, 1, h.engine.Stats().Rows)
	assert.EqualValues(t, 1, h.engine.Stats().UnknownEvents)
}

func TestEngine_PairStatsNegatesHoneypot(t *testing.T) {
	h := newHarness(t, Config{})
	id := model.NewRowID("p1", "t1")
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})

	h.engine.IngestPairStats(api.PairStatsPayload{Pair: api.PairStats{
		PairAddress:      "p1",
		Token1IsHoneypot: false,
	}})

	row, _ := h.engine.Row(id)
	assert.True(t, row.Audit.Honeypot)

	h.engine.IngestPairStats(api.PairStatsPayload{Pair: api.PairStats{
		PairAddress:      "p1",
		Token1IsHoneypot: true,
	}})
	row, _ = h.engine.Row(id)
	assert.False(t, row.Audit.Honeypot)
}

func TestEngine_PairStatsOptionalFields(t *testing.T) {
	h := newHarness(t, Config{})
	rec := record("p1", "t1", "1", "5")
	rec.ContractRenounced = true
	rec.LiquidityLocked = true
	site := "https://example.org"
	rec.WebLink = &site
	h.engine.IngestSnapshotPage([]api.ScannerResult{rec, record("p1", "t2", "1", "5")})

	tg := "https://t.me/x"
	paid := true
	h.engine.IngestPairStats(api.PairStatsPayload{
		Pair: api.PairStats{
			PairAddress:            "p1",
			MintAuthorityRenounced: true,
			LinkTelegram:           &tg,
			DexPaid:                &paid,
		},
		MigrationProgress: "42.5",
	})

	for _, token := range []string{"t1", "t2"} {
		row, ok := h.engine.Row(model.NewRowID("p1", token))
		require.True(t, ok)
		assert.True(t, row.Audit.MintAuthDisabled)
		require.NotNil(t, row.Audit.LinkTelegram)
		assert.Equal(t, tg, *row.Audit.LinkTelegram)
		require.NotNil(t, row.MigrationPc)
		assert.Equal(t, 42.5, *row.MigrationPc)
	}

	row, _ := h.engine.Row(model.NewRowID("p1", "t1"))
	assert.True(t, row.Audit.Renounced, "renounced is retained")
	assert.True(t, row.Audit.LiquidityLocked, "absent locked ratio leaves flag")
	require.NotNil(t, row.Audit.LinkWebsite)
	assert.Equal(t, site, *row.Audit.LinkWebsite)

	h.engine.IngestPairStats(api.PairStatsPayload{Pair: api.PairStats{
		PairAddress:      "p1",
		TotalLockedRatio: "0",
	}})
	row, _ = h.engine.Row(model.NewRowID("p1", "t1"))
	assert.False(t, row.Audit.LiquidityLocked)
}

func TestEngine_PairStatsUnknownPairDoesNotSchedule(t *testing.T) {
	h := newHarness(t, Config{})

	h.engine.IngestPairStats(api.PairStatsPayload{Pair: api.PairStats{PairAddress: "nope"}})

	assert.False(t, h.engine.Stats().Pending)
	assert.EqualValues(t, 1, h.engine.Stats().UnknownEvents)
}

func TestEngine_TickBurstPublishesOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})
	h.flush(t)
	base := h.engine.Stats().Publishes

	for i := range 50 {
		h.engine.IngestTick(tick("p1", "t1", fmt.Sprintf("%d", i+2)))
		h.clock.Add(time.Millisecond)
	}
	h.clock.Add(DefaultDebounce)
	rows := h.waitPublish(t)

	require.Len(t, rows, 1)
	assert.Equal(t, 51.0, rows[0].PriceUsd)
	assert.Equal(t, base+1, h.engine.Stats().Publishes)

	h.clock.Add(time.Second)
	h.assertNoPublish(t)
}

func TestEngine_SortStableAcrossRecomputes(t *testing.T) {
	h := newHarness(t, Config{Sort: model.Sort{RankBy: model.RankVolume, OrderBy: model.OrderDesc}})

	h.engine.IngestSnapshotPage([]api.ScannerResult{
		record("pc", "t", "1", "10"),
		record("pa", "t", "1", "10"),
		record("pd", "t", "1", "50"),
		record("pb", "t", "1", "10"),
	})
	first := h.flush(t)

	ids := make([]model.RowID, len(first))
	for i, r := range first {
		ids[i] = r.ID
	}
	assert.Equal(t, []model.RowID{"pd-t", "pa-t", "pb-t", "pc-t"}, ids)

	for range 3 {
		h.engine.SetSort(model.Sort{RankBy: model.RankVolume, OrderBy: model.OrderDesc})
		again := h.flush(t)
		assert.Equal(t, first, again)
	}
}

func TestEngine_SortAscendingAndNone(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.IngestSnapshotPage([]api.ScannerResult{
		record("pb", "t", "1", "1"),
		record("pa", "t", "1", "9"),
	})
	rows := h.flush(t)
	assert.Equal(t, model.RowID("pa-t"), rows[0].ID, "none orders by id")

	h.engine.SetSort(model.Sort{RankBy: model.RankVolume, OrderBy: model.OrderAsc})
	rows = h.flush(t)
	assert.Equal(t, model.RowID("pb-t"), rows[0].ID)
}

func TestEngine_ResetClearsPendingAndPublishesEmpty(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})

	h.engine.ResetRows()
	rows := h.waitPublish(t)
	assert.Empty(t, rows)

	h.clock.Add(DefaultDebounce)
	h.assertNoPublish(t)
	assert.Zero(t, h.engine.Stats().Rows)
}

func TestEngine_ApplyAndConsume(t *testing.T) {
	h := newHarness(t, Config{})
	q := router.NewQueue[router.Event](4)

	q.Push(router.Event{Kind: router.KindScannerPairs, Pairs: []api.ScannerResult{record("p1", "t1", "1", "5")}})
	tk := tick("p1", "t1", "3")
	q.Push(router.Event{Kind: router.KindTick, Tick: &tk})
	q.Close()

	h.engine.Consume(context.Background(), q)

	row, ok := h.engine.Row(model.NewRowID("p1", "t1"))
	require.True(t, ok)
	assert.Equal(t, 3.0, row.PriceUsd)
}

func TestEngine_ClosedRejectsCommands(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.Close()

	assert.ErrorIs(t, h.engine.SetFilter(context.Background(), model.Filter{}), ErrClosed)
	assert.ErrorIs(t, h.engine.SetRealtime(context.Background(), true), ErrClosed)

	h.engine.IngestSnapshotPage([]api.ScannerResult{record("p1", "t1", "1", "5")})
	assert.Zero(t, h.engine.Stats().Rows)
}

func TestEngine_ConnectFailureSurfaces(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.setConnectErr(errors.New("refused"))

	require.NoError(t, h.engine.SetFilter(context.Background(), model.Filter{}))
	err := h.engine.SetRealtime(context.Background(), true)

	require.Error(t, err)
	stats := h.engine.Stats()
	assert.True(t, stats.Realtime)
	assert.False(t, stats.Streaming)
	assert.False(t, stats.FilterSubscribed)
	assert.Zero(t, h.transport.count(connection.EventScannerFilter))
}

func TestEngine_ObserverMayCallEngine(t *testing.T) {
	h := newHarness(t, Config{})
	seen := make(chan int, 4)
	h.engine.OnPublish(func(rows []model.Row) {
		seen <- len(h.engine.Rows())
		if len(rows) == 2 {
			h.engine.ResetRows()
		}
	})

	h.engine.IngestSnapshotPage([]api.ScannerResult{
		record("p1", "t1", "1", "5"),
		record("p2", "t2", "1", "5"),
	})
	h.clock.Add(DefaultDebounce)

	assert.Len(t, h.waitPublish(t), 2)
	assert.Empty(t, h.waitPublish(t), "reset from an observer publishes after the current view")
	assert.Equal(t, 2, <-seen)
	assert.Equal(t, 0, <-seen)
}
