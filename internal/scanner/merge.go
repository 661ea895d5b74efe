package scanner

import (
	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/model"
)

// IngestSnapshotPage merges a page of snapshot records into the table.
// Fields already established by the stream win over snapshot values.
func (e *Engine) IngestSnapshotPage(records []api.ScannerResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	for i := range records {
		row := records[i].ToRow()
		e.upsertLocked(row)
	}

	e.scheduleLocked()
}

// upsertLocked inserts row or refreshes the existing entry with it.
func (e *Engine) upsertLocked(row model.Row) {
	ent, ok := e.rows[row.ID]
	if !ok {
		e.rows[row.ID] = &entry{row: row}
		e.indexLocked(row)
		return
	}

	prev := ent.row
	// The fresh row carries no flash, so a refresh ends any pulse in progress.
	if ent.priceLive {
		row.PriceUsd = prev.PriceUsd
		row.Mcap = prev.Mcap
	}
	if ent.auditLive {
		row.Audit = prev.Audit
	}
	ent.row = row
}

func (e *Engine) indexLocked(row model.Row) {
	ids, ok := e.byPair[row.PairAddress]
	if !ok {
		ids = make(map[model.RowID]struct{})
		e.byPair[row.PairAddress] = ids
	}
	ids[row.ID] = struct{}{}
}

// IngestTick applies the latest non-outlier trade of a tick to its row.
func (e *Engine) IngestTick(tick api.TickPayload) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	trade, ok := tick.LatestTrade()
	if !ok {
		e.mu.Unlock()
		return
	}

	price, ok := trade.PriceToken1Usd.Float()
	if !ok {
		e.logger.Warn("dropping tick with invalid price",
			"pair", tick.Pair.Pair,
			"token", tick.Pair.Token,
			"price", string(trade.PriceToken1Usd),
		)
		e.metrics.RecordParseError(e.cfg.Table)
		e.mu.Unlock()
		return
	}

	id := tick.RowID()
	ent, ok := e.rows[id]
	if !ok {
		e.unknownEvents++
		e.metrics.RecordUnknownRow(e.cfg.Table, connection.EventTick)
		e.logger.Debug("tick for unknown row", "id", id)
		e.mu.Unlock()
		return
	}

	row := &ent.row
	switch {
	case price > row.PriceUsd:
		row.Flash = model.FlashUp
	case price < row.PriceUsd:
		row.Flash = model.FlashDown
	default:
		row.Flash = model.FlashNone
	}
	row.PriceUsd = price
	if row.TotalSupply != nil {
		row.Mcap = *row.TotalSupply * price
	}
	row.FlashAt = e.clock.Now()
	ent.priceLive = true
	e.ticksApplied++

	update := model.PriceUpdate{
		RowID:        row.ID,
		ChainID:      row.ChainID,
		PairAddress:  row.PairAddress,
		TokenAddress: row.TokenAddress,
		PriceUsd:     row.PriceUsd,
		Mcap:         row.Mcap,
		Flash:        row.Flash,
		ObservedAt:   row.FlashAt,
	}

	e.scheduleLocked()
	e.unlockAndNotify(func() { e.notifyPrice(update) })
}

// IngestPairStats applies audit flags to every row on the pair.
func (e *Engine) IngestPairStats(stats api.PairStatsPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	ids := e.byPair[stats.Pair.PairAddress]
	if len(ids) == 0 {
		e.unknownEvents++
		e.metrics.RecordUnknownRow(e.cfg.Table, connection.EventPairStats)
		e.logger.Debug("pair-stats for unknown pair", "pair", stats.Pair.PairAddress)
		return
	}

	migration, hasMigration := stats.MigrationProgress.Float()

	for id := range ids {
		ent, ok := e.rows[id]
		if !ok {
			continue
		}
		applyPairStats(&ent.row, stats.Pair)
		if hasMigration {
			m := migration
			ent.row.MigrationPc = &m
		}
		ent.auditLive = true
	}

	e.scheduleLocked()
}

// applyPairStats overlays stream audit flags. The stream reports whether
// token1 is a honeypot; the row stores the negation of that flag.
func applyPairStats(row *model.Row, ps api.PairStats) {
	a := &row.Audit
	a.MintAuthDisabled = ps.MintAuthorityRenounced
	a.FreezeAuthDisabled = ps.FreezeAuthorityRenounced
	a.Honeypot = !ps.Token1IsHoneypot
	a.ContractVerified = ps.IsVerified
	if ps.TotalLockedRatio.IsSet() {
		a.LiquidityLocked = api.ParseNumericOrZero(ps.TotalLockedRatio) > 0
	}
	if ps.LinkDiscord != nil {
		a.LinkDiscord = ps.LinkDiscord
	}
	if ps.LinkTelegram != nil {
		a.LinkTelegram = ps.LinkTelegram
	}
	if ps.LinkTwitter != nil {
		a.LinkTwitter = ps.LinkTwitter
	}
	if ps.LinkWebsite != nil {
		a.LinkWebsite = ps.LinkWebsite
	}
	if ps.DexPaid != nil {
		a.DexPaid = ps.DexPaid
	}
}
