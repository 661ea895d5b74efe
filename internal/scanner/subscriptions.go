package scanner

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/rickgao/dex-scanner/internal/api"
	"github.com/rickgao/dex-scanner/internal/connection"
	"github.com/rickgao/dex-scanner/internal/model"
)

// SetFilter switches the active filter. Setting a filter equal to the
// active one does nothing. Otherwise the old filter is unsubscribed, the
// table is reset, and when realtime is on the new filter is subscribed.
// A stream that cannot be reached does not fail the switch: the table keeps
// loading from snapshots and the filter is registered once the stream is
// re-established.
func (e *Engine) SetFilter(ctx context.Context, f model.Filter) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.hasFilter && e.filter.Key() == f.Key() {
		e.mu.Unlock()
		return nil
	}

	e.unsubscribeFilterLocked()
	view := e.resetLocked()

	e.filter = f
	e.hasFilter = true
	if s := f.Sort(); s.RankBy != model.RankNone {
		e.sort = s
	}
	realtime := e.realtime

	e.logger.Info("filter changed", "filter", f.Key())
	e.unlockAndNotify(func() { e.notifyPublish(view) })

	if realtime {
		if err := e.establish(ctx); err != nil {
			e.logger.Warn("filter not registered on stream", "filter", f.Key(), "error", err)
		}
	}
	return nil
}

// ResetRows clears the table and publishes the empty view. Every
// subscribed row is unsubscribed first.
func (e *Engine) ResetRows() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	view := e.resetLocked()
	e.unlockAndNotify(func() { e.notifyPublish(view) })
}

func (e *Engine) resetLocked() []model.Row {
	e.unsubscribeAllRowsLocked()
	clear(e.rows)
	clear(e.byPair)
	clear(e.mounted)
	e.view = nil
	e.debouncer.Clear()
	e.publishes++
	e.metrics.RecordPublish(e.cfg.Table, 0, len(e.subscribed))
	return []model.Row{}
}

// SetRealtime enables or disables stream subscriptions. Disabling
// unsubscribes the filter and every row; enabling connects, subscribes the
// filter and reconciles rows against the current view.
//
// A failed connect leaves realtime wanted but not streaming and is
// returned; calling SetRealtime(true) again retries it.
func (e *Engine) SetRealtime(ctx context.Context, on bool) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	if !on {
		if e.realtime {
			e.realtime = false
			e.streaming = false
			e.unsubscribeAllRowsLocked()
			e.unsubscribeFilterLocked()
			e.logger.Info("realtime disabled")
		}
		e.mu.Unlock()
		return nil
	}

	if e.realtime && e.streaming && (e.filterSubscribed || !e.hasFilter) {
		e.mu.Unlock()
		return nil
	}
	if !e.realtime {
		e.realtime = true
		e.logger.Info("realtime enabled")
	}
	e.mu.Unlock()

	return e.establish(ctx)
}

// Mount marks a row as wanted under the mounted strategy.
func (e *Engine) Mount(id model.RowID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.mounted[id] = struct{}{}
	e.reconcileLocked()
}

// Unmount clears a mark set by Mount.
func (e *Engine) Unmount(id model.RowID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	delete(e.mounted, id)
	e.reconcileLocked()
}

// Resubscribe forgets what the server knows and sends the filter and row
// subscriptions again. Call it after the transport reconnects.
func (e *Engine) Resubscribe(ctx context.Context) error {
	e.mu.Lock()
	if e.closed || !e.realtime {
		e.mu.Unlock()
		return nil
	}
	clear(e.subscribed)
	e.filterSubscribed = false
	e.streaming = false
	e.metrics.SetSubscriptions(e.cfg.Table, 0)
	e.mu.Unlock()

	return e.establish(ctx)
}

// establish connects the transport without holding the engine lock, then
// registers the current filter and reconciles rows if realtime is still
// wanted. The transport treats Connect on an open connection as a no-op.
func (e *Engine) establish(ctx context.Context) error {
	if e.transport != nil {
		if err := e.transport.Connect(ctx); err != nil {
			e.mu.Lock()
			e.streaming = false
			e.mu.Unlock()
			e.metrics.RecordConnectError(e.cfg.Table)
			return fmt.Errorf("connect transport: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.realtime {
		return nil
	}
	e.streaming = true
	e.subscribeFilterLocked()
	e.reconcileLocked()
	return nil
}

// subscribeFilterLocked registers the current filter. The transport must
// already be connected.
func (e *Engine) subscribeFilterLocked() {
	if !e.hasFilter || e.filterSubscribed || !e.streaming {
		return
	}
	e.send(connection.EventScannerFilter, e.filter)
	e.filterSubscribed = true
}

func (e *Engine) unsubscribeFilterLocked() {
	if !e.filterSubscribed {
		return
	}
	e.send(connection.EventUnsubscribeScannerFilter, e.filter)
	e.filterSubscribed = false
}

// wantedLocked returns the ids that should hold row subscriptions.
func (e *Engine) wantedLocked() map[model.RowID]struct{} {
	wanted := make(map[model.RowID]struct{})
	switch e.cfg.Strategy {
	case StrategyMounted:
		for id := range e.mounted {
			if _, ok := e.rows[id]; ok {
				wanted[id] = struct{}{}
			}
		}
	default:
		for i := range e.view {
			wanted[e.view[i].ID] = struct{}{}
		}
	}
	return wanted
}

// reconcileLocked diffs wanted ids against subscribed ids, sending every
// unsubscribe before any subscribe. Nothing is sent until the transport is
// established.
func (e *Engine) reconcileLocked() {
	if !e.realtime || !e.streaming || e.closed {
		return
	}

	wanted := e.wantedLocked()

	var dropped []model.RowID
	for id := range e.subscribed {
		if _, ok := wanted[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	slices.Sort(dropped)
	for _, id := range dropped {
		e.unsubscribeRowLocked(id)
	}

	added := slices.Sorted(maps.Keys(wanted))
	for _, id := range added {
		if _, ok := e.subscribed[id]; ok {
			continue
		}
		ent, ok := e.rows[id]
		if !ok {
			continue
		}
		payload := api.NewPairSubscription(ent.row)
		e.send(connection.EventSubscribePair, payload)
		e.send(connection.EventSubscribePairStats, payload)
		e.subscribed[id] = payload
	}

	e.metrics.SetSubscriptions(e.cfg.Table, len(e.subscribed))
}

func (e *Engine) unsubscribeRowLocked(id model.RowID) {
	payload, ok := e.subscribed[id]
	if !ok {
		return
	}
	e.send(connection.EventUnsubscribePair, payload)
	e.send(connection.EventUnsubscribePairStats, payload)
	delete(e.subscribed, id)
}

func (e *Engine) unsubscribeAllRowsLocked() {
	ids := slices.Sorted(maps.Keys(e.subscribed))
	for _, id := range ids {
		e.unsubscribeRowLocked(id)
	}
	e.metrics.SetSubscriptions(e.cfg.Table, 0)
}
