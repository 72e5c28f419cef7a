package main

import (
	"context"
	"fmt"

	"nearmap-compare/internal/datelist"
	"nearmap-compare/internal/prefetch"
)

// PrefetchProgress is emitted as "prefetch-progress" while warming the cache.
type PrefetchProgress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Date    string `json:"date"`
}

// PrefetchArea downloads every tile of a box for one date into the cache so
// the area can be browsed offline. Only one prefetch runs at a time.
func (a *App) PrefetchArea(south, west, north, east float64, date string) (prefetch.Result, error) {
	if !datelist.ValidateISO8601(date) {
		return prefetch.Result{}, fmt.Errorf("invalid capture date %q", date)
	}

	a.mu.Lock()
	if a.prefetchCancel != nil {
		a.mu.Unlock()
		return prefetch.Result{}, fmt.Errorf("a prefetch is already running")
	}
	parent := a.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	a.prefetchCancel = cancel
	req := prefetch.Request{
		South: south, West: west, North: north, East: east,
		MinZoom:   a.constraints.MinZoom,
		MaxZoom:   a.constraints.MaxZoom,
		Direction: a.direction,
		Date:      date,
	}
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.prefetchCancel = nil
		a.mu.Unlock()
	}()

	res, err := a.prefetcher.Warm(ctx, req, func(done, total int) {
		a.emit("prefetch-progress", PrefetchProgress{
			Done:    done,
			Total:   total,
			Percent: done * 100 / total,
			Date:    date,
		})
	})
	if err != nil {
		a.logError(fmt.Sprintf("Prefetch for %s stopped: %v", date, err))
	}
	return res, err
}

// CancelPrefetch stops a running prefetch, if any.
func (a *App) CancelPrefetch() {
	a.mu.Lock()
	cancel := a.prefetchCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
