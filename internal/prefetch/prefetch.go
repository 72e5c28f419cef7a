// Package prefetch warms the tile cache for an area so it can be browsed
// without waiting on the network.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"nearmap-compare/internal/cache"
	"nearmap-compare/internal/handlers/tileserver"
	"nearmap-compare/internal/metrics"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/tilemath"
)

// ErrTooManyTiles is returned when a request exceeds the configured limit.
var ErrTooManyTiles = errors.New("prefetch: area too large")

// Request is a WGS84 box and inclusive zoom range for one survey date.
type Request struct {
	South     float64           `json:"south"`
	West      float64           `json:"west"`
	North     float64           `json:"north"`
	East      float64           `json:"east"`
	MinZoom   int               `json:"minZoom"`
	MaxZoom   int               `json:"maxZoom"`
	Direction nearmap.Direction `json:"direction"`
	Date      string            `json:"date"`
}

// Result counts what happened to each planned tile.
type Result struct {
	Total   int `json:"total"`
	Fetched int `json:"fetched"`
	Cached  int `json:"cached"`
	Empty   int `json:"empty"`
	Failed  int `json:"failed"`
}

// Prefetcher downloads tiles into the cache with a bounded worker pool.
type Prefetcher struct {
	fetcher  tileserver.TileFetcher
	cache    *cache.PersistentTileCache
	workers  int
	maxTiles int
}

// New creates a prefetcher. maxTiles <= 0 disables the size check.
func New(fetcher tileserver.TileFetcher, tileCache *cache.PersistentTileCache, workers, maxTiles int) *Prefetcher {
	if workers <= 0 {
		workers = 1
	}
	return &Prefetcher{
		fetcher:  fetcher,
		cache:    tileCache,
		workers:  workers,
		maxTiles: maxTiles,
	}
}

// Plan lists the tiles a request covers, lowest zoom first. Only dated
// surveys are prefetched; the proxy never caches the latest imagery.
func (p *Prefetcher) Plan(req Request) ([]tilemath.Tile, error) {
	if req.Date == "" {
		return nil, fmt.Errorf("a capture date is required")
	}
	if req.MinZoom > req.MaxZoom {
		return nil, fmt.Errorf("minZoom %d is greater than maxZoom %d", req.MinZoom, req.MaxZoom)
	}
	for _, v := range []float64{req.South, req.West, req.North, req.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid bounds %g,%g,%g,%g", req.South, req.West, req.North, req.East)
		}
	}
	if req.South > req.North || req.West > req.East {
		return nil, fmt.Errorf("invalid bounds %g,%g,%g,%g", req.South, req.West, req.North, req.East)
	}

	var tiles []tilemath.Tile
	for z := req.MinZoom; z <= req.MaxZoom; z++ {
		tiles = append(tiles, tilemath.TilesInBounds(req.South, req.West, req.North, req.East, z)...)
		if p.maxTiles > 0 && len(tiles) > p.maxTiles {
			return nil, fmt.Errorf("%w: more than %d tiles", ErrTooManyTiles, p.maxTiles)
		}
	}
	return tiles, nil
}

// Warm fetches every planned tile that is not already cached. It stops early
// when ctx is cancelled or Nearmap starts rate limiting; the partial result is
// returned alongside the error.
func (p *Prefetcher) Warm(ctx context.Context, req Request, onProgress func(done, total int)) (Result, error) {
	tiles, err := p.Plan(req)
	if err != nil {
		return Result{}, err
	}

	total := len(tiles)
	var done, fetched, cached, empty, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	provider := tileserver.CacheProvider(req.Direction)
	for _, tile := range tiles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				n := atomic.AddInt64(&done, 1)
				if onProgress != nil {
					onProgress(int(n), total)
				}
			}()

			key := cache.Key{Provider: provider, Z: tile.Z, X: tile.X, Y: tile.Y, Date: req.Date}
			if p.cache != nil && p.cache.Has(key) {
				atomic.AddInt64(&cached, 1)
				metrics.PrefetchedTiles.WithLabelValues("cached").Inc()
				return nil
			}

			data, _, err := p.fetcher.FetchTile(gctx, req.Direction, tile.Z, tile.X, tile.Y, req.Date)
			switch {
			case errors.Is(err, nearmap.ErrRateLimited), errors.Is(err, nearmap.ErrUnauthorized), errors.Is(err, nearmap.ErrMissingAPIKey):
				atomic.AddInt64(&failed, 1)
				metrics.PrefetchedTiles.WithLabelValues("failed").Inc()
				return err
			case errors.Is(err, nearmap.ErrNoImagery):
				atomic.AddInt64(&empty, 1)
				metrics.PrefetchedTiles.WithLabelValues("empty").Inc()
				return nil
			case err != nil:
				atomic.AddInt64(&failed, 1)
				metrics.PrefetchedTiles.WithLabelValues("failed").Inc()
				return nil
			}

			if p.cache != nil {
				if err := p.cache.Set(key, data); err != nil {
					log.Printf("[Prefetch] Failed to cache %s: %v", key, err)
				}
			}
			atomic.AddInt64(&fetched, 1)
			metrics.PrefetchedTiles.WithLabelValues("fetched").Inc()
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	res := Result{
		Total:   total,
		Fetched: int(fetched),
		Cached:  int(cached),
		Empty:   int(empty),
		Failed:  int(failed),
	}
	log.Printf("[Prefetch] %s %s z%d-%d: %+v", req.Direction, req.Date, req.MinZoom, req.MaxZoom, res)
	return res, err
}
