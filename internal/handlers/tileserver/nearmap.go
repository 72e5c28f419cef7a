package tileserver

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"nearmap-compare/internal/cache"
	"nearmap-compare/internal/datelist"
	"nearmap-compare/internal/metrics"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/tilemath"
)

// maxZoom bounds requested levels well past anything Nearmap serves.
const maxZoom = 30

// CacheProvider is the cache namespace for tiles of one direction.
func CacheProvider(dir nearmap.Direction) string {
	return nearmap.Provider + "_" + string(dir)
}

// handleNearmapTile serves Nearmap tiles with persistent caching
// URL format: /nearmap/{direction}/{date}/{z}/{x}/{y}
func (s *Server) handleNearmapTile(w http.ResponseWriter, r *http.Request) {
	dir, err := nearmap.ParseDirection(r.PathValue("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	date := r.PathValue("date")
	if date == "latest" {
		date = ""
	} else if !datelist.ValidateISO8601(date) {
		http.Error(w, "Invalid date, expected YYYY-MM-DD or latest", http.StatusBadRequest)
		return
	}

	tile, ok := parseTile(r)
	if !ok {
		http.Error(w, "Invalid tile coordinates", http.StatusBadRequest)
		return
	}

	// "latest" changes whenever a new survey lands, so it always goes upstream.
	latest := date == ""

	key := cache.Key{Provider: CacheProvider(dir), Z: tile.Z, X: tile.X, Y: tile.Y, Date: date}
	if s.tileCache != nil && !latest {
		if data, found := s.tileCache.Get(key); found {
			if s.devMode {
				log.Printf("[NearmapTileServer] Cache hit: %s", key)
			}
			metrics.TileRequests.WithLabelValues("hit").Inc()
			writeTile(w, data, http.DetectContentType(data), "HIT", true)
			return
		}
	}

	data, contentType, err := s.fetcher.FetchTile(r.Context(), dir, tile.Z, tile.X, tile.Y, date)
	switch {
	case errors.Is(err, nearmap.ErrRateLimited):
		metrics.TileRequests.WithLabelValues("rate_limited").Inc()
		http.Error(w, "Nearmap rate limit reached, retry later", http.StatusTooManyRequests)
		return
	case errors.Is(err, nearmap.ErrNoImagery):
		metrics.TileRequests.WithLabelValues("empty").Inc()
		serveTransparentTile(w)
		return
	case err != nil:
		log.Printf("[NearmapTileServer] Failed to fetch %s: %v", key, err)
		metrics.TileRequests.WithLabelValues("error").Inc()
		serveTransparentTile(w)
		return
	}

	if latest {
		metrics.TileRequests.WithLabelValues("bypass").Inc()
		writeTile(w, data, contentType, "BYPASS", false)
		return
	}
	if s.tileCache != nil {
		if err := s.tileCache.Set(key, data); err != nil {
			log.Printf("[NearmapTileServer] Failed to cache %s: %v", key, err)
		}
	}

	metrics.TileRequests.WithLabelValues("miss").Inc()
	writeTile(w, data, contentType, "MISS", true)
}

func parseTile(r *http.Request) (tilemath.Tile, bool) {
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(r.PathValue("y"))
	if errZ != nil || errX != nil || errY != nil || z > maxZoom {
		return tilemath.Tile{}, false
	}
	t := tilemath.Tile{X: x, Y: y, Z: z}
	return t, t.InGrid()
}

// writeTile sends a tile. Dated surveys never change, so they may be cached
// by the client indefinitely.
func writeTile(w http.ResponseWriter, data []byte, contentType, cacheStatus string, immutable bool) {
	w.Header().Set("Content-Type", contentType)
	if immutable {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Cache-Status", cacheStatus)
	w.Write(data)
}
