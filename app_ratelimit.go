package main

import (
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/ratelimit"
)

// Rate Limit Management Functions (Wails-exported)

// ManualRetryRateLimit lets the user retry Nearmap before the backoff ends.
func (a *App) ManualRetryRateLimit() {
	a.rateLimitHandler.ManualRetry(nearmap.Provider)
}

// GetRateLimitStatus returns the current throttling state, or nil.
func (a *App) GetRateLimitStatus() *ratelimit.Event {
	return a.rateLimitHandler.GetCurrentState(nearmap.Provider)
}

// IsRateLimited checks if Nearmap is currently throttling us
func (a *App) IsRateLimited() bool {
	return a.rateLimitHandler.IsRateLimited(nearmap.Provider)
}

// SetAutoRetryRateLimit enables or disables automatic rate limit retries
func (a *App) SetAutoRetryRateLimit(enabled bool) {
	a.rateLimitHandler.SetAutoRetry(enabled)

	a.mu.Lock()
	a.settings.AutoRetryRateLimit = enabled
	a.mu.Unlock()
	// Persisted by Shutdown.
}

// Cache Management Functions (Wails-exported)

// CacheStats represents cache statistics for frontend
type CacheStats struct {
	Entries    int     `json:"entries"`
	HotEntries int     `json:"hotEntries"`
	SizeBytes  int64   `json:"sizeBytes"`
	MaxBytes   int64   `json:"maxBytes"`
	SizeMB     float64 `json:"sizeMB"`
	MaxMB      float64 `json:"maxMB"`
	CachePath  string  `json:"cachePath"`
}

// GetCacheStats returns current cache statistics
func (a *App) GetCacheStats() CacheStats {
	if a.tileCache == nil {
		return CacheStats{}
	}

	s := a.tileCache.Stats()
	return CacheStats{
		Entries:    s.Entries,
		HotEntries: s.HotEntries,
		SizeBytes:  s.SizeBytes,
		MaxBytes:   s.MaxBytes,
		SizeMB:     float64(s.SizeBytes) / 1024 / 1024,
		MaxMB:      float64(s.MaxBytes) / 1024 / 1024,
		CachePath:  s.Path,
	}
}

// ClearCache removes all cached tiles
func (a *App) ClearCache() error {
	if a.tileCache != nil {
		return a.tileCache.Clear()
	}
	return nil
}
