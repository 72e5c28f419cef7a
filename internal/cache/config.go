package cache

import (
	"os"
	"path/filepath"
)

// Config sizes the tile cache.
type Config struct {
	MaxSizeMB int `json:"maxSizeMB"`
	TTLDays   int `json:"ttlDays"`
	// HotTiles is the number of recently served tiles kept in memory.
	HotTiles int `json:"hotTiles"`
}

// DefaultConfig matches the settings defaults.
func DefaultConfig() Config {
	return Config{
		MaxSizeMB: 250,
		TTLDays:   30,
		HotTiles:  256,
	}
}

// GetCacheDir returns the tile directory under the user cache dir
// (~/.cache, ~/Library/Caches or %LocalAppData%).
func GetCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "nearmap-compare", "tiles")
}
