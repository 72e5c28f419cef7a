package main

import (
	"log"
	"math"

	"nearmap-compare/internal/config"
	"nearmap-compare/internal/nearmap"
)

// ===================
// Settings Management
// ===================

// GetSettings returns current user settings
func (a *App) GetSettings() (*config.UserSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Return a copy to prevent external modifications
	settingsCopy := *a.settings
	return &settingsCopy, nil
}

// SaveSettings validates, persists and applies user settings. The API key,
// direction and auto retry apply immediately. Everything else applies on next
// restart.
func (a *App) SaveSettings(settings *config.UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	dir, _ := nearmap.ParseDirection(settings.Direction)

	updated := *settings
	updated.Direction = string(dir)

	a.mu.Lock()
	if updated.InstallID == "" {
		updated.InstallID = a.settings.InstallID
	}
	if err := config.SaveTo(a.settingsPath, &updated); err != nil {
		a.mu.Unlock()
		return err
	}
	keyChanged := updated.APIKey != a.settings.APIKey
	dirChanged := dir != a.direction
	restart := updated.MinZoom != a.settings.MinZoom || updated.MaxZoom != a.settings.MaxZoom ||
		updated.CacheMaxSizeMB != a.settings.CacheMaxSizeMB || updated.CacheTTLDays != a.settings.CacheTTLDays ||
		updated.Opacity != a.settings.Opacity || updated.BlendMode != a.settings.BlendMode
	a.settings = &updated
	a.direction = dir
	a.mu.Unlock()

	if keyChanged {
		a.client.SetAPIKey(updated.APIKey)
	}
	a.rateLimitHandler.SetAutoRetry(updated.AutoRetryRateLimit)

	if restart {
		log.Printf("Settings saved. Zoom, layer style and cache settings will apply on next restart.")
	}
	if dirChanged || keyChanged {
		a.emit("layers-changed", a.GetLayers())
	}
	return nil
}

// GetSettingsPath returns the OS-specific settings file path
func (a *App) GetSettingsPath() string {
	return a.settingsPath
}

// SaveMapPosition remembers the last viewed location as the next origin.
func (a *App) SaveMapPosition(lat, lon, zoom float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.settings.OriginLat = lat
	a.settings.OriginLon = lon
	a.settings.OriginZoom = int(math.Round(zoom))

	if err := config.SaveTo(a.settingsPath, a.settings); err != nil {
		return err
	}

	log.Printf("Saved map position: lat=%.6f, lon=%.6f, zoom=%.1f", lat, lon, zoom)
	return nil
}
