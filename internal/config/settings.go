package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/viper"

	"nearmap-compare/internal/nearmap"
)

// EnvPrefix scopes environment overrides: NEARMAP_COMPARE_MINZOOM → minZoom.
const EnvPrefix = "NEARMAP_COMPARE"

// UserSettings represents persistent user preferences
type UserSettings struct {
	// Nearmap API key. Also read from NEARMAP_API_KEY or VITE_NEARMAP_KEY.
	APIKey string `json:"apiKey" mapstructure:"apiKey"`

	// Initial view
	OriginLon  float64 `json:"originLon" mapstructure:"originLon"`
	OriginLat  float64 `json:"originLat" mapstructure:"originLat"`
	OriginZoom int     `json:"originZoom" mapstructure:"originZoom"`

	// Levels Nearmap serves
	MinZoom int `json:"minZoom" mapstructure:"minZoom"`
	MaxZoom int `json:"maxZoom" mapstructure:"maxZoom"`

	// Layer style
	Direction string  `json:"direction" mapstructure:"direction"` // "Vert" or "North"
	Opacity   float64 `json:"opacity" mapstructure:"opacity"`
	BlendMode string  `json:"blendMode" mapstructure:"blendMode"`

	// Cache settings
	CacheMaxSizeMB     int `json:"cacheMaxSizeMB" mapstructure:"cacheMaxSizeMB"`
	CacheTTLDays       int `json:"cacheTTLDays" mapstructure:"cacheTTLDays"`
	CoverageTTLMinutes int `json:"coverageTTLMinutes" mapstructure:"coverageTTLMinutes"`
	CoverageCacheSize  int `json:"coverageCacheSize" mapstructure:"coverageCacheSize"`
	PrefetchWorkers    int `json:"prefetchWorkers" mapstructure:"prefetchWorkers"`
	PrefetchMaxTiles   int `json:"prefetchMaxTiles" mapstructure:"prefetchMaxTiles"`

	AutoRetryRateLimit bool `json:"autoRetryRateLimit" mapstructure:"autoRetryRateLimit"`

	// UI preferences
	Theme string `json:"theme" mapstructure:"theme"` // "light", "dark", "system"

	// InstallID is the anonymous analytics identity, generated on first run.
	InstallID string `json:"installId" mapstructure:"installId"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *UserSettings {
	return &UserSettings{
		OriginLon:          -97.75, // Austin, TX
		OriginLat:          30.269135,
		OriginZoom:         17,
		MinZoom:            17,
		MaxZoom:            24,
		Direction:          string(nearmap.Vertical),
		Opacity:            1,
		BlendMode:          "darken",
		CacheMaxSizeMB:     250,
		CacheTTLDays:       30,
		CoverageTTLMinutes: 30,
		CoverageCacheSize:  512,
		PrefetchWorkers:    4,
		PrefetchMaxTiles:   5000,
		AutoRetryRateLimit: true,
		Theme:              "system",
	}
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()

	// ~/.nearmap-compare/settings/
	baseDir := filepath.Join(homeDir, ".nearmap-compare", "settings")
	os.MkdirAll(baseDir, 0755)

	return filepath.Join(baseDir, "settings.json")
}

// LoadFrom layers defaults, the JSON file at path (optional) and the
// environment, in increasing priority.
func LoadFrom(path string) (*UserSettings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("apiKey", "")
	v.SetDefault("originLon", defaults.OriginLon)
	v.SetDefault("originLat", defaults.OriginLat)
	v.SetDefault("originZoom", defaults.OriginZoom)
	v.SetDefault("minZoom", defaults.MinZoom)
	v.SetDefault("maxZoom", defaults.MaxZoom)
	v.SetDefault("direction", defaults.Direction)
	v.SetDefault("opacity", defaults.Opacity)
	v.SetDefault("blendMode", defaults.BlendMode)
	v.SetDefault("cacheMaxSizeMB", defaults.CacheMaxSizeMB)
	v.SetDefault("cacheTTLDays", defaults.CacheTTLDays)
	v.SetDefault("coverageTTLMinutes", defaults.CoverageTTLMinutes)
	v.SetDefault("coverageCacheSize", defaults.CoverageCacheSize)
	v.SetDefault("prefetchWorkers", defaults.PrefetchWorkers)
	v.SetDefault("prefetchMaxTiles", defaults.PrefetchMaxTiles)
	v.SetDefault("autoRetryRateLimit", defaults.AutoRetryRateLimit)
	v.SetDefault("theme", defaults.Theme)
	v.SetDefault("installId", "")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to parse settings: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("apiKey", EnvPrefix+"_APIKEY", "NEARMAP_API_KEY", "VITE_NEARMAP_KEY")

	var settings UserSettings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return &settings, nil
}

// SaveTo writes settings as indented JSON to path.
func SaveTo(path string, settings *UserSettings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// Validate reports every invalid field at once.
func (s *UserSettings) Validate() error {
	var errs []string

	if s.MinZoom < 0 || s.MaxZoom > 30 {
		errs = append(errs, fmt.Sprintf("zoom range must be within 0-30, got %d-%d", s.MinZoom, s.MaxZoom))
	}
	if s.MinZoom > s.MaxZoom {
		errs = append(errs, fmt.Sprintf("minZoom %d is greater than maxZoom %d", s.MinZoom, s.MaxZoom))
	}
	if s.OriginLon < -180 || s.OriginLon > 180 {
		errs = append(errs, fmt.Sprintf("originLon must be -180..180, got %g", s.OriginLon))
	}
	if s.OriginLat < -90 || s.OriginLat > 90 {
		errs = append(errs, fmt.Sprintf("originLat must be -90..90, got %g", s.OriginLat))
	}
	if _, err := nearmap.ParseDirection(s.Direction); err != nil {
		errs = append(errs, err.Error())
	}
	if s.Opacity <= 0 || s.Opacity > 1 {
		errs = append(errs, fmt.Sprintf("opacity must be in (0, 1], got %g", s.Opacity))
	}
	if s.CacheMaxSizeMB <= 0 {
		errs = append(errs, "cacheMaxSizeMB must be positive")
	}
	if s.CacheTTLDays <= 0 {
		errs = append(errs, "cacheTTLDays must be positive")
	}
	if s.PrefetchWorkers <= 0 || s.PrefetchWorkers > 32 {
		errs = append(errs, fmt.Sprintf("prefetchWorkers must be 1-32, got %d", s.PrefetchWorkers))
	}

	if len(errs) > 0 {
		return fmt.Errorf("settings validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
