package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"nearmap-compare/internal/cache"
	"nearmap-compare/internal/config"
	"nearmap-compare/internal/datelist"
	"nearmap-compare/internal/handlers/tileserver"
	"nearmap-compare/internal/mapview"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/prefetch"
	"nearmap-compare/internal/ratelimit"
	"nearmap-compare/internal/tilemath"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

const requestTimeout = 30 * time.Second

// AppConfig is everything the frontend needs to build the initial view.
type AppConfig struct {
	Origin        tilemath.GeoCoordinate `json:"origin"`
	OriginZoom    int                    `json:"originZoom"`
	ViewZoom      int                    `json:"viewZoom"`
	MinZoom       int                    `json:"minZoom"`
	MaxZoom       int                    `json:"maxZoom"`
	Direction     string                 `json:"direction"`
	Opacity       float64                `json:"opacity"`
	BlendMode     string                 `json:"blendMode"`
	TileServerURL string                 `json:"tileServerUrl"`
	HasAPIKey     bool                   `json:"hasApiKey"`
	Version       string                 `json:"version"`
}

// DateMenu is the date picker state.
type DateMenu struct {
	Entries       []datelist.Entry  `json:"entries"`
	Selected      string            `json:"selected"`
	SelectedLabel string            `json:"selectedLabel"`
	Nav           datelist.NavState `json:"nav"`
}

// CoverageTile is the tile a coverage lookup queries, with its outline for
// drawing on the map.
type CoverageTile struct {
	Tile    tilemath.Tile `json:"tile"`
	Quadkey string        `json:"quadkey"`
	South   float64       `json:"south"`
	West    float64       `json:"west"`
	North   float64       `json:"north"`
	East    float64       `json:"east"`
}

// LayerState is the map layers plus the compare widget.
type LayerState struct {
	Layers []mapview.WebTileLayer `json:"layers"`
	Swipe  mapview.Swipe          `json:"swipe"`
	State  mapview.State          `json:"state"`
}

// App struct
type App struct {
	ctx          context.Context
	settings     *config.UserSettings
	settingsPath string
	devMode      bool
	phClient     posthog.Client

	client           *nearmap.Client
	rateLimitHandler *ratelimit.Handler
	tileCache        *cache.PersistentTileCache
	tileServer       *tileserver.Server
	prefetcher       *prefetch.Prefetcher
	constraints      mapview.Constraints
	session          *mapview.Session

	mu             sync.Mutex
	direction      nearmap.Direction
	menu           datelist.Menu
	prefetchCancel context.CancelFunc
}

// NewApp creates a new App application struct
func NewApp() *App {
	settingsPath := config.GetSettingsPath()
	settings, err := config.LoadFrom(settingsPath)
	if err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		log.Printf("Invalid settings, using defaults: %v", err)
		installID, apiKey := settings.InstallID, settings.APIKey
		settings = config.DefaultSettings()
		settings.InstallID, settings.APIKey = installID, apiKey
	}
	log.Printf("Settings loaded from: %s", settingsPath)

	if settings.InstallID == "" {
		settings.InstallID = uuid.NewString()
		if err := config.SaveTo(settingsPath, settings); err != nil {
			log.Printf("Failed to persist install id: %v", err)
		}
	}

	limiter := ratelimit.NewHandler(nil)
	limiter.SetAutoRetry(settings.AutoRetryRateLimit)

	client := nearmap.NewClient(nearmap.Options{
		APIKey:            settings.APIKey,
		RateLimit:         limiter,
		CoverageCacheSize: settings.CoverageCacheSize,
		CoverageTTL:       time.Duration(settings.CoverageTTLMinutes) * time.Minute,
	})
	if !client.HasAPIKey() {
		log.Printf("No Nearmap API key configured; set NEARMAP_API_KEY or add it in settings")
	}

	cacheDir := cache.GetCacheDir()
	tileCache, err := cache.NewPersistentTileCache(cacheDir, cache.Config{
		MaxSizeMB: settings.CacheMaxSizeMB,
		TTLDays:   settings.CacheTTLDays,
		HotTiles:  cache.DefaultConfig().HotTiles,
	})
	if err != nil {
		log.Printf("Failed to initialize tile cache: %v", err)
		tileCache = nil
	} else {
		log.Printf("Tile cache initialized at %s (max %d MB)", cacheDir, settings.CacheMaxSizeMB)
	}

	app := newApp(settings, settingsPath, client, limiter, tileCache)

	if PostHogKey != "" {
		phClient, err := posthog.NewWithConfig(PostHogKey, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			log.Printf("Failed to initialize PostHog: %v", err)
		} else {
			app.phClient = phClient
		}
	}

	return app
}

// newApp wires the collaborators. tileCache may be nil.
func newApp(settings *config.UserSettings, settingsPath string, client *nearmap.Client, limiter *ratelimit.Handler, tileCache *cache.PersistentTileCache) *App {
	dir, err := nearmap.ParseDirection(settings.Direction)
	if err != nil {
		dir = nearmap.Vertical
	}

	a := &App{
		settings:         settings,
		settingsPath:     settingsPath,
		client:           client,
		rateLimitHandler: limiter,
		tileCache:        tileCache,
		tileServer:       tileserver.NewServer(client, tileCache, false),
		prefetcher:       prefetch.New(client, tileCache, settings.PrefetchWorkers, settings.PrefetchMaxTiles),
		constraints:      mapview.NewConstraints(settings.MinZoom, settings.MaxZoom),
		direction:        dir,
		menu:             datelist.Build(nil),
	}

	a.tileServer.SetCatalog(a.menuDates, a.constraints.LODs)
	a.session = mapview.NewSession(mapview.Builder{
		Template:  a.layerTemplate,
		TileInfo:  mapview.NewTileInfo(a.constraints.LODs),
		Opacity:   settings.Opacity,
		BlendMode: settings.BlendMode,
	})
	return a
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.tileServer = tileserver.NewServer(a.client, a.tileCache, a.devMode)
	a.tileServer.SetCatalog(a.menuDates, a.constraints.LODs)
	if err := a.tileServer.Start(); err != nil {
		wailsRuntime.LogError(ctx, fmt.Sprintf("Failed to start tile server: %v", err))
	} else {
		wailsRuntime.LogInfo(ctx, "Nearmap tile server listening on "+a.tileServer.GetTileServerURL())
	}

	a.rateLimitHandler.SetOnRateLimit(func(event ratelimit.Event) {
		wailsRuntime.EventsEmit(ctx, "rate-limit", event)
	})
	a.rateLimitHandler.SetOnRetry(func(event ratelimit.Event) {
		wailsRuntime.EventsEmit(ctx, "rate-limit-retry", event)
	})
	a.rateLimitHandler.SetOnRecovered(func(provider string) {
		wailsRuntime.EventsEmit(ctx, "rate-limit-recovered", provider)
	})

	a.TrackEvent("app_started", map[string]interface{}{
		"version": a.GetAppVersion(),
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
	})
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient == nil {
		return
	}
	a.mu.Lock()
	distinctID := a.settings.InstallID
	a.mu.Unlock()

	a.phClient.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	a.CancelPrefetch()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.tileServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Tile server shutdown: %v", err)
	}
	if a.tileCache != nil {
		if err := a.tileCache.Close(); err != nil {
			log.Printf("Tile cache close: %v", err)
		}
	}
	a.rateLimitHandler.Close()

	a.mu.Lock()
	if err := config.SaveTo(a.settingsPath, a.settings); err != nil {
		log.Printf("Failed to save settings on shutdown: %v", err)
	}
	a.mu.Unlock()

	if a.phClient != nil {
		a.phClient.Close()
	}
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}

// GetConfig returns the view configuration.
func (a *App) GetConfig() AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.settings
	return AppConfig{
		Origin:        tilemath.GeoCoordinate{Lon: s.OriginLon, Lat: s.OriginLat},
		OriginZoom:    s.OriginZoom,
		ViewZoom:      a.constraints.InitialZoom(s.OriginZoom),
		MinZoom:       a.constraints.MinZoom,
		MaxZoom:       a.constraints.MaxZoom,
		Direction:     string(a.direction),
		Opacity:       s.Opacity,
		BlendMode:     s.BlendMode,
		TileServerURL: a.tileServer.GetTileServerURL(),
		HasAPIKey:     a.client.HasAPIKey(),
		Version:       AppVersion,
	}
}

// GetLODs returns the levels of detail between the configured zoom bounds.
func (a *App) GetLODs() []tilemath.LOD {
	return a.constraints.LODs
}

// GetViewConstraints returns the constraints for the map view.
func (a *App) GetViewConstraints() mapview.Constraints {
	return a.constraints
}

// GetTileInfo returns the Nearmap tiling scheme.
func (a *App) GetTileInfo() mapview.TileInfo {
	return mapview.NewTileInfo(a.constraints.LODs)
}

// GetCoverageTile returns the tile the coverage lookup for a point uses.
func (a *App) GetCoverageTile(lon, lat float64) (CoverageTile, error) {
	zoom := a.coverageZoom()
	tile, ok := tilemath.TileAt(tilemath.GeoCoordinate{Lon: lon, Lat: lat}, zoom)
	if !ok || !tile.InGrid() {
		return CoverageTile{}, fmt.Errorf("no tile at %.6f,%.6f for zoom %d", lon, lat, zoom)
	}
	south, west, north, east := tilemath.TileBounds(tile)
	return CoverageTile{
		Tile:    tile,
		Quadkey: tile.Quadkey(),
		South:   south,
		West:    west,
		North:   north,
		East:    east,
	}, nil
}

// GetCaptureDates looks up the survey dates at a point and resets the
// selection to the newest one when the list changed.
func (a *App) GetCaptureDates(lon, lat float64) ([]string, error) {
	ctx, cancel := a.requestContext()
	defer cancel()

	coord := tilemath.GeoCoordinate{Lon: lon, Lat: lat}
	dates, err := a.client.CaptureDates(ctx, coord, a.coverageZoom(), a.currentDirection())
	if err != nil {
		a.logError(fmt.Sprintf("Coverage lookup failed at %.6f,%.6f: %v", lon, lat, err))
		if errors.Is(err, nearmap.ErrRateLimited) {
			a.emit("rate-limit", a.rateLimitHandler.GetCurrentState(nearmap.Provider))
		}
		return nil, err
	}

	menu := datelist.Build(dates)
	a.mu.Lock()
	a.menu = menu
	a.mu.Unlock()

	if a.session.ResetDates(menu.Dates()) {
		a.emit("dates-changed", a.GetDateMenu())
		a.emit("layers-changed", a.GetLayers())
	}

	a.TrackEvent("coverage_lookup", map[string]interface{}{
		"dates": len(menu.Dates()),
	})
	return menu.Dates(), nil
}

// GetDateMenu returns the grouped date list and the selected date.
func (a *App) GetDateMenu() DateMenu {
	a.mu.Lock()
	menu := a.menu
	a.mu.Unlock()

	selected := a.session.State().MapDate
	label, _ := datelist.FormatSelected(selected)
	return DateMenu{
		Entries:       menu.Entries(),
		Selected:      selected,
		SelectedLabel: label,
		Nav:           menu.Nav(selected),
	}
}

// SelectDate shows the imagery captured on date.
func (a *App) SelectDate(date string) (DateMenu, error) {
	a.mu.Lock()
	known := a.menu.Contains(date)
	a.mu.Unlock()
	if !known {
		return a.GetDateMenu(), fmt.Errorf("no capture on %s at this location", date)
	}

	a.session.SetMapDate(date)
	a.TrackEvent("date_selected", map[string]interface{}{"date": date, "via": "menu"})
	a.emit("layers-changed", a.GetLayers())
	return a.GetDateMenu(), nil
}

// StepDate moves to the previous (older) or next (newer) capture.
func (a *App) StepDate(older bool) (DateMenu, error) {
	a.mu.Lock()
	menu := a.menu
	a.mu.Unlock()

	current := a.session.State().MapDate
	step, label := menu.Newer, "newer"
	if older {
		step, label = menu.Older, "older"
	}

	date, ok := step(current)
	if !ok {
		return a.GetDateMenu(), fmt.Errorf("no %s capture than %s", label, current)
	}

	a.session.SetMapDate(date)
	a.TrackEvent("date_selected", map[string]interface{}{"date": date, "via": label})
	a.emit("layers-changed", a.GetLayers())
	return a.GetDateMenu(), nil
}

// SetCompare turns the swipe comparison on or off.
func (a *App) SetCompare(enabled bool) LayerState {
	a.session.SetCompare(enabled)
	a.TrackEvent("compare_toggled", map[string]interface{}{"enabled": enabled})
	return a.GetLayers()
}

// SetCompareDate picks the capture shown on the trailing side of the swipe.
func (a *App) SetCompareDate(date string) (LayerState, error) {
	a.mu.Lock()
	known := a.menu.Contains(date)
	a.mu.Unlock()
	if !known {
		return a.GetLayers(), fmt.Errorf("no capture on %s at this location", date)
	}

	a.session.SetCompareDate(date)
	return a.GetLayers(), nil
}

// SetSwipePosition moves the swipe divider (percent of the view width).
func (a *App) SetSwipePosition(position float64) LayerState {
	a.session.SetSwipePosition(position)
	return a.GetLayers()
}

// GetLayers returns the layers and swipe widget for the current selection.
func (a *App) GetLayers() LayerState {
	return LayerState{
		Layers: a.session.Layers(),
		Swipe:  a.session.Swipe(),
		State:  a.session.State(),
	}
}

// GetWMTSCapabilitiesURL returns a WMTS endpoint listing the current capture
// dates, for loading the cached imagery into a desktop GIS.
func (a *App) GetWMTSCapabilitiesURL() string {
	if a.tileServer.GetTileServerURL() == "" {
		return ""
	}
	return a.tileServer.CapabilitiesURL(a.currentDirection())
}

func (a *App) menuDates() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.menu.Dates()
}

// layerTemplate prefers the local caching proxy and falls back to Nearmap
// directly before the proxy is up.
func (a *App) layerTemplate(date string) string {
	dir := a.currentDirection()
	if a.tileServer.GetTileServerURL() != "" {
		return a.tileServer.URLTemplate(dir, date)
	}
	return a.client.URLTemplate(dir, date)
}

func (a *App) currentDirection() nearmap.Direction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.direction
}

func (a *App) coverageZoom() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.OriginZoom
}

func (a *App) requestContext() (context.Context, context.CancelFunc) {
	parent := a.ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, requestTimeout)
}

// emit sends an event to the frontend once the Wails runtime is up.
func (a *App) emit(event string, data ...interface{}) {
	if a.ctx != nil {
		wailsRuntime.EventsEmit(a.ctx, event, data...)
	}
}

func (a *App) logError(message string) {
	if a.ctx != nil {
		wailsRuntime.LogError(a.ctx, message)
		return
	}
	log.Print(message)
}
