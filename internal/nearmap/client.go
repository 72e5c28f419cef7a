package nearmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"nearmap-compare/internal/metrics"
	"nearmap-compare/internal/ratelimit"
	"nearmap-compare/internal/tilemath"
)

const (
	// DefaultTileURL is the Nearmap Tile API base
	DefaultTileURL = "https://api.nearmap.com/tiles/v3"
	// DefaultCoverageURL is the Nearmap point coverage API base
	DefaultCoverageURL = "https://api.nearmap.com/coverage/v2/coord"

	// Provider identifies Nearmap in caches and rate limit state
	Provider = "nearmap"

	UserAgent = "nearmap-compare/1.0"

	defaultCoverageCacheSize = 512
	defaultCoverageTTL       = 30 * time.Minute
)

var (
	ErrMissingAPIKey = errors.New("nearmap: API key not configured")
	ErrNoImagery     = errors.New("nearmap: no imagery for tile")
	ErrRateLimited   = errors.New("nearmap: rate limited")
	ErrUnauthorized  = errors.New("nearmap: API key rejected")
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	APIKey            string
	TileURL           string
	CoverageURL       string
	HTTPClient        *http.Client
	RateLimit         *ratelimit.Handler
	CoverageCacheSize int
	CoverageTTL       time.Duration
}

// Client talks to the Nearmap Tile and Coverage APIs
type Client struct {
	httpClient  *http.Client
	tileURL     string
	coverageURL string
	rateLimit   *ratelimit.Handler
	coverage    *expirable.LRU[tilemath.Tile, *Coverage]

	mu     sync.RWMutex
	apiKey string
}

// NewClient creates a client with system proxy support
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}
	}

	size := opts.CoverageCacheSize
	if size <= 0 {
		size = defaultCoverageCacheSize
	}
	ttl := opts.CoverageTTL
	if ttl <= 0 {
		ttl = defaultCoverageTTL
	}

	return &Client{
		httpClient:  httpClient,
		tileURL:     strings.TrimRight(orDefault(opts.TileURL, DefaultTileURL), "/"),
		coverageURL: strings.TrimRight(orDefault(opts.CoverageURL, DefaultCoverageURL), "/"),
		rateLimit:   opts.RateLimit,
		coverage:    expirable.NewLRU[tilemath.Tile, *Coverage](size, nil, ttl),
		apiKey:      opts.APIKey,
	}
}

// SetAPIKey replaces the key used for subsequent requests and drops cached
// coverage, which may differ between accounts.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
	c.coverage.Purge()
}

// HasAPIKey reports whether a key is configured
func (c *Client) HasAPIKey() bool {
	return c.key() != ""
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Coverage returns the surveys covering tile, newest first. Results are
// cached per tile for the configured TTL.
func (c *Client) Coverage(ctx context.Context, tile tilemath.Tile) (*Coverage, error) {
	if cov, ok := c.coverage.Get(tile); ok {
		metrics.CoverageLookups.WithLabelValues("cached").Inc()
		return cov, nil
	}

	key := c.key()
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	endpoint := fmt.Sprintf("%s/%d/%d/%d?apikey=%s", c.coverageURL, tile.Z, tile.X, tile.Y, url.QueryEscape(key))
	resp, err := c.get(ctx, "coverage", endpoint)
	if err != nil {
		metrics.CoverageLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("coverage %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}
	defer resp.Body.Close()

	var cov Coverage
	if err := json.NewDecoder(resp.Body).Decode(&cov); err != nil {
		metrics.CoverageLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode coverage: %w", err)
	}

	c.coverage.Add(tile, &cov)
	metrics.CoverageLookups.WithLabelValues("fetched").Inc()
	log.Printf("[Coverage] %d/%d/%d: %d surveys", tile.Z, tile.X, tile.Y, len(cov.Surveys))
	return &cov, nil
}

// CaptureDates returns the capture dates available at coord, looked up on the
// tile containing it at zoom.
func (c *Client) CaptureDates(ctx context.Context, coord tilemath.GeoCoordinate, zoom int, dir Direction) ([]string, error) {
	tile, ok := tilemath.TileAt(coord, zoom)
	if !ok || !tile.InGrid() {
		return nil, fmt.Errorf("coordinate %.6f,%.6f has no tile at zoom %d", coord.Lon, coord.Lat, zoom)
	}

	cov, err := c.Coverage(ctx, tile)
	if err != nil {
		return nil, err
	}
	return cov.Dates(dir), nil
}

// TileURL returns the Tile API URL for a single tile. An empty until asks for
// the latest survey.
func (c *Client) TileURL(dir Direction, z, x, y int, until string) string {
	return c.tileEndpoint(dir, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y), until)
}

// URLTemplate returns a tile URL with {level}/{col}/{row} placeholders for
// mapping SDKs that substitute them client side.
func (c *Client) URLTemplate(dir Direction, until string) string {
	return c.tileEndpoint(dir, "{level}", "{col}", "{row}", until)
}

func (c *Client) tileEndpoint(dir Direction, z, x, y, until string) string {
	u := fmt.Sprintf("%s/%s/%s/%s/%s.img?apikey=%s", c.tileURL, dir, z, x, y, url.QueryEscape(c.key()))
	if until != "" {
		u += "&until=" + url.QueryEscape(until)
	}
	return u
}

// FetchTile downloads one tile and returns its bytes and content type.
func (c *Client) FetchTile(ctx context.Context, dir Direction, z, x, y int, until string) ([]byte, string, error) {
	if !c.HasAPIKey() {
		return nil, "", ErrMissingAPIKey
	}

	resp, err := c.get(ctx, "tiles", c.TileURL(dir, z, x, y, until))
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, "", ErrNoImagery
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read tile: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrNoImagery
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// get performs a GET and maps error statuses onto the package sentinels. The
// caller owns the body of a successful response.
func (c *Client) get(ctx context.Context, endpoint, rawURL string) (*http.Response, error) {
	if c.rateLimit != nil && c.rateLimit.IsRateLimited(Provider) {
		return nil, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", redactKey(err))
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, redactKey(err))
	}

	if c.rateLimit != nil && c.rateLimit.CheckResponse(Provider, resp) {
		resp.Body.Close()
		metrics.RateLimitEvents.Inc()
		return nil, ErrRateLimited
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return resp, nil
	case ratelimit.IsRateLimitStatus(resp.StatusCode):
		resp.Body.Close()
		metrics.RateLimitEvents.Inc()
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNoImagery
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%s request failed with status: %d", endpoint, resp.StatusCode)
	}
}

// redactKey masks the apikey query parameter in the URL a transport error
// carries, so the key never reaches logs or the frontend.
func redactKey(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = redactURL(urlErr.URL)
	return err
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("apikey") {
		q.Set("apikey", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
