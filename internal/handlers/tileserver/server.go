package tileserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"nearmap-compare/internal/cache"
	"nearmap-compare/internal/metrics"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/tilemath"
)

// TileFetcher downloads a single upstream tile. *nearmap.Client satisfies it.
type TileFetcher interface {
	FetchTile(ctx context.Context, dir nearmap.Direction, z, x, y int, until string) ([]byte, string, error)
}

// Server is the loopback tile proxy the map layers point at. It caches every
// Nearmap tile it serves on disk.
type Server struct {
	fetcher   TileFetcher
	tileCache *cache.PersistentTileCache
	devMode   bool

	mu            sync.RWMutex
	httpServer    *http.Server
	tileServerURL string
	dates         func() []string
	lods          []tilemath.LOD
}

// NewServer creates a new tile server instance. tileCache may be nil.
func NewServer(fetcher TileFetcher, tileCache *cache.PersistentTileCache, devMode bool) *Server {
	return &Server{
		fetcher:   fetcher,
		tileCache: tileCache,
		devMode:   devMode,
	}
}

// GetTileServerURL returns the tile server URL, empty until Start succeeds.
func (s *Server) GetTileServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tileServerURL
}

// URLTemplate returns the proxied tile URL for one survey date, with the
// {level}/{col}/{row} placeholders the map SDK fills in.
func (s *Server) URLTemplate(dir nearmap.Direction, date string) string {
	return fmt.Sprintf("%s/nearmap/%s/%s/{level}/{col}/{row}", s.GetTileServerURL(), dir, date)
}

// SetCatalog sets what the WMTS capabilities document publishes: one layer
// per date returned by dates, over lods.
func (s *Server) SetCatalog(dates func() []string, lods []tilemath.LOD) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dates = dates
	s.lods = lods
}

// CapabilitiesURL returns the WMTS GetCapabilities URL for one direction.
func (s *Server) CapabilitiesURL(dir nearmap.Direction) string {
	return fmt.Sprintf("%s/wmts/%s/WMTSCapabilities.xml", s.GetTileServerURL(), dir)
}

// corsMiddleware adds CORS headers to allow requests from Wails frontend
// On macOS/Linux, Wails uses wails://wails origin which requires CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		w.Header().Set("Access-Control-Expose-Headers", "X-Cache-Status")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routed, CORS wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /nearmap/{direction}/{date}/{z}/{x}/{y}", s.handleNearmapTile)
	mux.HandleFunc("GET /wmts/{direction}/WMTSCapabilities.xml", s.handleCapabilities)
	mux.Handle("GET /metrics", metrics.Handler())
	return corsMiddleware(mux)
}

// Start listens on a random loopback port and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start tile server: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s.mu.Lock()
	s.httpServer = srv
	s.tileServerURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	s.mu.Unlock()
	log.Printf("[NearmapTileServer] started on %s", s.GetTileServerURL())

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[NearmapTileServer] stopped: %v", err)
		}
	}()

	return nil
}

// Shutdown stops the listener and waits for in-flight tiles.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
