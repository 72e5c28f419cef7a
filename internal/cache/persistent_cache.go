package cache

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
)

const indexFile = "cache_index.json"

// PersistentTileCache is a size bounded disk cache of tiles laid out as
// {provider}/{z}/{x}/{y}[_{date}].img, fronted by a small in-memory LRU of
// the most recently served tiles. The index survives restarts.
type PersistentTileCache struct {
	baseDir string
	maxSize int64
	ttl     time.Duration
	now     func() time.Time
	hot     *lru.Cache[Key, []byte]

	mu    sync.RWMutex
	index map[Key]*TileMetadata
	size  int64

	saveMu sync.Mutex

	evictCh   chan struct{}
	saveCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// TileMetadata stores information about a cached tile
type TileMetadata struct {
	Key        Key       `json:"key"`
	Size       int64     `json:"size"`
	AccessTime time.Time `json:"accessTime"`
	CreateTime time.Time `json:"createTime"`
}

// Stats is a cache usage snapshot.
type Stats struct {
	Entries    int    `json:"entries"`
	SizeBytes  int64  `json:"sizeBytes"`
	MaxBytes   int64  `json:"maxBytes"`
	HotEntries int    `json:"hotEntries"`
	Path       string `json:"path"`
}

// NewPersistentTileCache opens (or creates) the cache rooted at baseDir. A
// missing or corrupt index is rebuilt by scanning the directory.
func NewPersistentTileCache(baseDir string, cfg Config) (*PersistentTileCache, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &PersistentTileCache{
		baseDir: baseDir,
		maxSize: int64(cfg.MaxSizeMB) * 1024 * 1024,
		ttl:     time.Duration(cfg.TTLDays) * 24 * time.Hour,
		now:     time.Now,
		index:   make(map[Key]*TileMetadata),
		evictCh: make(chan struct{}, 1),
		saveCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if cfg.HotTiles > 0 {
		hot, err := lru.New[Key, []byte](cfg.HotTiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		c.hot = hot
	}

	if err := c.loadIndex(); err != nil {
		log.Printf("[TileCache] %v, rebuilding index from %s", err, baseDir)
		if err := c.rebuildIndex(); err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	c.wg.Add(1)
	go c.maintenanceWorker()

	return c, nil
}

// Get returns the cached tile for key. Callers must not modify the slice.
func (c *PersistentTileCache) Get(key Key) ([]byte, bool) {
	c.mu.RLock()
	meta, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.expired(meta) {
		c.remove(key)
		return nil, false
	}

	data, ok := c.hotGet(key)
	if !ok {
		var err error
		data, err = os.ReadFile(c.path(key))
		if err != nil {
			c.remove(key)
			return nil, false
		}
		c.hotAdd(key, data)
	}

	c.mu.Lock()
	meta.AccessTime = c.now()
	c.mu.Unlock()
	c.requestSave()

	return data, true
}

// Has reports whether a live entry exists for key without touching it.
func (c *PersistentTileCache) Has(key Key) bool {
	c.mu.RLock()
	meta, ok := c.index[key]
	c.mu.RUnlock()
	return ok && !c.expired(meta)
}

// Set stores data for key, replacing any previous tile.
func (c *PersistentTileCache) Set(key Key, data []byte) error {
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := c.now()
	meta := &TileMetadata{Key: key, Size: int64(len(data)), AccessTime: now, CreateTime: now}

	c.mu.Lock()
	if old, ok := c.index[key]; ok {
		c.size -= old.Size
	}
	c.index[key] = meta
	c.size += meta.Size
	over := c.maxSize > 0 && c.size > c.maxSize
	c.mu.Unlock()

	c.hotAdd(key, data)

	if over {
		select {
		case c.evictCh <- struct{}{}:
		default:
		}
	}
	c.requestSave()
	return nil
}

// Stats returns cache statistics
func (c *PersistentTileCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.index), SizeBytes: c.size, MaxBytes: c.maxSize, Path: c.baseDir}
	if c.hot != nil {
		s.HotEntries = c.hot.Len()
	}
	return s
}

// Clear removes all cached tiles
func (c *PersistentTileCache) Clear() error {
	c.mu.Lock()
	for key := range c.index {
		os.Remove(c.path(key))
	}
	c.index = make(map[Key]*TileMetadata)
	c.size = 0
	c.mu.Unlock()

	if c.hot != nil {
		c.hot.Purge()
	}
	return c.saveIndex()
}

// Close stops background maintenance and flushes the index.
func (c *PersistentTileCache) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return c.saveIndex()
}

func (c *PersistentTileCache) path(key Key) string {
	return filepath.Join(c.baseDir, key.relPath())
}

func (c *PersistentTileCache) expired(meta *TileMetadata) bool {
	return c.ttl > 0 && c.now().Sub(meta.CreateTime) > c.ttl
}

func (c *PersistentTileCache) hotGet(key Key) ([]byte, bool) {
	if c.hot == nil {
		return nil, false
	}
	return c.hot.Get(key)
}

func (c *PersistentTileCache) hotAdd(key Key, data []byte) {
	if c.hot != nil {
		c.hot.Add(key, data)
	}
}

func (c *PersistentTileCache) remove(key Key) {
	c.mu.Lock()
	if meta, ok := c.index[key]; ok {
		os.Remove(c.path(key))
		delete(c.index, key)
		c.size -= meta.Size
	}
	c.mu.Unlock()

	if c.hot != nil {
		c.hot.Remove(key)
	}
	c.requestSave()
}

func (c *PersistentTileCache) requestSave() {
	select {
	case c.saveCh <- struct{}{}:
	default:
	}
}

func (c *PersistentTileCache) maintenanceWorker() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.evictCh:
			c.evictLRU()
		case <-c.saveCh:
			if err := c.saveIndex(); err != nil {
				log.Printf("[TileCache] %v", err)
			}
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

// evictLRU drops least recently used tiles until the cache is at 80% of its
// limit.
func (c *PersistentTileCache) evictLRU() {
	c.mu.Lock()
	if c.maxSize <= 0 || c.size <= c.maxSize {
		c.mu.Unlock()
		return
	}

	entries := make([]*TileMetadata, 0, len(c.index))
	for _, meta := range c.index {
		entries = append(entries, meta)
	}
	slices.SortFunc(entries, func(a, b *TileMetadata) int {
		return a.AccessTime.Compare(b.AccessTime)
	})

	target := c.maxSize * 8 / 10
	var evicted []Key
	for _, meta := range entries {
		if c.size <= target {
			break
		}
		os.Remove(c.path(meta.Key))
		delete(c.index, meta.Key)
		c.size -= meta.Size
		evicted = append(evicted, meta.Key)
	}
	c.mu.Unlock()

	c.dropHot(evicted)
	log.Printf("[TileCache] evicted %d tiles over size limit", len(evicted))
	c.requestSave()
}

func (c *PersistentTileCache) evictExpired() {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	var evicted []Key
	for key, meta := range c.index {
		if c.expired(meta) {
			os.Remove(c.path(key))
			delete(c.index, key)
			c.size -= meta.Size
			evicted = append(evicted, key)
		}
	}
	c.mu.Unlock()

	if len(evicted) > 0 {
		c.dropHot(evicted)
		c.requestSave()
	}
}

func (c *PersistentTileCache) dropHot(keys []Key) {
	if c.hot == nil {
		return
	}
	for _, k := range keys {
		c.hot.Remove(k)
	}
}

func (c *PersistentTileCache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.baseDir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("index not found")
		}
		return fmt.Errorf("failed to read index: %w", err)
	}

	var entries []*TileMetadata
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse index: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[Key]*TileMetadata, len(entries))
	c.size = 0
	for _, meta := range entries {
		if meta == nil {
			continue
		}
		c.index[meta.Key] = meta
		c.size += meta.Size
	}
	return nil
}

// saveIndex snapshots the index under the read lock and writes it without
// holding any lock.
func (c *PersistentTileCache) saveIndex() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.RLock()
	entries := make([]TileMetadata, 0, len(c.index))
	for _, meta := range c.index {
		entries = append(entries, *meta)
	}
	c.mu.RUnlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(c.baseDir, indexFile), data); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// rebuildIndex recreates the index from the tiles on disk.
func (c *PersistentTileCache) rebuildIndex() error {
	index := make(map[Key]*TileMetadata)
	var total int64

	err := filepath.WalkDir(c.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.baseDir, path)
		if err != nil {
			return nil
		}
		key, ok := parseRelPath(rel)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		index[key] = &TileMetadata{
			Key:        key,
			Size:       info.Size(),
			AccessTime: info.ModTime(),
			CreateTime: info.ModTime(),
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}

	c.mu.Lock()
	c.index = index
	c.size = total
	c.mu.Unlock()

	return c.saveIndex()
}

// writeFileAtomic writes data to a unique temp file next to path and renames
// it into place, so concurrent writers of one key never share a temp file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
