package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openCache(t *testing.T, dir string, cfg Config) *PersistentTileCache {
	t.Helper()
	c, err := NewPersistentTileCache(dir, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKeyPaths(t *testing.T) {
	tests := []Key{
		{Provider: "nearmap_Vert", Z: 17, X: 29946, Y: 53963, Date: "2024-05-01"},
		{Provider: "nearmap_North", Z: 20, X: 1, Y: 2},
	}
	for _, k := range tests {
		got, ok := parseRelPath(k.relPath())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
	}

	assert.Equal(t, "nearmap_Vert:17:29946:53963:2024-05-01", tests[0].String())
	assert.Equal(t, "nearmap_North:20:1:2", tests[1].String())
	assert.Equal(t, filepath.Join("nearmap_Vert", "17", "29946", "53963_2024-05-01.img"), tests[0].relPath())

	_, ok := parseRelPath("cache_index.json")
	assert.False(t, ok)
	_, ok = parseRelPath(filepath.Join("p", "z", "1", "2.img"))
	assert.False(t, ok)
}

func TestSetGet(t *testing.T) {
	c := openCache(t, t.TempDir(), DefaultConfig())
	key := Key{Provider: "nearmap_Vert", Z: 17, X: 1, Y: 2, Date: "2024-05-01"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, []byte("tile")))
	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("tile"), data)
	assert.True(t, c.Has(key))

	other := key
	other.Date = "2023-08-15"
	assert.False(t, c.Has(other), "dates are cached separately")

	require.NoError(t, c.Set(key, []byte("replaced")))
	s := c.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(len("replaced")), s.SizeBytes)
}

func TestGet_ReadsDiskWithoutHotLayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HotTiles = 0
	c := openCache(t, t.TempDir(), cfg)
	key := Key{Provider: "nearmap_Vert", Z: 3, X: 1, Y: 1}

	require.NoError(t, c.Set(key, []byte("disk")))
	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("disk"), data)

	require.NoError(t, os.Remove(c.path(key)))
	_, ok = c.Get(key)
	assert.False(t, ok, "missing file drops the entry")
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestTTLExpiry(t *testing.T) {
	c := openCache(t, t.TempDir(), Config{MaxSizeMB: 10, TTLDays: 1, HotTiles: 8})
	key := Key{Provider: "nearmap_Vert", Z: 3, X: 1, Y: 1}
	require.NoError(t, c.Set(key, []byte("old")))

	base := time.Now()
	c.now = func() time.Time { return base.Add(25 * time.Hour) }

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestEvictLRU(t *testing.T) {
	c := openCache(t, t.TempDir(), Config{MaxSizeMB: 1, HotTiles: 8})
	base := time.Now()
	tile := bytes.Repeat([]byte{1}, 400*1024)

	keys := make([]Key, 3)
	for i := range keys {
		keys[i] = Key{Provider: "nearmap_Vert", Z: 10, X: i, Y: 0}
		at := base.Add(time.Duration(i) * time.Minute)
		c.now = func() time.Time { return at }
		require.NoError(t, c.Set(keys[i], tile))
	}

	c.evictLRU()

	assert.False(t, c.Has(keys[0]), "oldest tile evicted")
	assert.True(t, c.Has(keys[2]))
	assert.LessOrEqual(t, c.Stats().SizeBytes, int64(1024*1024*8/10))
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	key := Key{Provider: "nearmap_North", Z: 18, X: 5, Y: 6, Date: "2022-01-01"}

	c, err := NewPersistentTileCache(dir, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, c.Set(key, []byte("persisted")))
	require.NoError(t, c.Close())

	reopened := openCache(t, dir, DefaultConfig())
	data, ok := reopened.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("persisted"), data)
}

func TestRebuildIndexFromDisk(t *testing.T) {
	dir := t.TempDir()
	key := Key{Provider: "nearmap_Vert", Z: 19, X: 7, Y: 8, Date: "2021-11-30"}

	c, err := NewPersistentTileCache(dir, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, c.Set(key, []byte("orphan")))
	require.NoError(t, c.Close())
	require.NoError(t, os.Remove(filepath.Join(dir, indexFile)))

	rebuilt := openCache(t, dir, DefaultConfig())
	assert.True(t, rebuilt.Has(key))
	assert.Equal(t, int64(len("orphan")), rebuilt.Stats().SizeBytes)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	c := openCache(t, dir, DefaultConfig())
	key := Key{Provider: "nearmap_Vert", Z: 3, X: 1, Y: 1}
	require.NoError(t, c.Set(key, []byte("x")))

	require.NoError(t, c.Clear())
	assert.False(t, c.Has(key))
	_, err := os.Stat(c.path(key))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, Stats{MaxBytes: 250 * 1024 * 1024, Path: dir}, c.Stats())
}

func TestSet_ConcurrentSameKey(t *testing.T) {
	dir := t.TempDir()
	c := openCache(t, dir, DefaultConfig())
	key := Key{Provider: "nearmap_Vert", Z: 17, X: 29946, Y: 53963, Date: "2024-05-01"}

	const writers = 16
	tile := bytes.Repeat([]byte("t"), 64*1024)

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Set(key, tile)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, tile, got)
	assert.Equal(t, int64(len(tile)), c.Stats().SizeBytes)

	// No temp files left next to the tile.
	entries, err := os.ReadDir(filepath.Dir(c.path(key)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(c.path(key)), entries[0].Name())
}
