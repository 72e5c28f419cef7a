package prefetch

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nearmap-compare/internal/cache"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/tilemath"
)

type stubFetcher struct {
	calls atomic.Int32
	err   error
}

func (s *stubFetcher) FetchTile(_ context.Context, _ nearmap.Direction, z, x, y int, _ string) ([]byte, string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte{0xff, 0xd8, 0xff, byte(z), byte(x), byte(y)}, "image/jpeg", nil
}

// downtownAustin covers one z17 tile, and so four z18 tiles.
func downtownAustin() Request {
	south, west, north, east := tilemath.TileBounds(tilemath.Tile{X: 29946, Y: 53963, Z: 17})
	const inset = 1e-7
	return Request{
		South: south + inset, West: west + inset, North: north - inset, East: east - inset,
		MinZoom: 17, MaxZoom: 18,
		Direction: nearmap.Vertical,
		Date:      "2024-05-01",
	}
}

func newCache(t *testing.T) *cache.PersistentTileCache {
	t.Helper()
	c, err := cache.NewPersistentTileCache(t.TempDir(), cache.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPlan(t *testing.T) {
	p := New(&stubFetcher{}, nil, 2, 0)

	tiles, err := p.Plan(downtownAustin())
	require.NoError(t, err)
	require.Len(t, tiles, 5)
	assert.Equal(t, tilemath.Tile{X: 29946, Y: 53963, Z: 17}, tiles[0])
	assert.Equal(t, tilemath.Tile{X: 59892, Y: 107926, Z: 18}, tiles[1])

	_, err = New(&stubFetcher{}, nil, 2, 3).Plan(downtownAustin())
	assert.ErrorIs(t, err, ErrTooManyTiles)

	bad := downtownAustin()
	bad.MinZoom, bad.MaxZoom = 18, 17
	_, err = p.Plan(bad)
	assert.Error(t, err)

	latest := downtownAustin()
	latest.Date = ""
	_, err = p.Plan(latest)
	assert.Error(t, err)
}

func TestPlan_NonFiniteBounds(t *testing.T) {
	f := &stubFetcher{}
	p := New(f, nil, 2, 0)

	for _, mutate := range []func(*Request){
		func(r *Request) { r.South = math.NaN() },
		func(r *Request) { r.West = math.NaN() },
		func(r *Request) { r.North = math.Inf(1) },
		func(r *Request) { r.East = math.Inf(-1) },
	} {
		req := downtownAustin()
		mutate(&req)
		_, err := p.Plan(req)
		assert.Error(t, err)

		res, err := p.Warm(context.Background(), req, nil)
		assert.Error(t, err)
		assert.Zero(t, res.Total)
	}
	assert.Zero(t, f.calls.Load())
}

func TestWarm_FetchesThenUsesCache(t *testing.T) {
	f := &stubFetcher{}
	p := New(f, newCache(t), 3, 100)

	var mu sync.Mutex
	var last, total int
	res, err := p.Warm(context.Background(), downtownAustin(), func(done, n int) {
		mu.Lock()
		defer mu.Unlock()
		if done > last {
			last = done
		}
		total = n
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 5, Fetched: 5}, res)
	assert.Equal(t, 5, last)
	assert.Equal(t, 5, total)

	res, err = p.Warm(context.Background(), downtownAustin(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 5, Cached: 5}, res)
	assert.Equal(t, int32(5), f.calls.Load())
}

func TestWarm_NoImagery(t *testing.T) {
	p := New(&stubFetcher{err: nearmap.ErrNoImagery}, newCache(t), 2, 0)
	res, err := p.Warm(context.Background(), downtownAustin(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 5, Empty: 5}, res)
}

func TestWarm_StopsOnRateLimit(t *testing.T) {
	p := New(&stubFetcher{err: nearmap.ErrRateLimited}, newCache(t), 1, 0)
	res, err := p.Warm(context.Background(), downtownAustin(), nil)
	require.ErrorIs(t, err, nearmap.ErrRateLimited)
	assert.GreaterOrEqual(t, res.Failed, 1)
	assert.Zero(t, res.Fetched)
}

func TestWarm_Cancelled(t *testing.T) {
	f := &stubFetcher{}
	p := New(f, newCache(t), 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Warm(ctx, downtownAustin(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.calls.Load())
}
