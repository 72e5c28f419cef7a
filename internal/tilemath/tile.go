// Package tilemath converts geographic coordinates to slippy-map tile indices
// and derives the levels of detail for the extended Nearmap zoom range.
//
// Everything here is a pure function of its inputs and may be called from any
// goroutine.
package tilemath

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Web Mercator limits of the square tile grid.
const (
	MaxLatitude = 85.05112877980659
	MinLatitude = -MaxLatitude
)

// GeoCoordinate is a WGS84 position in degrees.
type GeoCoordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Tile is an XYZ tile address. Y grows southwards from the top of the grid.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// TileX returns floor(((lon+180)/360) * 2^zoom), the column containing lon.
// Longitudes outside [-180, 180] are not rejected and simply land outside the
// grid. The result is always a whole number.
func TileX(lon float64, zoom int) float64 {
	return math.Floor((lon + 180) / 360 * math.Exp2(float64(zoom)))
}

// TileY returns the Web Mercator row containing lat at zoom.
//
// The formula diverges at the poles. At ±90 degrees (and anywhere outside
// the Mercator band) the result is whatever IEEE-754 arithmetic produces:
// negative, beyond 2^zoom, ±Inf or NaN. Callers that need a valid row must
// range-check lat themselves or use TileAt.
func TileY(lat float64, zoom int) float64 {
	latRad := lat * math.Pi / 180
	n := math.Exp2(float64(zoom))
	return math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)
}

// TileAt returns the tile containing c at zoom. ok is false when either index
// is not finite, which only happens for latitudes at or beyond the poles.
func TileAt(c GeoCoordinate, zoom int) (t Tile, ok bool) {
	x := TileX(c.Lon, zoom)
	y := TileY(c.Lat, zoom)
	if !isFinite(x) || !isFinite(y) {
		return Tile{}, false
	}
	return Tile{X: int(x), Y: int(y), Z: zoom}, true
}

// InGrid reports whether the tile lies inside the 2^Z x 2^Z grid.
func (t Tile) InGrid() bool {
	if t.Z < 0 {
		return false
	}
	n := 1 << t.Z
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

func (t Tile) toMaptile() maptile.Tile {
	return maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Z))
}

// Bound returns the WGS84 extent of an in-grid tile.
func (t Tile) Bound() orb.Bound {
	return t.toMaptile().Bound()
}

// TileBounds returns the WGS84 box of a tile as (south, west, north, east).
// Tiles outside the grid are extrapolated with the same projection.
func TileBounds(t Tile) (south, west, north, east float64) {
	if t.InGrid() {
		b := t.Bound()
		return b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon()
	}

	n := math.Exp2(float64(t.Z))
	west = float64(t.X)/n*360 - 180
	east = float64(t.X+1)/n*360 - 180
	north = rowToLat(float64(t.Y), n)
	south = rowToLat(float64(t.Y+1), n)
	return south, west, north, east
}

func rowToLat(row, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*row/n))) * 180 / math.Pi
}

// Quadkey returns the Bing-style quadkey of the tile, one base-4 digit per
// level. Tiles outside the grid have no quadkey.
func (t Tile) Quadkey() string {
	if t.Z == 0 || !t.InGrid() {
		return ""
	}
	digits := strconv.FormatUint(t.toMaptile().Quadkey(), 4)
	return strings.Repeat("0", t.Z-len(digits)) + digits
}

// TilesInBounds returns every tile at zoom intersecting the WGS84 box, row by
// row from the north-west corner. Latitudes are clamped to the Mercator band
// and indices to the grid. Boxes with a non-finite edge are empty.
func TilesInBounds(south, west, north, east float64, zoom int) []Tile {
	if !isFinite(south) || !isFinite(west) || !isFinite(north) || !isFinite(east) {
		return nil
	}
	south = clampFloat(south, MinLatitude, MaxLatitude)
	north = clampFloat(north, MinLatitude, MaxLatitude)
	if south > north || west > east {
		return nil
	}

	last := (1 << zoom) - 1
	minX := clamp(int(TileX(west, zoom)), 0, last)
	maxX := clamp(int(TileX(east, zoom)), 0, last)
	minY := clamp(int(TileY(north, zoom)), 0, last)
	maxY := clamp(int(TileY(south, zoom)), 0, last)

	tiles := make([]Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, Tile{X: x, Y: y, Z: zoom})
		}
	}
	return tiles
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
