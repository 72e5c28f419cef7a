package tilemath

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestTileX_GridEdges(t *testing.T) {
	for z := 0; z <= 24; z++ {
		if got := TileX(-180, z); got != 0 {
			t.Errorf("TileX(-180, %d) = %v, want 0", z, got)
		}
		if got, want := TileX(180, z), math.Exp2(float64(z)); got != want {
			t.Errorf("TileX(180, %d) = %v, want %v", z, got, want)
		}
	}
}

func TestTileX_Monotonic(t *testing.T) {
	for _, z := range []int{0, 5, 12, 17, 24} {
		prev := TileX(-180, z)
		for lon := -180.0; lon <= 180; lon += 0.37 {
			got := TileX(lon, z)
			if got < prev {
				t.Fatalf("z=%d: TileX(%v) = %v decreased from %v", z, lon, got, prev)
			}
			prev = got
		}
	}
}

func TestTileY_EquatorIsMiddleRow(t *testing.T) {
	for z := 1; z <= 24; z++ {
		if got, want := TileY(0, z), math.Exp2(float64(z-1)); got != want {
			t.Errorf("TileY(0, %d) = %v, want %v", z, got, want)
		}
	}
}

func TestTileXY_Golden(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		zoom     int
		wantX    float64
		wantY    float64
	}{
		{"origin z0", 0, 0, 0, 0, 0},
		{"austin z12", -97.75, 30.269135, 12, 935, 1686},
		{"austin z17", -97.75, 30.269135, 17, 29946, 53963},
		{"london z10", -0.1278, 51.5074, 10, 511, 340},
		{"tokyo z10", 139.6917, 35.6895, 10, 909, 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if x := TileX(tt.lon, tt.zoom); x != tt.wantX {
				t.Errorf("TileX(%v, %d) = %v, want %v", tt.lon, tt.zoom, x, tt.wantX)
			}
			if y := TileY(tt.lat, tt.zoom); y != tt.wantY {
				t.Errorf("TileY(%v, %d) = %v, want %v", tt.lat, tt.zoom, y, tt.wantY)
			}
		})
	}
}

func TestTileY_NoClampingNearPoles(t *testing.T) {
	const z = 3
	n := math.Exp2(z)

	// North of the Mercator band the row goes negative instead of clamping to 0.
	if got := TileY(90, z); !(got < 0) {
		t.Errorf("TileY(90, %d) = %v, want a negative row", z, got)
	}
	if got := TileY(89.9999, z); got != -14 {
		t.Errorf("TileY(89.9999, %d) = %v, want -14", z, got)
	}

	// South of the band the row runs past the bottom of the grid.
	if got := TileY(-89.9999, z); !(got >= n) {
		t.Errorf("TileY(-89.9999, %d) = %v, want >= %v", z, got, n)
	}
}

func TestTileAt(t *testing.T) {
	tile, ok := TileAt(GeoCoordinate{Lon: -97.75, Lat: 30.269135}, 17)
	if !ok {
		t.Fatal("TileAt reported a non-finite tile for Austin")
	}
	if tile != (Tile{X: 29946, Y: 53963, Z: 17}) {
		t.Errorf("TileAt = %+v", tile)
	}
	if !tile.InGrid() {
		t.Errorf("%+v should be inside the grid", tile)
	}

	_, ok = TileAt(GeoCoordinate{Lon: 0, Lat: math.NaN()}, 4)
	if ok {
		t.Error("TileAt with NaN latitude should not be ok")
	}

	out, ok := TileAt(GeoCoordinate{Lon: 0, Lat: 90}, 4)
	if !ok {
		t.Fatal("TileAt(lat=90) produced a non-finite row")
	}
	if out.InGrid() {
		t.Errorf("pole tile %+v should be outside the grid", out)
	}
}

func TestTileBounds_RoundTrip(t *testing.T) {
	tiles := []Tile{
		{X: 0, Y: 0, Z: 0},
		{X: 29946, Y: 53963, Z: 17},
		{X: 935, Y: 1686, Z: 12},
		{X: 7, Y: 0, Z: 3},
		{X: 1 << 23, Y: (1 << 24) - 1, Z: 24},
	}

	for _, tile := range tiles {
		south, west, north, east := TileBounds(tile)

		// Pull each corner a hair inside the tile so edge rounding cannot
		// push it into the neighbour.
		dLon := (east - west) * 1e-6
		dLat := (north - south) * 1e-6
		corners := []GeoCoordinate{
			{Lon: west + dLon, Lat: north - dLat},
			{Lon: east - dLon, Lat: north - dLat},
			{Lon: west + dLon, Lat: south + dLat},
			{Lon: east - dLon, Lat: south + dLat},
		}
		for _, c := range corners {
			got, ok := TileAt(c, tile.Z)
			if !ok || got != tile {
				t.Errorf("corner %+v of %+v maps to %+v (ok=%v)", c, tile, got, ok)
			}
		}
	}
}

func TestTileBounds_ClosedForm(t *testing.T) {
	tests := []Tile{
		{X: 29946, Y: 53963, Z: 17},
		{X: 0, Y: 0, Z: 1},
		{X: 1 << 23, Y: (1 << 24) - 1, Z: 24},
		// Outside the grid the projection is extrapolated.
		{X: -1, Y: 4, Z: 2},
	}
	const eps = 1e-9
	for _, tile := range tests {
		n := math.Exp2(float64(tile.Z))
		south, west, north, east := TileBounds(tile)
		if math.Abs(west-(float64(tile.X)/n*360-180)) > eps || math.Abs(east-(float64(tile.X+1)/n*360-180)) > eps {
			t.Errorf("%+v lon bounds %v..%v", tile, west, east)
		}
		if math.Abs(north-rowToLat(float64(tile.Y), n)) > eps || math.Abs(south-rowToLat(float64(tile.Y+1), n)) > eps {
			t.Errorf("%+v lat bounds %v..%v", tile, south, north)
		}
	}
}

func TestTileAt_AgreesWithMaptile(t *testing.T) {
	points := []orb.Point{
		{-97.75, 30.269135},
		{151.2093, -33.8688},
		{-0.1278, 51.5074},
		{174.7762, -41.2865},
	}
	for _, p := range points {
		for _, z := range []int{4, 12, 17, 21} {
			want := maptile.At(p, maptile.Zoom(z))
			got, ok := TileAt(GeoCoordinate{Lon: p.Lon(), Lat: p.Lat()}, z)
			if !ok || uint32(got.X) != want.X || uint32(got.Y) != want.Y {
				t.Errorf("TileAt(%v, %d) = %+v, maptile says %v", p, z, got, want)
			}
		}
	}
}

func TestQuadkey(t *testing.T) {
	tests := []struct {
		tile Tile
		want string
	}{
		{Tile{X: 0, Y: 0, Z: 0}, ""},
		{Tile{X: 3, Y: 5, Z: 3}, "213"},
		{Tile{X: 1, Y: 1, Z: 1}, "3"},
		{Tile{X: 0, Y: 0, Z: 3}, "000"},
		{Tile{X: 0, Y: 1, Z: 2}, "02"},
		{Tile{X: 4, Y: 0, Z: 2}, ""},
	}
	for _, tt := range tests {
		if got := tt.tile.Quadkey(); got != tt.want {
			t.Errorf("%+v.Quadkey() = %q, want %q", tt.tile, got, tt.want)
		}
	}
}

func TestTilesInBounds(t *testing.T) {
	tiles := TilesInBounds(-85, -180, 85, 180, 1)
	if len(tiles) != 4 {
		t.Fatalf("whole world at z1 = %d tiles, want 4", len(tiles))
	}
	if tiles[0] != (Tile{0, 0, 1}) || tiles[3] != (Tile{1, 1, 1}) {
		t.Errorf("unexpected order: %+v", tiles)
	}

	// A small box around Austin stays within one z12 tile.
	tiles = TilesInBounds(30.26, -97.76, 30.27, -97.74, 12)
	if len(tiles) != 1 || tiles[0] != (Tile{X: 935, Y: 1686, Z: 12}) {
		t.Errorf("austin box = %+v", tiles)
	}

	if got := TilesInBounds(10, 0, 5, 1, 4); got != nil {
		t.Errorf("inverted box should be empty, got %+v", got)
	}
}

func TestTilesInBounds_NonFinite(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	boxes := [][4]float64{
		{nan, -1, 1, 1},
		{-1, nan, 1, 1},
		{-1, -1, nan, 1},
		{-1, -1, 1, nan},
		{-1, -1, 1, inf},
		{-inf, -1, 1, 1},
	}
	for _, b := range boxes {
		if got := TilesInBounds(b[0], b[1], b[2], b[3], 3); got != nil {
			t.Errorf("TilesInBounds(%v) = %+v, want none", b, got)
		}
	}
}
