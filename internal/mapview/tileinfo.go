// Package mapview builds the tiling scheme, view constraints and layer
// descriptors the frontend hands to its mapping SDK.
package mapview

import (
	"nearmap-compare/internal/tilemath"
)

// WebMercatorWKID is the spatial reference of every Nearmap tile.
const WebMercatorWKID = 3857

// Web Mercator extent corner used as the tile origin.
const (
	OriginX = -20037508.342787
	OriginY = 20037508.342787
)

type SpatialReference struct {
	WKID int `json:"wkid"`
}

type Point struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	SpatialReference SpatialReference `json:"spatialReference"`
}

// TileInfo describes the Nearmap tiling scheme.
type TileInfo struct {
	DPI              int              `json:"dpi"`
	Format           string           `json:"format"`
	LODs             []tilemath.LOD   `json:"lods"`
	Origin           Point            `json:"origin"`
	SpatialReference SpatialReference `json:"spatialReference"`
	Size             [2]int           `json:"size"`
}

// NewTileInfo returns the 256px JPEG Web Mercator scheme over lods.
func NewTileInfo(lods []tilemath.LOD) TileInfo {
	sr := SpatialReference{WKID: WebMercatorWKID}
	return TileInfo{
		DPI:              72,
		Format:           "jpg",
		LODs:             lods,
		Origin:           Point{X: OriginX, Y: OriginY, SpatialReference: sr},
		SpatialReference: sr,
		Size:             [2]int{tilemath.TileSize, tilemath.TileSize},
	}
}

// Constraints limits the view to the levels Nearmap serves.
type Constraints struct {
	LODs    []tilemath.LOD `json:"lods"`
	MinZoom int            `json:"minZoom"`
	MaxZoom int            `json:"maxZoom"`
}

// NewConstraints builds constraints for the inclusive zoom range.
func NewConstraints(minZoom, maxZoom int) Constraints {
	return Constraints{
		LODs:    tilemath.BuildLODs(minZoom, maxZoom),
		MinZoom: minZoom,
		MaxZoom: maxZoom,
	}
}

// InitialZoom converts a web map zoom level into the view's zoom, which
// indexes into LODs. Out of range levels snap to the nearest LOD.
func (c Constraints) InitialZoom(originZoom int) int {
	if len(c.LODs) == 0 {
		return 0
	}
	idx := originZoom - c.MinZoom
	if idx < 0 {
		return 0
	}
	if idx >= len(c.LODs) {
		return len(c.LODs) - 1
	}
	return idx
}
