package tilemath

import "math"

const (
	// TileSize is the edge length of a Nearmap tile in pixels.
	TileSize = 256
	// EarthCircumference is the equatorial circumference in meters used by
	// the mapping SDK's Web Mercator tiling scheme.
	EarthCircumference = 40075016.685568
	// InchesPerMeter converts ground resolution to map scale.
	InchesPerMeter = 39.37
	// ScreenDPI is the display baseline the SDK assumes for scale.
	ScreenDPI = 96

	// InitialResolution is meters per pixel at zoom 0.
	InitialResolution = EarthCircumference / TileSize
)

// LOD is one level of detail of a tiling scheme.
type LOD struct {
	Level      int     `json:"level"`
	Scale      float64 `json:"scale"`
	Resolution float64 `json:"resolution"`
}

// Resolution returns the ground resolution in meters per pixel at zoom.
func Resolution(zoom int) float64 {
	return InitialResolution / math.Exp2(float64(zoom))
}

// ScaleForResolution returns the map scale denominator for a resolution.
func ScaleForResolution(resolution float64) float64 {
	return resolution * ScreenDPI * InchesPerMeter
}

// BuildLODs returns one LOD per zoom from minZoom to maxZoom inclusive, in
// ascending order. Each level halves the resolution of the previous one.
//
// Reversed bounds (minZoom > maxZoom) yield an empty, non-nil slice rather
// than an error so a misconfigured range simply disables the custom levels.
func BuildLODs(minZoom, maxZoom int) []LOD {
	if minZoom > maxZoom {
		return []LOD{}
	}

	lods := make([]LOD, 0, maxZoom-minZoom+1)
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		res := Resolution(zoom)
		lods = append(lods, LOD{
			Level:      zoom,
			Scale:      ScaleForResolution(res),
			Resolution: res,
		})
	}
	return lods
}
