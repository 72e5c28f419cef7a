package mapview

import "fmt"

const (
	DefaultOpacity   = 1.0
	DefaultBlendMode = "darken"
	Copyright        = "Nearmap"

	SwipeID              = "compare-swipe"
	DefaultSwipePosition = 35.0
)

// LayerID names the lead layer "date" and the compare layer "compare-date".
func LayerID(date string, compare bool) string {
	if compare {
		return "compare-" + date
	}
	return date
}

// WebTileLayer is a tiled imagery layer for one capture date.
type WebTileLayer struct {
	ID          string   `json:"id"`
	Date        string   `json:"date"`
	Title       string   `json:"title"`
	URLTemplate string   `json:"urlTemplate"`
	Copyright   string   `json:"copyright"`
	Opacity     float64  `json:"opacity"`
	BlendMode   string   `json:"blendMode"`
	TileInfo    TileInfo `json:"tileInfo"`
}

// Swipe is the compare widget: leading layers left of Position percent,
// trailing layers right of it.
type Swipe struct {
	ID             string   `json:"id"`
	Enabled        bool     `json:"enabled"`
	Position       float64  `json:"position"`
	LeadingLayers  []string `json:"leadingLayers"`
	TrailingLayers []string `json:"trailingLayers"`
}

// Builder produces layers sharing one tiling scheme and style.
type Builder struct {
	// Template returns the {level}/{col}/{row} URL serving date.
	Template  func(date string) string
	TileInfo  TileInfo
	Opacity   float64
	BlendMode string
}

// Layer builds the layer for date.
func (b Builder) Layer(date string, compare bool) WebTileLayer {
	opacity := b.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = DefaultOpacity
	}
	blend := b.BlendMode
	if blend == "" {
		blend = DefaultBlendMode
	}

	var tmpl string
	if b.Template != nil {
		tmpl = b.Template(date)
	}

	return WebTileLayer{
		ID:          LayerID(date, compare),
		Date:        date,
		Title:       fmt.Sprintf("Nearmap for %s", date),
		URLTemplate: tmpl,
		Copyright:   Copyright,
		Opacity:     opacity,
		BlendMode:   blend,
		TileInfo:    b.TileInfo,
	}
}
