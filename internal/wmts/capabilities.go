// Package wmts describes the local tile proxy as an OGC WMTS 1.0.0 service so
// desktop GIS clients can load the same cached Nearmap layers.
package wmts

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"nearmap-compare/internal/tilemath"
)

const (
	TileMatrixSetID = "NearmapWebMercator"
	WebMercatorCRS  = "urn:ogc:def:crs:EPSG::3857"

	// OGC standardized rendering pixel size in metres.
	standardPixelSize = 0.00028
	topLeftCorner     = "-20037508.3427892 20037508.3427892"
)

// Capabilities is the GetCapabilities document.
type Capabilities struct {
	XMLName  xml.Name `xml:"Capabilities"`
	XMLNS    string   `xml:"xmlns,attr"`
	OWS      string   `xml:"xmlns:ows,attr"`
	XLink    string   `xml:"xmlns:xlink,attr"`
	Version  string   `xml:"version,attr"`
	Title    string   `xml:"ows:ServiceIdentification>ows:Title"`
	Type     string   `xml:"ows:ServiceIdentification>ows:ServiceType"`
	TypeVer  string   `xml:"ows:ServiceIdentification>ows:ServiceTypeVersion"`
	Contents Contents `xml:"Contents"`
}

type Contents struct {
	Layers         []Layer         `xml:"Layer"`
	TileMatrixSets []TileMatrixSet `xml:"TileMatrixSet"`
}

type Layer struct {
	Title             string            `xml:"ows:Title"`
	Abstract          string            `xml:"ows:Abstract,omitempty"`
	Identifier        string            `xml:"ows:Identifier"`
	Style             Style             `xml:"Style"`
	Format            string            `xml:"Format"`
	TileMatrixSetLink TileMatrixSetLink `xml:"TileMatrixSetLink"`
	ResourceURL       ResourceURL       `xml:"ResourceURL"`
}

type Style struct {
	IsDefault  bool   `xml:"isDefault,attr"`
	Identifier string `xml:"ows:Identifier"`
}

type TileMatrixSetLink struct {
	TileMatrixSet string `xml:"TileMatrixSet"`
}

type ResourceURL struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

type TileMatrixSet struct {
	Identifier   string       `xml:"ows:Identifier"`
	SupportedCRS string       `xml:"ows:SupportedCRS"`
	TileMatrices []TileMatrix `xml:"TileMatrix"`
}

type TileMatrix struct {
	Identifier       string  `xml:"ows:Identifier"`
	ScaleDenominator float64 `xml:"ScaleDenominator"`
	TopLeftCorner    string  `xml:"TopLeftCorner"`
	TileWidth        int     `xml:"TileWidth"`
	TileHeight       int     `xml:"TileHeight"`
	MatrixWidth      int     `xml:"MatrixWidth"`
	MatrixHeight     int     `xml:"MatrixHeight"`
}

// LayerInfo is one published capture date.
type LayerInfo struct {
	Name        string
	Title       string
	Description string
	// TemplateURL uses the WMTS {TileMatrix}/{TileCol}/{TileRow} placeholders.
	TemplateURL string
	Format      string
}

// NewCapabilities builds a document with one layer per entry, all sharing
// a Web Mercator matrix set over lods.
func NewCapabilities(title string, layers []LayerInfo, lods []tilemath.LOD) *Capabilities {
	caps := &Capabilities{
		XMLNS:   "http://www.opengis.net/wmts/1.0",
		OWS:     "http://www.opengis.net/ows/1.1",
		XLink:   "http://www.w3.org/1999/xlink",
		Version: "1.0.0",
		Title:   title,
		Type:    "OGC WMTS",
		TypeVer: "1.0.0",
	}

	for _, l := range layers {
		format := l.Format
		if format == "" {
			format = "image/jpeg"
		}
		caps.Contents.Layers = append(caps.Contents.Layers, Layer{
			Title:             l.Title,
			Abstract:          l.Description,
			Identifier:        l.Name,
			Style:             Style{IsDefault: true, Identifier: "default"},
			Format:            format,
			TileMatrixSetLink: TileMatrixSetLink{TileMatrixSet: TileMatrixSetID},
			ResourceURL:       ResourceURL{Format: format, ResourceType: "tile", Template: l.TemplateURL},
		})
	}

	set := TileMatrixSet{Identifier: TileMatrixSetID, SupportedCRS: WebMercatorCRS}
	for _, lod := range lods {
		n := 1 << lod.Level
		set.TileMatrices = append(set.TileMatrices, TileMatrix{
			Identifier:       strconv.Itoa(lod.Level),
			ScaleDenominator: lod.Resolution / standardPixelSize,
			TopLeftCorner:    topLeftCorner,
			TileWidth:        tilemath.TileSize,
			TileHeight:       tilemath.TileSize,
			MatrixWidth:      n,
			MatrixHeight:     n,
		})
	}
	caps.Contents.TileMatrixSets = []TileMatrixSet{set}
	return caps
}

// Encode writes the document with an XML header.
func (c *Capabilities) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}
	return nil
}
