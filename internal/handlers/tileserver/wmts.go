package tileserver

import (
	"fmt"
	"log"
	"net/http"

	"nearmap-compare/internal/datelist"
	"nearmap-compare/internal/nearmap"
	"nearmap-compare/internal/wmts"
)

// handleCapabilities publishes the cached capture dates as WMTS layers.
// URL format: /wmts/{direction}/WMTSCapabilities.xml
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	dir, err := nearmap.ParseDirection(r.PathValue("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	datesFn, lods := s.dates, s.lods
	s.mu.RUnlock()

	var dates []string
	if datesFn != nil {
		dates = datesFn()
	}

	base := s.GetTileServerURL()
	if base == "" {
		base = "http://" + r.Host
	}

	layers := make([]wmts.LayerInfo, 0, len(dates)+1)
	layers = append(layers, wmts.LayerInfo{
		Name:        fmt.Sprintf("nearmap-%s-latest", dir),
		Title:       "Nearmap latest",
		TemplateURL: wmtsTemplate(base, dir, "latest"),
	})
	for _, date := range dates {
		title := "Nearmap for " + date
		if label, err := datelist.FormatSelected(date); err == nil {
			title = "Nearmap for " + label
		}
		layers = append(layers, wmts.LayerInfo{
			Name:        fmt.Sprintf("nearmap-%s-%s", dir, date),
			Title:       title,
			TemplateURL: wmtsTemplate(base, dir, date),
		})
	}

	w.Header().Set("Content-Type", "application/xml")
	caps := wmts.NewCapabilities("Nearmap Compare", layers, lods)
	if err := caps.Encode(w); err != nil {
		log.Printf("[NearmapTileServer] capabilities: %v", err)
	}
}

func wmtsTemplate(base string, dir nearmap.Direction, date string) string {
	return fmt.Sprintf("%s/nearmap/%s/%s/{TileMatrix}/{TileCol}/{TileRow}", base, dir, date)
}
