package nearmap

import (
	"fmt"
	"strings"
)

// Direction is a Nearmap tile view.
type Direction string

const (
	Vertical Direction = "Vert"
	North    Direction = "North"
)

// ParseDirection accepts the views the viewer can render. Oblique east, west
// and south views exist upstream but the map SDK cannot orient them yet.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vert", "vertical":
		return Vertical, nil
	case "north":
		return North, nil
	default:
		return "", fmt.Errorf("unsupported direction %q (must be Vert or North)", s)
	}
}

// Coverage is the body of a coverage/v2/coord response.
type Coverage struct {
	Surveys []Survey `json:"surveys"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Survey is one capture over the queried tile.
type Survey struct {
	ID          string `json:"id"`
	CaptureDate string `json:"captureDate"`
	Resources   struct {
		Tiles []TileResource `json:"tiles"`
	} `json:"resources"`
}

// TileResource is a tile layer a survey provides.
type TileResource struct {
	ID    string `json:"id"`
	Scale int    `json:"scale"`
	Type  string `json:"type"`
}

// Offers reports whether the survey has tiles for dir. Surveys that list no
// resources are assumed to offer every view.
func (s Survey) Offers(dir Direction) bool {
	if len(s.Resources.Tiles) == 0 {
		return true
	}
	for _, r := range s.Resources.Tiles {
		if strings.EqualFold(r.Type, string(dir)) {
			return true
		}
	}
	return false
}

// Dates returns the distinct capture dates offering dir, in response order.
func (c *Coverage) Dates(dir Direction) []string {
	seen := make(map[string]bool, len(c.Surveys))
	dates := make([]string, 0, len(c.Surveys))
	for _, s := range c.Surveys {
		if s.CaptureDate == "" || seen[s.CaptureDate] || !s.Offers(dir) {
			continue
		}
		seen[s.CaptureDate] = true
		dates = append(dates, s.CaptureDate)
	}
	return dates
}
