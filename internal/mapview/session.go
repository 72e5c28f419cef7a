package mapview

import (
	"math"
	"slices"
	"sync"
)

// State is a snapshot of the user's date and compare selection.
type State struct {
	MapDate       string   `json:"mapDate"`
	CompareDate   string   `json:"compareDate"`
	Compare       bool     `json:"compare"`
	SwipePosition float64  `json:"swipePosition"`
	Dates         []string `json:"dates"`
}

// Session holds the selection for one map view. Safe for concurrent use.
type Session struct {
	builder Builder

	mu    sync.RWMutex
	state State
}

func NewSession(b Builder) *Session {
	return &Session{
		builder: b,
		state:   State{SwipePosition: DefaultSwipePosition},
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Dates = slices.Clone(s.state.Dates)
	return st
}

func (s *Session) SetMapDate(date string) {
	s.mu.Lock()
	s.state.MapDate = date
	s.mu.Unlock()
}

func (s *Session) SetCompareDate(date string) {
	s.mu.Lock()
	s.state.CompareDate = date
	s.mu.Unlock()
}

func (s *Session) SetCompare(enabled bool) {
	s.mu.Lock()
	s.state.Compare = enabled
	s.mu.Unlock()
}

// SetSwipePosition moves the divider, clamped to 0..100 percent.
func (s *Session) SetSwipePosition(pos float64) float64 {
	switch {
	case math.IsNaN(pos):
		pos = DefaultSwipePosition
	case pos < 0:
		pos = 0
	case pos > 100:
		pos = 100
	}
	s.mu.Lock()
	s.state.SwipePosition = pos
	s.mu.Unlock()
	return pos
}

// ResetDates applies a fresh coverage date list (newest first). When it
// differs from the current list both dates move to the newest capture and
// ResetDates returns true.
func (s *Session) ResetDates(dates []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Equal(dates, s.state.Dates) {
		return false
	}
	s.state.Dates = slices.Clone(dates)

	newest := ""
	if len(dates) > 0 {
		newest = dates[0]
	}
	s.state.MapDate = newest
	s.state.CompareDate = newest
	return true
}

// Layers returns the lead layer, followed by the compare layer when
// comparing. Unset dates produce no layer.
func (s *Session) Layers() []WebTileLayer {
	st := s.State()

	layers := make([]WebTileLayer, 0, 2)
	if st.MapDate != "" {
		layers = append(layers, s.builder.Layer(st.MapDate, false))
	}
	if st.Compare && st.CompareDate != "" {
		layers = append(layers, s.builder.Layer(st.CompareDate, true))
	}
	return layers
}

// Swipe describes the compare widget for the current selection.
func (s *Session) Swipe() Swipe {
	st := s.State()

	sw := Swipe{
		ID:             SwipeID,
		Enabled:        st.Compare && st.MapDate != "" && st.CompareDate != "",
		Position:       st.SwipePosition,
		LeadingLayers:  []string{},
		TrailingLayers: []string{},
	}
	if sw.Enabled {
		sw.LeadingLayers = append(sw.LeadingLayers, LayerID(st.MapDate, false))
		sw.TrailingLayers = append(sw.TrailingLayers, LayerID(st.CompareDate, true))
	}
	return sw
}
