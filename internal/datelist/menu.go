// Package datelist turns a coverage date list into the grouped capture-date
// menu and step navigation shown by the date picker.
package datelist

import (
	"log"
	"time"

	"github.com/samber/lo"
)

// Entry is one row of the date menu: either a year header or a date.
type Entry struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Header bool   `json:"header"`
}

// NavState tells the picker which step buttons are enabled.
type NavState struct {
	CanOlder bool `json:"canOlder"`
	CanNewer bool `json:"canNewer"`
}

// Menu is an immutable date menu, newest first.
type Menu struct {
	entries []Entry
	dates   []string
}

// Build groups dates (ISO, newest first as returned by the coverage API)
// under year headers. Unparseable and duplicate dates are dropped; order
// within a year follows the input.
func Build(dates []string) Menu {
	valid := lo.Uniq(lo.Filter(dates, func(d string, _ int) bool {
		if !ValidateISO8601(d) {
			log.Printf("[DateList] skipping invalid capture date %q", d)
			return false
		}
		return true
	}))

	years := lo.Uniq(lo.Map(valid, func(d string, _ int) string { return d[:4] }))

	entries := make([]Entry, 0, len(valid)+len(years))
	for _, year := range years {
		entries = append(entries, Entry{Value: year, Label: year, Header: true})
		for _, d := range valid {
			if d[:4] != year {
				continue
			}
			t, _ := time.Parse(ISO8601Date, d)
			entries = append(entries, Entry{Value: d, Label: t.Format(MenuDate)})
		}
	}

	return Menu{entries: entries, dates: valid}
}

// Entries returns a copy of the menu rows.
func (m Menu) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Dates returns the dates in menu order, without headers.
func (m Menu) Dates() []string {
	return append([]string(nil), m.dates...)
}

// Contains reports whether date is selectable.
func (m Menu) Contains(date string) bool {
	return lo.Contains(m.dates, date)
}

// Older returns the date captured before current.
func (m Menu) Older(current string) (string, bool) {
	return m.step(current, 1)
}

// Newer returns the date captured after current.
func (m Menu) Newer(current string) (string, bool) {
	return m.step(current, -1)
}

// Nav returns the button state for current. Unknown dates disable both.
func (m Menu) Nav(current string) NavState {
	_, older := m.Older(current)
	_, newer := m.Newer(current)
	return NavState{CanOlder: older, CanNewer: newer}
}

func (m Menu) step(current string, dir int) (string, bool) {
	idx := lo.IndexOf(m.entries, Entry{Value: current, Label: m.label(current)})
	if idx < 0 {
		return "", false
	}
	for i := idx + dir; i >= 0 && i < len(m.entries); i += dir {
		if !m.entries[i].Header {
			return m.entries[i].Value, true
		}
	}
	return "", false
}

func (m Menu) label(date string) string {
	t, err := ParseISO8601(date)
	if err != nil {
		return ""
	}
	return t.Format(MenuDate)
}
