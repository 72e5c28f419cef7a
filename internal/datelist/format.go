package datelist

import (
	"fmt"
	"time"
)

const (
	// ISO8601Date is the capture date format used by the Nearmap APIs, the
	// tile cache and the frontend.
	ISO8601Date = "2006-01-02"

	// SelectedDate is shown on the closed date picker.
	SelectedDate = "Mon Jan 02 2006"

	// MenuDate is shown for a date under its year header.
	MenuDate = "January 02"
)

// ParseISO8601 parses a date string in ISO 8601 format (YYYY-MM-DD)
func ParseISO8601(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date string is empty")
	}
	return time.Parse(ISO8601Date, dateStr)
}

// ValidateISO8601 checks if a date string is in valid ISO 8601 format
func ValidateISO8601(dateStr string) bool {
	_, err := ParseISO8601(dateStr)
	return err == nil
}

// FormatSelected renders an ISO date for the closed picker.
func FormatSelected(dateStr string) (string, error) {
	t, err := ParseISO8601(dateStr)
	if err != nil {
		return "", err
	}
	return t.Format(SelectedDate), nil
}
