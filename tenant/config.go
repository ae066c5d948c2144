// Package tenant models the per-restaurant configuration held by the
// remote system of record.
package tenant

import (
	"fmt"
	"time"

	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/timewindow"
)

// Weekdays in display order, matching the wire keys of the open/close map.
var Weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// OpenClose is one weekday's operating window. Both fields empty means
// closed that day.
type OpenClose struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Config is a tenant's dashboard-editable configuration.
type Config struct {
	MaxReservations  int                  `json:"maxReservations"`
	FutureCutoffDays int                  `json:"futureCutoffDays"`
	TimeZone         string               `json:"timeZone"`
	Hours            map[string]OpenClose `json:"hours"`
}

// ValidationError identifies the offending field and raw value of a
// rejected config submission so the caller can surface it without sending
// anything upstream.
type ValidationError struct {
	Day   string
	Field string
	Raw   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s time %q", e.Day, e.Field, e.Raw)
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidConfig
}

// Normalize validates the whole config and canonicalizes every open/close
// value to 24-hour "HH:mm". Any failure rejects the entire submission; no
// partially-normalized config is ever returned.
func (c Config) Normalize() (Config, error) {
	if c.MaxReservations < 0 {
		return Config{}, apperrors.Wrapf(apperrors.ErrInvalidConfig, "maxReservations %d", c.MaxReservations)
	}
	if c.FutureCutoffDays < 0 {
		return Config{}, apperrors.Wrapf(apperrors.ErrInvalidConfig, "futureCutoffDays %d", c.FutureCutoffDays)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return Config{}, apperrors.Wrapf(apperrors.ErrInvalidConfig, "timeZone %q", c.TimeZone)
	}

	normalized := c
	normalized.Hours = make(map[string]OpenClose, len(Weekdays))
	for _, day := range Weekdays {
		window := c.Hours[day]
		open, close, err := timewindow.NormalizeDay(window.Open, window.Close)
		if err != nil {
			field, raw := "open", window.Open
			if _, openErr := timewindow.Normalize(window.Open); openErr == nil && window.Open != "" {
				field, raw = "close", window.Close
			}
			return Config{}, &ValidationError{Day: day, Field: field, Raw: raw}
		}
		normalized.Hours[day] = OpenClose{Open: open, Close: close}
	}
	return normalized, nil
}

// Location resolves the tenant's IANA zone, defaulting to UTC when unset.
func (c Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
