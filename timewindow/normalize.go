// Package timewindow canonicalizes free-form operating-hour input into
// 24-hour "HH:mm" values.
package timewindow

import (
	"strings"
	"time"

	apperrors "github.com/seatwise/dashboard/internal/errors"
)

// layouts are tried in order; the first successful parse wins.
var layouts = []string{
	"3:04pm", // hour:minute + meridiem ("10:30pm")
	"3pm",    // hour + meridiem ("10am")
	"15:04",  // 24-hour hour:minute ("22:00")
	"15",     // bare 24-hour hour ("22")
}

// Normalize parses a free-form time-of-day string and renders it as
// zero-padded 24-hour "HH:mm". The empty string is a valid "unset" marker
// and is returned unchanged. Any other unparseable input yields
// apperrors.ErrInvalidTimeValue.
func Normalize(input string) (string, error) {
	if input == "" {
		return "", nil
	}

	cleaned := strings.ToLower(input)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	if cleaned == "" {
		return "", apperrors.Wrapf(apperrors.ErrInvalidTimeValue, "%q", input)
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		return t.Format("15:04"), nil
	}

	return "", apperrors.Wrapf(apperrors.ErrInvalidTimeValue, "%q", input)
}

// NormalizeDay validates a single weekday's open/close pair. Both values
// empty means closed that day; exactly one empty is rejected since an open
// time without a close time (or vice versa) is meaningless.
func NormalizeDay(open, close string) (string, string, error) {
	if open == "" && close == "" {
		return "", "", nil
	}
	if open == "" || close == "" {
		return "", "", apperrors.Wrapf(apperrors.ErrInvalidTimeValue, "open %q close %q", open, close)
	}

	normalizedOpen, err := Normalize(open)
	if err != nil {
		return "", "", err
	}
	normalizedClose, err := Normalize(close)
	if err != nil {
		return "", "", err
	}
	return normalizedOpen, normalizedClose, nil
}
