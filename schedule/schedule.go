// Package schedule derives day/week/month views from a reservation
// collection. All calendar arithmetic happens in the tenant's timezone, not
// the viewer's.
package schedule

import (
	"sort"
	"time"

	"github.com/seatwise/dashboard/reservation"
)

const dateLayout = "2006-01-02"

// Counts holds the confirmed-reservation totals for the day, ISO week and
// month containing the reference instant.
type Counts struct {
	Today     int `json:"today"`
	ThisWeek  int `json:"thisWeek"`
	ThisMonth int `json:"thisMonth"`
}

// Agenda returns the reservations for the target calendar day, sorted
// ascending by time slot with missing slots sorting as midnight. A row
// makes the agenda when it carries both a name and a time slot, or when its
// status is blocked (blocks are visible without guest details).
func Agenda(reservations []reservation.Reservation, date string) []reservation.Reservation {
	agenda := make([]reservation.Reservation, 0)
	for _, r := range reservations {
		if r.Date != date {
			continue
		}
		if r.Status == reservation.StatusBlocked || (r.Name != "" && r.TimeSlot != "") {
			agenda = append(agenda, r)
		}
	}

	sort.SliceStable(agenda, func(i, j int) bool {
		if agenda[i].Date != agenda[j].Date {
			return agenda[i].Date < agenda[j].Date
		}
		return slotOrMidnight(agenda[i].TimeSlot) < slotOrMidnight(agenda[j].TimeSlot)
	})
	return agenda
}

func slotOrMidnight(slot string) string {
	if slot == "" {
		return "00:00"
	}
	return slot
}

// Metrics counts confirmed reservations falling inside the day, ISO week
// and month containing ref, computed in loc. Bounds are inclusive on both
// ends; rows with unparseable dates are skipped.
func Metrics(reservations []reservation.Reservation, loc *time.Location, ref time.Time) Counts {
	refDay := dateOnly(ref.In(loc))
	weekStart := isoWeekStart(refDay)
	weekEnd := weekStart.AddDate(0, 0, 6)
	monthStart := time.Date(refDay.Year(), refDay.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, -1)

	var counts Counts
	for _, r := range reservations {
		if r.Status != reservation.StatusConfirmed {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, r.Date, loc)
		if err != nil {
			continue
		}
		if day.Equal(refDay) {
			counts.Today++
		}
		if !day.Before(weekStart) && !day.After(weekEnd) {
			counts.ThisWeek++
		}
		if !day.Before(monthStart) && !day.After(monthEnd) {
			counts.ThisMonth++
		}
	}
	return counts
}

// PreviousDay shifts a calendar date back by exactly one day in loc.
func PreviousDay(date string, loc *time.Location) (string, error) {
	return shiftDay(date, loc, -1)
}

// NextDay shifts a calendar date forward by exactly one day in loc.
func NextDay(date string, loc *time.Location) (string, error) {
	return shiftDay(date, loc, 1)
}

func shiftDay(date string, loc *time.Location, days int) (string, error) {
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return "", err
	}
	return day.AddDate(0, 0, days).Format(dateLayout), nil
}

// Today renders the calendar date containing now in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(dateLayout)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// isoWeekStart walks back to the Monday of day's ISO week.
func isoWeekStart(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday closes the ISO week
	}
	return day.AddDate(0, 0, -(weekday - 1))
}
