package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seatwise/dashboard/reservation"
	"github.com/seatwise/dashboard/schedule"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestMetricsCountsConfirmedOnly(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	ref := time.Date(2024, 6, 10, 12, 0, 0, 0, loc) // a Monday

	reservations := []reservation.Reservation{
		{Date: "2024-06-10", Status: reservation.StatusConfirmed},
		{Date: "2024-06-10", Status: reservation.StatusCanceled},
		{Date: "2024-06-10", Status: reservation.StatusBlocked},
		{Date: "2024-06-16", Status: reservation.StatusConfirmed}, // Sunday, same ISO week
		{Date: "2024-06-17", Status: reservation.StatusConfirmed}, // next ISO week, same month
		{Date: "2024-06-30", Status: reservation.StatusConfirmed}, // month end, inclusive
		{Date: "2024-07-01", Status: reservation.StatusConfirmed}, // next month
		{Date: "not-a-date", Status: reservation.StatusConfirmed}, // silently excluded
	}

	counts := schedule.Metrics(reservations, loc, ref)
	require.Equal(t, 1, counts.Today)
	require.Equal(t, 2, counts.ThisWeek)
	require.Equal(t, 4, counts.ThisMonth)
}

func TestMetricsWeekBoundsAreInclusive(t *testing.T) {
	loc := mustLocation(t, "UTC")
	ref := time.Date(2024, 6, 13, 9, 0, 0, 0, loc) // a Thursday

	reservations := []reservation.Reservation{
		{Date: "2024-06-10", Status: reservation.StatusConfirmed}, // Monday
		{Date: "2024-06-16", Status: reservation.StatusConfirmed}, // Sunday
		{Date: "2024-06-09", Status: reservation.StatusConfirmed}, // previous Sunday
	}

	counts := schedule.Metrics(reservations, loc, ref)
	require.Equal(t, 0, counts.Today)
	require.Equal(t, 2, counts.ThisWeek)
}

func TestMetricsUsesTenantTimezone(t *testing.T) {
	tokyo := mustLocation(t, "Asia/Tokyo")
	// 23:30 UTC on June 9th is already June 10th in Tokyo.
	ref := time.Date(2024, 6, 9, 23, 30, 0, 0, time.UTC)

	reservations := []reservation.Reservation{
		{Date: "2024-06-10", Status: reservation.StatusConfirmed},
	}

	counts := schedule.Metrics(reservations, tokyo, ref)
	require.Equal(t, 1, counts.Today)
}

func TestMetricsDeterministic(t *testing.T) {
	loc := mustLocation(t, "UTC")
	ref := time.Date(2024, 6, 10, 12, 0, 0, 0, loc)
	reservations := []reservation.Reservation{
		{Date: "2024-06-10", Status: reservation.StatusConfirmed},
		{Date: "2024-06-11", Status: reservation.StatusConfirmed},
	}

	first := schedule.Metrics(reservations, loc, ref)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, schedule.Metrics(reservations, loc, ref))
	}
}

func TestAgendaFiltersAndSorts(t *testing.T) {
	reservations := []reservation.Reservation{
		{Date: "2024-06-10", Name: "Evening", TimeSlot: "18:00"},
		{Date: "2024-06-10", Name: "Lunch", TimeSlot: "12:00"},
		{Date: "2024-06-10", Status: reservation.StatusBlocked}, // no slot sorts as midnight
		{Date: "2024-06-11", Name: "Tomorrow", TimeSlot: "12:00"},
	}

	agenda := schedule.Agenda(reservations, "2024-06-10")
	require.Len(t, agenda, 3)
	require.Equal(t, reservation.StatusBlocked, agenda[0].Status)
	require.Equal(t, "Lunch", agenda[1].Name)
	require.Equal(t, "Evening", agenda[2].Name)
}

func TestAgendaInclusionRules(t *testing.T) {
	reservations := []reservation.Reservation{
		// Blocks are visible without guest details; a row with name and
		// slot is visible without a status. Everything else is excluded.
		{Date: "2024-06-10", Status: reservation.StatusBlocked},
		{Date: "2024-06-10", Name: "Walk-in", TimeSlot: "19:00"},
		{Date: "2024-06-10", Name: "No slot"},
		{Date: "2024-06-10", TimeSlot: "20:00"},
		{Date: "2024-06-10", Status: reservation.StatusConfirmed},
		{Date: "2024-06-10"},
	}

	agenda := schedule.Agenda(reservations, "2024-06-10")
	require.Len(t, agenda, 2)
}

func TestDayNavigation(t *testing.T) {
	loc := mustLocation(t, "America/New_York")

	next, err := schedule.NextDay("2024-06-10", loc)
	require.NoError(t, err)
	require.Equal(t, "2024-06-11", next)

	previous, err := schedule.PreviousDay("2024-06-10", loc)
	require.NoError(t, err)
	require.Equal(t, "2024-06-09", previous)

	// Month and year boundaries.
	next, err = schedule.NextDay("2024-12-31", loc)
	require.NoError(t, err)
	require.Equal(t, "2025-01-01", next)

	// A DST transition day still shifts by exactly one calendar day.
	next, err = schedule.NextDay("2024-03-10", loc)
	require.NoError(t, err)
	require.Equal(t, "2024-03-11", next)

	_, err = schedule.NextDay("garbage", loc)
	require.Error(t, err)
}
