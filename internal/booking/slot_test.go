package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func confirmedAt(t time.Time) *Booking {
	return &Booking{VisitDateTime: t, Status: StatusConfirmed, PartySize: 1}
}

func TestStatus(t *testing.T) {
	t.Run("Storage codes round trip", func(t *testing.T) {
		for _, s := range []Status{StatusPendingConfirmation, StatusConfirmed, StatusRejected} {
			parsed, err := ParseStatus(s.String())
			require.NoError(t, err)
			assert.Equal(t, s, parsed)
			assert.True(t, s.Valid())
		}
	})

	t.Run("Display names", func(t *testing.T) {
		assert.Equal(t, "Pending confirmation", StatusPendingConfirmation.DisplayName())
		assert.Equal(t, "Confirmed", StatusConfirmed.DisplayName())
		assert.Equal(t, "Rejected", StatusRejected.DisplayName())
	})

	t.Run("Zero and unknown values are invalid", func(t *testing.T) {
		assert.False(t, Status(0).Valid())
		assert.False(t, Status(42).Valid())
		assert.Equal(t, "Status(42)", Status(42).String())

		_, err := ParseStatus("PENDING")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, DefaultRules().Validate())

	tests := []struct {
		name   string
		mutate func(*Rules)
	}{
		{"Opening after closing", func(r *Rules) { r.OpeningHour, r.ClosingHour = 18, 8 }},
		{"Closing past midnight", func(r *Rules) { r.ClosingHour = 25 }},
		{"Zero slot length", func(r *Rules) { r.SlotHours = 0 }},
		{"Slot longer than the day", func(r *Rules) { r.SlotHours = 9 }},
		{"Zero capacity", func(r *Rules) { r.SlotCapacity = 0 }},
		{"No retention", func(r *Rules) { r.Retention = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRules()
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestCountConfirmed(t *testing.T) {
	day := at(2025, time.July, 10, 0, 0)

	t.Run("Only confirmed bookings on the date and in the hour range", func(t *testing.T) {
		bookings := []*Booking{
			confirmedAt(at(2025, time.July, 10, 9, 0)),
			confirmedAt(at(2025, time.July, 10, 9, 45)),
			confirmedAt(at(2025, time.July, 10, 10, 30)),
			confirmedAt(at(2025, time.July, 10, 12, 0)),  // outside hours
			confirmedAt(at(2025, time.July, 11, 9, 0)),   // other date
			confirmedAt(at(2024, time.July, 10, 9, 0)),   // other year
			{VisitDateTime: at(2025, time.July, 10, 9, 0), Status: StatusPendingConfirmation},
			{VisitDateTime: at(2025, time.July, 10, 9, 0), Status: StatusRejected},
		}
		assert.Equal(t, 3, CountConfirmed(bookings, day, 9, 10, time.UTC))
		assert.Equal(t, 2, CountConfirmed(bookings, day, 8, 9, time.UTC))
		assert.Equal(t, 0, CountConfirmed(bookings, day, 13, 16, time.UTC))
	})

	t.Run("Monotonic as bookings are confirmed", func(t *testing.T) {
		var bookings []*Booking
		prev := 0
		for i := 0; i < 5; i++ {
			bookings = append(bookings, confirmedAt(at(2025, time.July, 10, 11, i)))
			bookings = append(bookings, confirmedAt(at(2025, time.July, 12, 11, i)))
			n := CountConfirmed(bookings, day, 11, 12, time.UTC)
			assert.GreaterOrEqual(t, n, prev)
			prev = n
		}
		assert.Equal(t, 5, prev)
	})

	t.Run("Counts are unbounded by capacity", func(t *testing.T) {
		bookings := []*Booking{
			confirmedAt(at(2025, time.July, 10, 11, 0)),
			confirmedAt(at(2025, time.July, 10, 11, 0)),
			confirmedAt(at(2025, time.July, 10, 11, 0)),
		}
		assert.Equal(t, 3, CountConfirmed(bookings, day, 11, 12, time.UTC))
	})

	t.Run("Visit times are read in the given location", func(t *testing.T) {
		loc := time.FixedZone("UTC+8", 8*3600)
		// 2025-07-10 01:00 UTC is 09:00 in UTC+8.
		bookings := []*Booking{confirmedAt(at(2025, time.July, 10, 1, 0))}
		localDay := time.Date(2025, time.July, 10, 0, 0, 0, 0, loc)
		assert.Equal(t, 1, CountConfirmed(bookings, localDay, 9, 9, loc))
		assert.Equal(t, 0, CountConfirmed(bookings, localDay, 1, 1, loc))
	})
}

func TestSlotsForDay(t *testing.T) {
	day := at(2025, time.July, 10, 0, 0)

	t.Run("Default windows", func(t *testing.T) {
		slots := SlotsForDay(nil, day, DefaultRules())
		require.Len(t, slots, 4)

		labels := make([]string, len(slots))
		for i, s := range slots {
			labels[i] = s.Label
			assert.Zero(t, s.Count)
		}
		assert.Equal(t, []string{"09:00-11:00", "11:00-13:00", "13:00-15:00", "15:00-17:00"}, labels)
	})

	t.Run("Windows stop at the last full slot", func(t *testing.T) {
		rules := DefaultRules()
		rules.OpeningHour, rules.ClosingHour = 9, 16
		slots := SlotsForDay(nil, day, rules)
		require.Len(t, slots, 3)
		assert.Equal(t, "13:00-15:00", slots[2].Label)
	})

	t.Run("Each window is sampled at its start hour only", func(t *testing.T) {
		bookings := []*Booking{
			confirmedAt(at(2025, time.July, 10, 9, 0)),
			confirmedAt(at(2025, time.July, 10, 9, 59)),
			confirmedAt(at(2025, time.July, 10, 10, 0)), // second hour of 09-11, not counted
			confirmedAt(at(2025, time.July, 10, 15, 30)),
		}
		slots := SlotsForDay(bookings, day, DefaultRules())
		require.Len(t, slots, 4)
		assert.Equal(t, 2, slots[0].Count)
		assert.Equal(t, 0, slots[1].Count)
		assert.Equal(t, 0, slots[2].Count)
		assert.Equal(t, 1, slots[3].Count)
	})

	t.Run("Offset opening hours miss bookings at odd hours", func(t *testing.T) {
		// With an 08:00 opening the windows start at 08, 10, 12, 14 and 16,
		// so a 09:00 booking falls in no sampled hour.
		rules := DefaultRules()
		rules.OpeningHour, rules.ClosingHour = 8, 18
		bookings := []*Booking{confirmedAt(at(2025, time.July, 10, 9, 0))}

		slots := SlotsForDay(bookings, day, rules)
		require.Len(t, slots, 5)
		for _, s := range slots {
			assert.Zero(t, s.Count, s.Label)
		}
		assert.Equal(t, 1, CountConfirmed(bookings, day, 8, 9, time.UTC))
	})
}
