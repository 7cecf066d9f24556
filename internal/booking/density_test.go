package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySlot(t *testing.T) {
	tests := []struct {
		count    int
		capacity int
		want     SlotState
	}{
		{0, 2, SlotEmpty},
		{1, 2, SlotPartial},
		{2, 2, SlotFull},
		{3, 2, SlotFull},
		{2, 3, SlotPartial},
		{1, 1, SlotFull},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifySlot(tt.count, tt.capacity), "count=%d capacity=%d", tt.count, tt.capacity)
	}
}

func TestOccupancy(t *testing.T) {
	slot := func(count int) SlotCount { return SlotCount{Count: count} }

	t.Run("All empty", func(t *testing.T) {
		occ := Occupancy([]SlotCount{slot(0), slot(0), slot(0), slot(0)}, 2)
		assert.Equal(t, DayAvailable, occ.Status)
		assert.Equal(t, 8, occ.TotalSlots)
		assert.Equal(t, 8, occ.AvailableSlots)
		assert.Equal(t, 4, occ.EmptySlots)
	})

	t.Run("One partial slot", func(t *testing.T) {
		occ := Occupancy([]SlotCount{slot(1), slot(0), slot(0), slot(0)}, 2)
		assert.Equal(t, DayPartial, occ.Status)
		assert.Equal(t, 1, occ.PartialSlots)
		assert.Equal(t, 3, occ.EmptySlots)
		assert.Equal(t, 2*3+1, occ.AvailableSlots)
	})

	t.Run("One full slot", func(t *testing.T) {
		occ := Occupancy([]SlotCount{slot(0), slot(2), slot(0), slot(0)}, 2)
		assert.Equal(t, DayPartial, occ.Status)
		assert.Equal(t, 1, occ.FullSlots)
		assert.Equal(t, 6, occ.AvailableSlots)
	})

	t.Run("Every slot full", func(t *testing.T) {
		occ := Occupancy([]SlotCount{slot(2), slot(3), slot(2), slot(5)}, 2)
		assert.Equal(t, DayFull, occ.Status)
		assert.Equal(t, 4, occ.FullSlots)
		assert.Zero(t, occ.AvailableSlots)
	})

	t.Run("Slots keep their state", func(t *testing.T) {
		occ := Occupancy([]SlotCount{slot(0), slot(1), slot(2)}, 2)
		require.Len(t, occ.Slots, 3)
		assert.Equal(t, SlotEmpty, occ.Slots[0].State)
		assert.Equal(t, SlotPartial, occ.Slots[1].State)
		assert.Equal(t, SlotFull, occ.Slots[2].State)
	})

	t.Run("Capacity is accounted for exactly", func(t *testing.T) {
		for _, capacity := range []int{1, 2, 3, 5} {
			for a := 0; a <= capacity+1; a++ {
				for b := 0; b <= capacity+1; b++ {
					occ := Occupancy([]SlotCount{slot(a), slot(b)}, capacity)

					used := capacity * occ.FullSlots
					for _, s := range occ.Slots {
						if s.State == SlotPartial {
							used += s.Count
						}
					}
					assert.Equal(t, occ.TotalSlots, occ.AvailableSlots+used, "capacity=%d counts=%d,%d", capacity, a, b)
					assert.Equal(t, 2, occ.FullSlots+occ.PartialSlots+occ.EmptySlots)
				}
			}
		}
	})
}

func TestDaysIn(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2025, time.January, 31},
		{2025, time.February, 28},
		{2024, time.February, 29},
		{2000, time.February, 29},
		{1900, time.February, 28},
		{2025, time.April, 30},
		{2025, time.December, 31},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DaysIn(tt.year, tt.month), "%d-%02d", tt.year, tt.month)
	}
}

func TestDensity(t *testing.T) {
	rules := DefaultRules()

	t.Run("One entry per calendar day", func(t *testing.T) {
		for _, tt := range []struct {
			year  int
			month time.Month
			want  int
		}{
			{2025, time.February, 28},
			{2024, time.February, 29},
			{2025, time.June, 30},
			{2025, time.July, 31},
		} {
			out := Density(nil, tt.year, tt.month, rules)
			assert.Len(t, out, tt.want)

			first := time.Date(tt.year, tt.month, 1, 0, 0, 0, 0, time.UTC)
			last := first.AddDate(0, 0, tt.want-1)
			assert.Contains(t, out, first.Format(DateLayout))
			assert.Contains(t, out, last.Format(DateLayout))
			assert.NotContains(t, out, last.AddDate(0, 0, 1).Format(DateLayout))
		}
	})

	t.Run("Single confirmed booking marks the day partial", func(t *testing.T) {
		bookings := []*Booking{confirmedAt(at(2025, time.July, 10, 9, 0))}
		out := Density(bookings, 2025, time.July, rules)

		day := out["2025-07-10"]
		assert.Equal(t, DayPartial, day.Status)
		assert.Equal(t, 1, day.PartialSlots)
		assert.Equal(t, 3, day.EmptySlots)
		assert.Equal(t, 8, day.TotalSlots)
		assert.Equal(t, 7, day.AvailableSlots)

		assert.Equal(t, DayAvailable, out["2025-07-11"].Status)
		assert.Equal(t, 8, out["2025-07-11"].AvailableSlots)
	})

	t.Run("Slot saturates at full while raw count keeps growing", func(t *testing.T) {
		var bookings []*Booking
		for i := 0; i < 3; i++ {
			bookings = append(bookings, confirmedAt(at(2025, time.July, 10, 11, 0)))
			slot := Density(bookings, 2025, time.July, rules)["2025-07-10"].Slots[1]

			assert.Equal(t, "11:00-13:00", slot.Label)
			assert.Equal(t, i+1, slot.Count)
			if i == 0 {
				assert.Equal(t, SlotPartial, slot.State)
			} else {
				assert.Equal(t, SlotFull, slot.State)
			}
		}
		assert.Equal(t, 3, CountConfirmed(bookings, at(2025, time.July, 10, 0, 0), 11, 12, time.UTC))
	})

	t.Run("Full day", func(t *testing.T) {
		var bookings []*Booking
		for _, h := range []int{9, 11, 13, 15} {
			bookings = append(bookings,
				confirmedAt(at(2025, time.July, 20, h, 0)),
				confirmedAt(at(2025, time.July, 20, h, 30)),
			)
		}
		day := Density(bookings, 2025, time.July, rules)["2025-07-20"]
		assert.Equal(t, DayFull, day.Status)
		assert.Zero(t, day.AvailableSlots)
	})

	t.Run("Bookings outside the month are ignored", func(t *testing.T) {
		bookings := []*Booking{
			confirmedAt(at(2025, time.June, 30, 9, 0)),
			confirmedAt(at(2025, time.August, 1, 9, 0)),
		}
		for date, day := range Density(bookings, 2025, time.July, rules) {
			assert.Equal(t, DayAvailable, day.Status, date)
		}
	})
}
