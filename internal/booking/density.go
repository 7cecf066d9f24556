package booking

import "time"

// DateLayout is the key format of calendar dates.
const DateLayout = "2006-01-02"

// SlotState classifies a slot against its capacity.
type SlotState string

const (
	SlotEmpty   SlotState = "empty"
	SlotPartial SlotState = "partial"
	SlotFull    SlotState = "full"
)

// DayStatus classifies a whole day.
type DayStatus string

const (
	DayAvailable DayStatus = "available"
	DayPartial   DayStatus = "partial"
	DayFull      DayStatus = "full"
)

// SlotOccupancy is one slot of a DayOccupancy.
type SlotOccupancy struct {
	SlotCount
	State SlotState
}

// DayOccupancy aggregates the slots of one calendar day.
type DayOccupancy struct {
	Status         DayStatus
	TotalSlots     int
	AvailableSlots int
	FullSlots      int
	PartialSlots   int
	EmptySlots     int
	Slots          []SlotOccupancy
}

// ClassifySlot returns the state of a slot holding count confirmed bookings.
// A count above capacity is still just full.
func ClassifySlot(count, capacity int) SlotState {
	switch {
	case count >= capacity:
		return SlotFull
	case count > 0:
		return SlotPartial
	default:
		return SlotEmpty
	}
}

// Occupancy classifies the slots of one day.
//
// Available capacity credits a full share for every empty slot and the remaining share of
// every partial slot; total capacity is capacity times the slot count.
func Occupancy(slots []SlotCount, capacity int) DayOccupancy {
	occ := DayOccupancy{
		TotalSlots: capacity * len(slots),
		Slots:      make([]SlotOccupancy, 0, len(slots)),
	}

	for _, s := range slots {
		state := ClassifySlot(s.Count, capacity)
		switch state {
		case SlotFull:
			occ.FullSlots++
		case SlotPartial:
			occ.PartialSlots++
			occ.AvailableSlots += capacity - s.Count
		case SlotEmpty:
			occ.EmptySlots++
			occ.AvailableSlots += capacity
		}
		occ.Slots = append(occ.Slots, SlotOccupancy{SlotCount: s, State: state})
	}

	switch {
	case len(slots) > 0 && occ.FullSlots == len(slots):
		occ.Status = DayFull
	case occ.FullSlots > 0 || occ.PartialSlots > 0:
		occ.Status = DayPartial
	default:
		occ.Status = DayAvailable
	}
	return occ
}

// Density computes the occupancy of every day of the month, keyed by "YYYY-MM-DD".
// bookings may contain bookings outside the month; they are ignored.
func Density(bookings []*Booking, year int, month time.Month, rules Rules) map[string]DayOccupancy {
	loc := rules.location()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	days := DaysIn(year, month)

	out := make(map[string]DayOccupancy, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		out[day.Format(DateLayout)] = Occupancy(SlotsForDay(bookings, day, rules), rules.SlotCapacity)
	}
	return out
}

// DaysIn returns the number of days of the month, leap years included.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// monthBounds returns [first day 00:00, first day of next month 00:00) in loc.
func monthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
