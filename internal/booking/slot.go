package booking

import (
	"fmt"
	"time"
)

// SlotCount is the confirmed-booking count of one window of a day.
type SlotCount struct {
	Label     string // "HH:00-HH:00"
	StartHour int
	EndHour   int
	Count     int
}

// CountConfirmed counts confirmed bookings that fall on the calendar date of day and whose
// visit hour lies in [startHour, endHour]. Visit times are read in loc.
// Only the year, month and day of the day argument are used.
func CountConfirmed(bookings []*Booking, day time.Time, startHour, endHour int, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()

	n := 0
	for _, b := range bookings {
		if b.Status != StatusConfirmed {
			continue
		}
		visit := b.VisitDateTime.In(loc)
		vy, vm, vd := visit.Date()
		if vy != y || vm != m || vd != d {
			continue
		}
		if h := visit.Hour(); h >= startHour && h <= endHour {
			n++
		}
	}
	return n
}

// SlotsForDay returns the windows of the day from opening to closing hour in order.
// Each window is sampled at its start hour only, so a booking at the second hour
// of a window is not counted there.
func SlotsForDay(bookings []*Booking, day time.Time, rules Rules) []SlotCount {
	windows := slotWindows(rules)
	slots := make([]SlotCount, 0, len(windows))
	for _, start := range windows {
		end := start + rules.SlotHours
		slots = append(slots, SlotCount{
			Label:     SlotLabel(start, end),
			StartHour: start,
			EndHour:   end,
			Count:     CountConfirmed(bookings, day, start, start, rules.location()),
		})
	}
	return slots
}

// SlotLabel formats a window as "HH:00-HH:00".
func SlotLabel(startHour, endHour int) string {
	return fmt.Sprintf("%02d:00-%02d:00", startHour, endHour)
}

// slotWindows lists the start hour of every full window between opening and closing.
func slotWindows(rules Rules) []int {
	if rules.SlotHours < 1 {
		return nil
	}
	var starts []int
	for h := rules.OpeningHour; h+rules.SlotHours <= rules.ClosingHour; h += rules.SlotHours {
		starts = append(starts, h)
	}
	return starts
}

// dayBounds returns [00:00, next 00:00) of the day's date in loc.
func dayBounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
