// Package slots holds the pure time-slot calculus: turning business hours
// into discrete start-time candidates and checking that a multi-hour
// booking occupies a contiguous run of them.
package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/models"
)

// BusinessHours describes one day's bookable window. Slots are generated on
// SlotMinutes boundaries from OpenHour up to (not including) CloseHour,
// skipping the lunch interval.
type BusinessHours struct {
	OpenHour       int
	CloseHour      int
	LunchStartHour int
	LunchEndHour   int
	SlotMinutes    int
}

// Default mirrors the shop schedule: open 10:00, close 20:00 (last start
// 19:00), lunch 12:00-13:00, hourly slots.
func Default() BusinessHours {
	return BusinessHours{
		OpenHour:       10,
		CloseHour:      20,
		LunchStartHour: 12,
		LunchEndHour:   13,
		SlotMinutes:    60,
	}
}

// StartTimes returns the ordered valid start times (HH:MM) for a date.
// Lunch hours are excluded, and when the date is today any start at or
// before now is dropped.
func (b BusinessHours) StartTimes(date time.Time, now time.Time) []string {
	granule := b.SlotMinutes
	if granule <= 0 {
		granule = 60
	}

	sameDay := date.Year() == now.Year() && date.YearDay() == now.YearDay()
	nowMin := now.Hour()*60 + now.Minute()

	var out []string
	for m := b.OpenHour * 60; m < b.CloseHour*60; m += granule {
		hour := m / 60
		if hour >= b.LunchStartHour && hour < b.LunchEndHour {
			continue
		}
		if sameDay && m <= nowMin {
			continue
		}
		out = append(out, FormatClock(m))
	}
	return out
}

// RangeFits reports whether a booking of `units` granules starting at
// `start` occupies slots that all exist in the valid list and sit exactly
// one granule apart. This is what stops a 3-hour booking from silently
// spanning the lunch break or running past closing.
func (b BusinessHours) RangeFits(startTimes []string, start string, units int) bool {
	if units < 1 {
		return false
	}
	granule := b.SlotMinutes
	if granule <= 0 {
		granule = 60
	}

	idx := -1
	for i, t := range startTimes {
		if t == start {
			idx = i
			break
		}
	}
	if idx < 0 || idx+units > len(startTimes) {
		return false
	}

	startMin, err := ParseClock(start)
	if err != nil {
		return false
	}
	for k := 0; k < units; k++ {
		if startTimes[idx+k] != FormatClock(startMin+k*granule) {
			return false
		}
	}
	return true
}

// Expand returns the HH:MM label of every granule a booking occupies,
// starting at `start`. It does not validate against business hours; pair it
// with RangeFits for that.
func (b BusinessHours) Expand(start string, units int) []string {
	startMin, err := ParseClock(start)
	if err != nil || units < 1 {
		return nil
	}
	granule := b.SlotMinutes
	if granule <= 0 {
		granule = 60
	}

	out := make([]string, 0, units)
	for k := 0; k < units; k++ {
		out = append(out, FormatClock(startMin+k*granule))
	}
	return out
}

// EndLabel returns the exclusive end time of a booking, e.g. 14:00 + 2h ->
// "16:00".
func (b BusinessHours) EndLabel(start string, units int) string {
	labels := b.Expand(start, units)
	if len(labels) == 0 {
		return start
	}
	granule := b.SlotMinutes
	if granule <= 0 {
		granule = 60
	}
	last, _ := ParseClock(labels[len(labels)-1])
	return FormatClock(last + granule)
}

// ParseClock converts an HH:MM label to minutes since midnight.
func ParseClock(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// FormatClock converts minutes since midnight to an HH:MM label.
func FormatClock(mins int) string {
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

var slotIDUnsafe = regexp.MustCompile(`[.#$/\[\]\s]+`)

// SlotID derives the flat hard-lock identifier for a slot, e.g.
// "B1_2026-03-14_14-00". The character set matches what every channel has
// historically written, so identifiers collide with existing lock records
// exactly when they refer to the same slot.
func SlotID(providerID, date, hhmm string) string {
	sanitize := func(s string) string {
		return strings.ToUpper(slotIDUnsafe.ReplaceAllString(strings.TrimSpace(s), "-"))
	}
	return sanitize(providerID) + "_" + sanitize(date) + "_" + sanitize(strings.ReplaceAll(hhmm, ":", "-"))
}

// HoldKey is the store key of a slot's soft hold.
func HoldKey(date, providerID, hhmm string) string {
	return "slot_holds/" + date + "/" + providerID + "/" + hhmm
}

// LockKey is the store key of a slot's hard lock.
func LockKey(slotID string) string {
	return "booking_slots/" + slotID
}

// DateLabel formats a date for keys and records.
func DateLabel(t time.Time) string {
	return t.Format(models.DateLayout)
}
