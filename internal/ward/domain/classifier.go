package domain

import "time"

// LongStayThreshold is the stay duration in whole days at which an
// admission counts as a long stay.
const LongStayThreshold = 6

// ShiftType defines the staffing window an admission falls under
type ShiftType string

const (
	ShiftMorning        ShiftType = "morning"
	ShiftEvening        ShiftType = "evening"
	ShiftNight          ShiftType = "night"
	ShiftWeekendMorning ShiftType = "weekend_morning"
	ShiftWeekendNight   ShiftType = "weekend_night"
)

// StayDuration returns the whole-day difference between the admission
// date and now, both truncated to the calendar day. A patient admitted
// yesterday evening has a stay duration of 1 regardless of the hour.
func StayDuration(admissionDate, now time.Time) int {
	a := truncateToDay(admissionDate)
	n := truncateToDay(now)
	return int(n.Sub(a).Hours() / 24)
}

// IsLongStay reports whether the stay has reached the long-stay
// threshold.
func IsLongStay(admissionDate, now time.Time) bool {
	return StayDuration(admissionDate, now) >= LongStayThreshold
}

// ClassifyShift maps a timestamp to its staffing window. Weekdays run
// morning 07-15, evening 15-23 and night 23-07; weekends collapse to
// two windows, morning 07-19 and night 19-07.
func ClassifyShift(t time.Time) (ShiftType, bool) {
	weekday := t.Weekday()
	weekend := weekday == time.Saturday || weekday == time.Sunday
	hour := t.Hour()

	if weekend {
		if hour >= 7 && hour < 19 {
			return ShiftWeekendMorning, true
		}
		return ShiftWeekendNight, true
	}

	switch {
	case hour >= 7 && hour < 15:
		return ShiftMorning, false
	case hour >= 15 && hour < 23:
		return ShiftEvening, false
	default:
		return ShiftNight, false
	}
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
