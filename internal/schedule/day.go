package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Day is a school weekday.
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
)

// Weekdays lists the school days in calendar order.
var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

// Valid reports whether d is one of the five school days.
func (d Day) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday:
		return true
	}
	return false
}

// ParseDay accepts full or three-letter English day names in any case.
func ParseDay(raw string) (Day, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for _, day := range Weekdays {
		if value == string(day) || (len(value) == 3 && strings.HasPrefix(string(day), value)) {
			return day, nil
		}
	}
	return "", fmt.Errorf("unknown school day %q", raw)
}

// DayOf maps a calendar date to its school day. Weekends report false.
func DayOf(date time.Time) (Day, bool) {
	switch date.Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	default:
		return "", false
	}
}
