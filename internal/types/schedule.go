// ABOUTME: UpdateSchedule type for the weekly unattended database refresh
// ABOUTME: Computes the next fire instant for a weekday and hour rule

package types

import (
	"fmt"
	"time"
)

// ScheduleDisabled is the weekday value meaning no schedule is configured.
const ScheduleDisabled = -1

// UpdateSchedule fires once a week on Weekday at Hour:00 local time.
type UpdateSchedule struct {
	// Hour of day, 0-23.
	Hour int `json:"hour"`
	// Weekday, 0 (Sunday) through 6 (Saturday), or ScheduleDisabled.
	Weekday int `json:"weekday"`
}

// Enabled returns true if the schedule has a weekday set.
func (s UpdateSchedule) Enabled() bool {
	return s.Weekday != ScheduleDisabled
}

// Validate checks the hour and weekday ranges.
func (s UpdateSchedule) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Weekday != ScheduleDisabled && (s.Weekday < 0 || s.Weekday > 6) {
		return fmt.Errorf("weekday %d out of range 0-6 (or %d to disable)", s.Weekday, ScheduleDisabled)
	}
	return nil
}

// Next returns the first instant strictly after now that matches the schedule,
// in now's location. The result is never more than 7 days after now.
// Returns false if the schedule is disabled or invalid.
func (s UpdateSchedule) Next(now time.Time) (time.Time, bool) {
	if !s.Enabled() || s.Validate() != nil {
		return time.Time{}, false
	}

	y, m, d := now.Date()
	for i := 0; i <= 7; i++ {
		// time.Date normalizes day overflow and DST gaps.
		candidate := time.Date(y, m, d+i, s.Hour, 0, 0, 0, now.Location())
		if int(candidate.Weekday()) == s.Weekday && candidate.After(now) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// String returns a human-readable form of the schedule.
func (s UpdateSchedule) String() string {
	if !s.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("%s %02d:00", time.Weekday(s.Weekday), s.Hour)
}
