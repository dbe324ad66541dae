package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"flowsentry/pkg/models"
)

// ComputeNextRun returns the next occurrence of the schedule's preferred
// local time, strictly after now. Daily schedules run at the next HH:MM in
// the schedule's timezone; weekly schedules additionally wait for the
// configured weekday. Pure function of (schedule, now).
func ComputeNextRun(schedule *models.ScanSchedule, now time.Time) (time.Time, error) {
	hour, minute, err := parsePreferredTime(schedule.PreferredTime)
	if err != nil {
		return time.Time{}, err
	}

	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", schedule.Timezone, err)
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	switch schedule.Frequency {
	case models.FrequencyDaily:
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
	case models.FrequencyWeekly:
		for next.Weekday() != schedule.Weekday || !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
	default:
		return time.Time{}, fmt.Errorf("unknown scan frequency %q", schedule.Frequency)
	}
	return next, nil
}

// parsePreferredTime parses "HH:MM" into hour and minute.
func parsePreferredTime(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid preferred time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in preferred time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in preferred time %q", s)
	}
	return hour, minute, nil
}
