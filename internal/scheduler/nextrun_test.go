package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowsentry/pkg/models"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestComputeNextRun_DailyBeforePreferredTime(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 8, 24, 1, 15, 0, 0, loc)

	schedule := &models.ScanSchedule{
		Frequency:     models.FrequencyDaily,
		PreferredTime: "02:00",
		Timezone:      "America/Chicago",
	}

	next, err := ComputeNextRun(schedule, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 2, 0, 0, 0, loc), next)
	assert.True(t, next.After(now))
}

func TestComputeNextRun_DailyAfterPreferredTime(t *testing.T) {
	loc := chicago(t)
	now := time.Date(2026, 8, 24, 14, 0, 0, 0, loc)

	schedule := &models.ScanSchedule{
		Frequency:     models.FrequencyDaily,
		PreferredTime: "02:00",
		Timezone:      "America/Chicago",
	}

	next, err := ComputeNextRun(schedule, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 0, 0, 0, loc), next)
}

func TestComputeNextRun_StrictlyFuture(t *testing.T) {
	loc := chicago(t)
	// Exactly at the preferred time: the run goes to tomorrow.
	now := time.Date(2026, 8, 24, 2, 0, 0, 0, loc)

	schedule := &models.ScanSchedule{
		Frequency:     models.FrequencyDaily,
		PreferredTime: "02:00",
		Timezone:      "America/Chicago",
	}

	next, err := ComputeNextRun(schedule, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 0, 0, 0, loc), next)
}

func TestComputeNextRun_DailyFromOtherZoneClock(t *testing.T) {
	loc := chicago(t)
	// now expressed in UTC must still resolve against Chicago local time.
	now := time.Date(2026, 8, 24, 6, 30, 0, 0, time.UTC) // 01:30 in Chicago (CDT)

	schedule := &models.ScanSchedule{
		Frequency:     models.FrequencyDaily,
		PreferredTime: "02:00",
		Timezone:      "America/Chicago",
	}

	next, err := ComputeNextRun(schedule, now)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 8, 24, 2, 0, 0, 0, loc).Equal(next))
}

func TestComputeNextRun_Weekly(t *testing.T) {
	loc := chicago(t)
	// 2026-08-24 is a Monday.
	now := time.Date(2026, 8, 24, 14, 0, 0, 0, loc)

	schedule := &models.ScanSchedule{
		Frequency:     models.FrequencyWeekly,
		PreferredTime: "06:30",
		Timezone:      "America/Chicago",
		Weekday:       time.Wednesday,
	}

	next, err := ComputeNextRun(schedule, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 26, 6, 30, 0, 0, loc), next)
	assert.Equal(t, time.Wednesday, next.Weekday())

	t.Run("same weekday later time stays today", func(t *testing.T) {
		schedule.Weekday = time.Monday
		schedule.PreferredTime = "23:00"
		next, err := ComputeNextRun(schedule, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 24, 23, 0, 0, 0, loc), next)
	})

	t.Run("same weekday earlier time waits a week", func(t *testing.T) {
		schedule.Weekday = time.Monday
		schedule.PreferredTime = "06:30"
		next, err := ComputeNextRun(schedule, now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 31, 6, 30, 0, 0, loc), next)
	})
}

func TestComputeNextRun_InvalidInputs(t *testing.T) {
	now := time.Now()

	_, err := ComputeNextRun(&models.ScanSchedule{
		Frequency: models.FrequencyDaily, PreferredTime: "25:00", Timezone: "UTC",
	}, now)
	assert.Error(t, err)

	_, err = ComputeNextRun(&models.ScanSchedule{
		Frequency: models.FrequencyDaily, PreferredTime: "0200", Timezone: "UTC",
	}, now)
	assert.Error(t, err)

	_, err = ComputeNextRun(&models.ScanSchedule{
		Frequency: models.FrequencyDaily, PreferredTime: "02:00", Timezone: "Mars/Olympus",
	}, now)
	assert.Error(t, err)

	_, err = ComputeNextRun(&models.ScanSchedule{
		Frequency: "hourly", PreferredTime: "02:00", Timezone: "UTC",
	}, now)
	assert.Error(t, err)
}
