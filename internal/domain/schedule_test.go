package domain_test

import (
	"testing"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
)

// 2024-01-15 is a Monday.
func mondayAt(hour, min int, loc *time.Location) time.Time {
	return time.Date(2024, 1, 15, hour, min, 0, 0, loc)
}

func TestSchedule_Contains(t *testing.T) {
	utc := time.UTC

	tests := []struct {
		name     string
		schedule domain.Schedule
		now      time.Time
		want     bool
	}{
		{
			name:     "disabled schedule allows any time",
			schedule: domain.Schedule{Enabled: false},
			now:      mondayAt(3, 0, utc),
			want:     true,
		},
		{
			name:     "enabled with no days and no windows allows any time",
			schedule: domain.Schedule{Enabled: true, Timezone: "UTC"},
			now:      mondayAt(3, 0, utc),
			want:     true,
		},
		{
			name: "matching day inside window",
			schedule: domain.Schedule{
				Enabled:    true,
				DaysOfWeek: []int{1},
				Windows:    []domain.TimeWindow{{Start: "09:00", End: "17:00"}},
				Timezone:   "UTC",
			},
			now:  mondayAt(10, 30, utc),
			want: true,
		},
		{
			name: "matching day outside window",
			schedule: domain.Schedule{
				Enabled:    true,
				DaysOfWeek: []int{1},
				Windows:    []domain.TimeWindow{{Start: "09:00", End: "17:00"}},
				Timezone:   "UTC",
			},
			now:  mondayAt(18, 0, utc),
			want: false,
		},
		{
			name: "wrong day",
			schedule: domain.Schedule{
				Enabled:    true,
				DaysOfWeek: []int{3}, // Wednesday only
				Timezone:   "UTC",
			},
			now:  mondayAt(10, 0, utc),
			want: false,
		},
		{
			name: "sunday maps to iso day 7",
			schedule: domain.Schedule{
				Enabled:    true,
				DaysOfWeek: []int{7},
				Timezone:   "UTC",
			},
			now:  time.Date(2024, 1, 14, 12, 0, 0, 0, utc), // a Sunday
			want: true,
		},
		{
			name: "window wrapping midnight, late evening",
			schedule: domain.Schedule{
				Enabled:  true,
				Windows:  []domain.TimeWindow{{Start: "22:00", End: "02:00"}},
				Timezone: "UTC",
			},
			now:  mondayAt(23, 15, utc),
			want: true,
		},
		{
			name: "window wrapping midnight, early morning",
			schedule: domain.Schedule{
				Enabled:  true,
				Windows:  []domain.TimeWindow{{Start: "22:00", End: "02:00"}},
				Timezone: "UTC",
			},
			now:  mondayAt(1, 30, utc),
			want: true,
		},
		{
			name: "window wrapping midnight, midday excluded",
			schedule: domain.Schedule{
				Enabled:  true,
				Windows:  []domain.TimeWindow{{Start: "22:00", End: "02:00"}},
				Timezone: "UTC",
			},
			now:  mondayAt(12, 0, utc),
			want: false,
		},
		{
			name: "window boundaries are inclusive",
			schedule: domain.Schedule{
				Enabled:  true,
				Windows:  []domain.TimeWindow{{Start: "09:00", End: "17:00"}},
				Timezone: "UTC",
			},
			now:  mondayAt(17, 0, utc),
			want: true,
		},
		{
			name: "day is evaluated in the schedule timezone",
			schedule: domain.Schedule{
				Enabled:    true,
				DaysOfWeek: []int{2}, // Tuesday
				Timezone:   "Asia/Kolkata",
			},
			// Monday 22:00 UTC is Tuesday 03:30 in Kolkata.
			now:  mondayAt(22, 0, utc),
			want: true,
		},
		{
			name: "unknown timezone fails closed",
			schedule: domain.Schedule{
				Enabled:  true,
				Timezone: "Not/AZone",
			},
			now:  mondayAt(10, 0, utc),
			want: false,
		},
		{
			name: "malformed window fails closed",
			schedule: domain.Schedule{
				Enabled:  true,
				Windows:  []domain.TimeWindow{{Start: "9am", End: "5pm"}},
				Timezone: "UTC",
			},
			now:  mondayAt(10, 0, utc),
			want: false,
		},
		{
			name: "second window matches after first misses",
			schedule: domain.Schedule{
				Enabled: true,
				Windows: []domain.TimeWindow{
					{Start: "06:00", End: "08:00"},
					{Start: "18:00", End: "20:00"},
				},
				Timezone: "UTC",
			},
			now:  mondayAt(19, 0, utc),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schedule.Contains(tt.now); got != tt.want {
				t.Fatalf("Contains(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestSchedule_EmptyTimezoneDefaultsToUTC(t *testing.T) {
	s := domain.Schedule{
		Enabled: true,
		Windows: []domain.TimeWindow{{Start: "09:00", End: "17:00"}},
	}
	if !s.Contains(mondayAt(10, 0, time.UTC)) {
		t.Fatal("expected 10:00 UTC to fall inside 09:00-17:00 with default timezone")
	}
	if s.Contains(mondayAt(20, 0, time.UTC)) {
		t.Fatal("expected 20:00 UTC to fall outside 09:00-17:00 with default timezone")
	}
}
