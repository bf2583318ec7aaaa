package domain

import (
	"slices"
	"time"

	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// TimeWindow is a daily window in "HH:MM" 24h format. Start after End
// means the window wraps past midnight.
type TimeWindow struct {
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// Schedule restricts when a recurring visitor may be auto-admitted.
// Days use ISO numbering, 1=Monday through 7=Sunday, evaluated in the
// schedule's timezone.
type Schedule struct {
	Enabled    bool         `json:"enabled"`
	DaysOfWeek []int        `json:"days_of_week"`
	Windows    []TimeWindow `json:"time_windows"`
	Timezone   string       `json:"timezone"`
}

// Contains reports whether now falls inside the schedule. A disabled
// schedule allows any time. Bad timezones and malformed windows fail
// closed: admission control must never open up because of a config error.
func (s Schedule) Contains(now time.Time) bool {
	if !s.Enabled {
		return true
	}

	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("schedule has unknown timezone, failing closed", "timezone", tz, "error", err)
		return false
	}

	local := now.In(loc)

	if len(s.DaysOfWeek) > 0 {
		if !slices.Contains(s.DaysOfWeek, isoWeekday(local)) {
			return false
		}
	}

	if len(s.Windows) == 0 {
		return true
	}

	clock := local.Format("15:04")
	for _, w := range s.Windows {
		if !validClock(w.Start) || !validClock(w.End) {
			logger.Warn("schedule has malformed time window, failing closed", "start", w.Start, "end", w.End)
			return false
		}
		// Lexicographic comparison is correct for zero-padded HH:MM.
		if w.Start <= w.End {
			if w.Start <= clock && clock <= w.End {
				return true
			}
		} else {
			if clock >= w.Start || clock <= w.End {
				return true
			}
		}
	}
	return false
}

// isoWeekday maps time.Weekday (Sunday=0) to ISO (Monday=1 .. Sunday=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}
