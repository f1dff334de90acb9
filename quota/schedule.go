package quota

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"drawbet/config"
)

// Schedule is the weekly boundary at which quotas reset.
type Schedule struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	Loc     *time.Location
}

var weekdays = map[string]time.Weekday{
	"SUN": time.Sunday, "MON": time.Monday, "TUE": time.Tuesday, "WED": time.Wednesday,
	"THU": time.Thursday, "FRI": time.Friday, "SAT": time.Saturday,
}

func ScheduleFromConfig(cfg config.QuotaConfig) (Schedule, error) {
	day, ok := weekdays[strings.ToUpper(strings.TrimSpace(cfg.ResetWeekday))]
	if !ok {
		return Schedule{}, fmt.Errorf("quota.reset_weekday %q is not a weekday", cfg.ResetWeekday)
	}
	hh, mm, found := strings.Cut(cfg.ResetTime, ":")
	h, herr := strconv.Atoi(hh)
	m, merr := strconv.Atoi(mm)
	if !found || herr != nil || merr != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Schedule{}, fmt.Errorf("quota.reset_time %q is not HH:MM", cfg.ResetTime)
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return Schedule{}, fmt.Errorf("quota.timezone: %w", err)
		}
	}
	return Schedule{Weekday: day, Hour: h, Minute: m, Loc: loc}, nil
}

// PeriodStart is the most recent reset boundary at or before now.
func (s Schedule) PeriodStart(now time.Time) time.Time {
	loc := s.Loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, loc)
	back := (int(local.Weekday()) - int(s.Weekday) + 7) % 7
	start = start.AddDate(0, 0, -back)
	if start.After(local) {
		start = start.AddDate(0, 0, -7)
	}
	return start.UTC()
}
