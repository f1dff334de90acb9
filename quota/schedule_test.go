package quota

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawbet/config"
)

func TestPeriodStart(t *testing.T) {
	s, err := ScheduleFromConfig(config.QuotaConfig{ResetWeekday: "mon", ResetTime: "06:00", Timezone: "Asia/Kuala_Lumpur"})
	require.NoError(t, err)

	// Monday 2026-10-19 05:59 in KL is still last week's period.
	loc, _ := time.LoadLocation("Asia/Kuala_Lumpur")
	got := s.PeriodStart(time.Date(2026, 10, 19, 5, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 12, 6, 0, 0, 0, loc).UTC(), got)

	got = s.PeriodStart(time.Date(2026, 10, 19, 6, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, loc).UTC(), got)

	got = s.PeriodStart(time.Date(2026, 10, 24, 23, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, loc).UTC(), got)
}

func TestScheduleFromConfigRejects(t *testing.T) {
	_, err := ScheduleFromConfig(config.QuotaConfig{ResetWeekday: "FUNDAY", ResetTime: "00:00"})
	assert.Error(t, err)
	_, err = ScheduleFromConfig(config.QuotaConfig{ResetWeekday: "MON", ResetTime: "25:00"})
	assert.Error(t, err)
	_, err = ScheduleFromConfig(config.QuotaConfig{ResetWeekday: "MON", ResetTime: "00:00", Timezone: "Mars/Base"})
	assert.Error(t, err)
}
