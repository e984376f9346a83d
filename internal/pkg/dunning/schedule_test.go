package dunning

import (
	"strings"
	"testing"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScheduleShape(t *testing.T) {
	require.Len(t, DefaultSchedule, 5)

	wantOffsets := []int{0, 3, 7, 14, 21}
	wantActions := []string{
		models.DunningActionNotify,
		models.DunningActionRetry,
		models.DunningActionRemind,
		models.DunningActionFinalWarning,
		models.DunningActionCancel,
	}
	for i, step := range DefaultSchedule {
		assert.Equal(t, wantOffsets[i], step.DayOffset, "step %d offset", i+1)
		assert.Equal(t, wantActions[i], step.Action, "step %d action", i+1)
	}
}

func TestScheduledDate(t *testing.T) {
	start := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, start, ScheduledDate(start, 0))
	assert.Equal(t, time.Date(2026, 9, 3, 10, 30, 0, 0, time.UTC), ScheduledDate(start, 3))
	assert.Equal(t, time.Date(2026, 9, 21, 10, 30, 0, 0, time.UTC), ScheduledDate(start, 21))
}

func TestDescribeAction(t *testing.T) {
	actions := []string{
		models.DunningActionNotify,
		models.DunningActionRetry,
		models.DunningActionRemind,
		models.DunningActionFinalWarning,
		models.DunningActionCancel,
	}
	for _, action := range actions {
		text := DescribeAction(action, "Gold Box")
		assert.True(t, strings.Contains(text, "Gold Box"), "%s text should mention the plan", action)
	}

	assert.Contains(t, DescribeAction(models.DunningActionFinalWarning, "Gold Box"), "cancelled in 7 days")
	assert.Contains(t, DescribeAction("unknown_action", "Gold Box"), "Gold Box")
}
