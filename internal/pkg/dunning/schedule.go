package dunning

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/Recurro/app/models"
)

// ScheduleStep is one fixed (day offset, action) pair of the recovery
// sequence.
type ScheduleStep struct {
	DayOffset int
	Action    string
}

// DefaultSchedule: Day 0 notify -> Day 3 retry -> Day 7 remind ->
// Day 14 final warning -> Day 21 cancel.
var DefaultSchedule = []ScheduleStep{
	{DayOffset: 0, Action: models.DunningActionNotify},
	{DayOffset: 3, Action: models.DunningActionRetry},
	{DayOffset: 7, Action: models.DunningActionRemind},
	{DayOffset: 14, Action: models.DunningActionFinalWarning},
	{DayOffset: 21, Action: models.DunningActionCancel},
}

// ScheduledDate returns the attempt date for a schedule step relative to
// the dunning start.
func ScheduledDate(start time.Time, dayOffset int) time.Time {
	return start.AddDate(0, 0, dayOffset)
}

// DescribeAction renders the customer-facing text for a dunning action.
// Pure; used as the plain-text fallback when no approved template exists.
func DescribeAction(action, planName string) string {
	switch action {
	case models.DunningActionNotify:
		return fmt.Sprintf("Your payment for %s failed. Please update your payment method.", planName)
	case models.DunningActionRetry:
		return fmt.Sprintf("We're retrying your payment for %s. Please ensure your card is funded.", planName)
	case models.DunningActionRemind:
		return fmt.Sprintf("Reminder: Your %s subscription payment is overdue. Please update your payment method to avoid cancellation.", planName)
	case models.DunningActionFinalWarning:
		return fmt.Sprintf("Final warning: Your %s subscription will be cancelled in 7 days unless payment is received.", planName)
	case models.DunningActionCancel:
		return fmt.Sprintf("Your %s subscription has been cancelled due to failed payment. You can resubscribe anytime.", planName)
	default:
		return fmt.Sprintf("Update on your %s subscription.", planName)
	}
}
