package model

import "time"

// WorkflowSchedule drives cron triggering. NextRunAt is advanced by the
// cron sweep after each fire to the first occurrence strictly after now;
// missed occurrences are skipped, not backfilled.
type WorkflowSchedule struct {
	ScheduleId string     `json:"scheduleId"`
	WorkflowId string     `json:"workflowId"`
	OwnerId    string     `json:"ownerId"`
	Cron       string     `json:"cron"`
	Active     bool       `json:"active"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt  time.Time  `json:"nextRunAt"`
}
