package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/flowmill/flowmill/activity"
	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func TestCronSweepSkipsMissedOccurrences(t *testing.T) {
	storage := inmem.NewStorage()
	registry := activity.NewRegistry()
	definitions := definition.NewService(storage.Definitions(), registry)

	wf := model.WorkflowDefinition{
		OwnerId: "owner-1",
		Name:    "nightly",
		Entry:   "report",
		Trigger: model.TriggerConfig{Type: model.TRIGGER_TYPE_CRON, Cron: "0 * * * *"},
		Nodes:   []model.WorkflowNode{{Id: "report", Type: "noop"}},
	}
	workflowId, err := definitions.Create(wf)
	require.NoError(t, err)

	// overdue by several hourly periods
	schedule := model.WorkflowSchedule{
		ScheduleId: "sched-1",
		WorkflowId: workflowId,
		Cron:       "0 * * * *",
		Active:     true,
		NextRunAt:  time.Now().Add(-3 * time.Hour),
	}
	require.NoError(t, storage.Schedules().Save(schedule))

	var wg sync.WaitGroup
	ex := NewCronExecutor(storage, definitions, time.Second, &wg)
	ex.handle()

	executions, err := storage.Executions().ListByOwner("owner-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, model.EXECUTION_PENDING, executions[0].Status)
	require.Equal(t, "report", executions[0].CurrentNode)

	advanced, err := storage.Schedules().Get("sched-1")
	require.NoError(t, err)
	require.True(t, advanced.NextRunAt.After(time.Now()))
	require.NotNil(t, advanced.LastRunAt)

	// nothing left due, a second sweep fires nothing
	ex.handle()
	executions, err = storage.Executions().ListByOwner("owner-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
}

func TestCronSweepIgnoresInactiveSchedules(t *testing.T) {
	storage := inmem.NewStorage()
	registry := activity.NewRegistry()
	definitions := definition.NewService(storage.Definitions(), registry)

	require.NoError(t, storage.Schedules().Save(model.WorkflowSchedule{
		ScheduleId: "sched-off",
		WorkflowId: "wf-any",
		Cron:       "0 * * * *",
		Active:     false,
		NextRunAt:  time.Now().Add(-time.Hour),
	}))

	var wg sync.WaitGroup
	ex := NewCronExecutor(storage, definitions, time.Second, &wg)
	ex.handle()

	executions, err := storage.Executions().ListByOwner("owner-1")
	require.NoError(t, err)
	require.Empty(t, executions)
}
