package executor

import (
	"sync"
	"time"

	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Executor = new(cronExecutor)

// cronExecutor fires due schedules. Each fire creates one pending
// execution and advances NextRunAt to the first occurrence strictly
// after now, so a schedule overdue by several periods produces one
// execution, not one per missed period.
type cronExecutor struct {
	storage     persistence.Storage
	definitions *definition.Service
	tw          *util.TickWorker
}

func NewCronExecutor(storage persistence.Storage, definitions *definition.Service, interval time.Duration, wg *sync.WaitGroup) *cronExecutor {
	ex := &cronExecutor{
		storage:     storage,
		definitions: definitions,
	}
	ex.tw = util.NewTickWorker("cron-sweep", interval, ex.handle, wg)
	return ex
}

func (ex *cronExecutor) Start() {
	ex.tw.Start()
}

func (ex *cronExecutor) Stop() {
	ex.tw.Stop()
}

func (ex *cronExecutor) handle() {
	now := time.Now()
	schedules, err := ex.storage.Schedules().PollDue(now)
	if err != nil {
		logger.Error("error polling due schedules", zap.Error(err))
		return
	}
	for _, schedule := range schedules {
		if err := ex.fire(schedule, now); err != nil {
			logger.Error("error firing schedule", zap.String("schedule", schedule.ScheduleId), zap.String("workflow", schedule.WorkflowId), zap.Error(err))
		}
	}
}

func (ex *cronExecutor) fire(schedule model.WorkflowSchedule, now time.Time) error {
	cronSchedule, err := definition.CronParser().Parse(schedule.Cron)
	if err != nil {
		return err
	}
	wf, err := ex.definitions.Latest(schedule.WorkflowId)
	if err != nil {
		return err
	}
	execution := &model.WorkflowExecution{
		ExecutionId: uuid.New().String(),
		WorkflowId:  wf.WorkflowId,
		Version:     wf.Version,
		OwnerId:     wf.OwnerId,
		Status:      model.EXECUTION_PENDING,
		CurrentNode: wf.Entry,
		State:       make(map[string]any),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := ex.storage.Executions().SaveAndEnqueue(execution); err != nil {
		return err
	}
	schedule.LastRunAt = &now
	schedule.NextRunAt = cronSchedule.Next(now)
	if err := ex.storage.Schedules().Save(schedule); err != nil {
		return err
	}
	logger.Info("cron fired", zap.String("schedule", schedule.ScheduleId), zap.String("execution", execution.ExecutionId), zap.Time("nextRun", schedule.NextRunAt))
	return nil
}
