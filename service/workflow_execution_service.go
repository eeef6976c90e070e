package service

import (
	"fmt"
	"time"

	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowExecutionService is the boundary the API layer calls:
// triggering, cancellation, status polling, signal posting and schedule
// management.
type WorkflowExecutionService struct {
	storage     persistence.Storage
	definitions *definition.Service
	engine      *engine.Engine
}

func NewWorkflowExecutionService(storage persistence.Storage, definitions *definition.Service, engine *engine.Engine) *WorkflowExecutionService {
	return &WorkflowExecutionService{
		storage:     storage,
		definitions: definitions,
		engine:      engine,
	}
}

// StartExecution is the manual trigger path; it pins the execution to
// the latest definition version and enqueues the entry node.
func (s *WorkflowExecutionService) StartExecution(workflowId string, input map[string]any) (string, error) {
	wf, err := s.definitions.Latest(workflowId)
	if err != nil {
		return "", err
	}
	if input == nil {
		input = make(map[string]any)
	}
	now := time.Now()
	execution := &model.WorkflowExecution{
		ExecutionId: uuid.New().String(),
		WorkflowId:  wf.WorkflowId,
		Version:     wf.Version,
		OwnerId:     wf.OwnerId,
		Status:      model.EXECUTION_PENDING,
		CurrentNode: wf.Entry,
		State:       input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.storage.Executions().SaveAndEnqueue(execution); err != nil {
		return "", err
	}
	logger.Info("execution started", zap.String("execution", execution.ExecutionId), zap.String("workflow", wf.WorkflowId), zap.Int("version", wf.Version))
	return execution.ExecutionId, nil
}

func (s *WorkflowExecutionService) CancelExecution(executionId string) error {
	return s.engine.Cancel(executionId)
}

func (s *WorkflowExecutionService) GetExecution(executionId string) (*model.WorkflowExecution, error) {
	return s.storage.Executions().Get(executionId)
}

func (s *WorkflowExecutionService) ListExecutions(ownerId string) ([]model.WorkflowExecution, error) {
	return s.storage.Executions().ListByOwner(ownerId)
}

func (s *WorkflowExecutionService) GetExecutionLog(executionId string) ([]model.ExecutionLogEntry, error) {
	return s.storage.ExecutionLogs().List(executionId)
}

// PostSignal appends to the durable inbox; delivery happens on the
// signal sweep so the webhook path never blocks on the runner.
func (s *WorkflowExecutionService) PostSignal(executionId string, signalType string, payload map[string]any) (string, error) {
	if len(signalType) == 0 {
		return "", fmt.Errorf("signal type can not be empty")
	}
	if _, err := s.storage.Executions().Get(executionId); err != nil {
		return "", err
	}
	signal := model.WorkflowSignal{
		SignalId:    uuid.New().String(),
		ExecutionId: executionId,
		Type:        signalType,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
	if err := s.storage.Signals().Append(signal); err != nil {
		return "", err
	}
	logger.Info("signal posted", zap.String("signal", signal.SignalId), zap.String("execution", executionId), zap.String("type", signalType))
	return signal.SignalId, nil
}

// CreateSchedule registers a cron trigger for a workflow. NextRunAt is
// seeded with the first occurrence after now.
func (s *WorkflowExecutionService) CreateSchedule(workflowId string, cronExpression string) (string, error) {
	wf, err := s.definitions.Latest(workflowId)
	if err != nil {
		return "", err
	}
	cronSchedule, err := definition.CronParser().Parse(cronExpression)
	if err != nil {
		return "", fmt.Errorf("invalid cron expression %s: %w", cronExpression, err)
	}
	schedule := model.WorkflowSchedule{
		ScheduleId: uuid.New().String(),
		WorkflowId: wf.WorkflowId,
		OwnerId:    wf.OwnerId,
		Cron:       cronExpression,
		Active:     true,
		NextRunAt:  cronSchedule.Next(time.Now()),
	}
	if err := s.storage.Schedules().Save(schedule); err != nil {
		return "", err
	}
	return schedule.ScheduleId, nil
}

func (s *WorkflowExecutionService) GetSchedule(scheduleId string) (*model.WorkflowSchedule, error) {
	return s.storage.Schedules().Get(scheduleId)
}

// ActivateSchedule re-seeds NextRunAt so a long-dormant schedule does
// not fire immediately for occurrences missed while inactive.
func (s *WorkflowExecutionService) ActivateSchedule(scheduleId string) error {
	schedule, err := s.storage.Schedules().Get(scheduleId)
	if err != nil {
		return err
	}
	cronSchedule, err := definition.CronParser().Parse(schedule.Cron)
	if err != nil {
		return err
	}
	schedule.Active = true
	schedule.NextRunAt = cronSchedule.Next(time.Now())
	return s.storage.Schedules().Save(*schedule)
}

func (s *WorkflowExecutionService) DeactivateSchedule(scheduleId string) error {
	return s.storage.Schedules().SetActive(scheduleId, false)
}
