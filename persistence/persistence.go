package persistence

import (
	"fmt"
	"time"

	"github.com/flowmill/flowmill/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

// DefinitionStorage persists immutable workflow definition versions.
type DefinitionStorage interface {
	Save(wf model.WorkflowDefinition) error
	Get(workflowId string, version int) (*model.WorkflowDefinition, error)
	LatestVersion(workflowId string) (int, error)
	Delete(workflowId string) error
}

// ExecutionStorage is the only writer of execution status, current node
// and retry bookkeeping. SaveAndEnqueue and ScheduleRetry commit the
// record and the queue entry atomically so a crash cannot split them.
type ExecutionStorage interface {
	Save(execution *model.WorkflowExecution) error
	Get(executionId string) (*model.WorkflowExecution, error)
	ListByOwner(ownerId string) ([]model.WorkflowExecution, error)

	SaveAndEnqueue(execution *model.WorkflowExecution) error
	PollDispatch(batchSize int) ([]model.DispatchRequest, error)
	AckDispatch(requests []model.DispatchRequest) error

	ScheduleRetry(execution *model.WorkflowExecution, at time.Time) error
	PollRetries(now time.Time) ([]model.DispatchRequest, error)

	ScheduleSignalTimeout(executionId string, at time.Time) error
	CancelSignalTimeout(executionId string) error
	PollSignalTimeouts(now time.Time) ([]model.DispatchRequest, error)
}

// SignalStorage is the durable signal inbox. Consume is a compare and
// set on the processed flag; it reports false when another consumer won.
type SignalStorage interface {
	Append(signal model.WorkflowSignal) error
	PollUnprocessed(batchSize int) ([]model.WorkflowSignal, error)
	Consume(signalId string) (bool, error)
}

type ScheduleStorage interface {
	Save(schedule model.WorkflowSchedule) error
	Get(scheduleId string) (*model.WorkflowSchedule, error)
	PollDue(now time.Time) ([]model.WorkflowSchedule, error)
	SetActive(scheduleId string, active bool) error
}

// ExecutionLogStorage is append only, ordered by timestamp.
type ExecutionLogStorage interface {
	Append(entry model.ExecutionLogEntry) error
	List(executionId string) ([]model.ExecutionLogEntry, error)
}

// Storage bundles the stores a single backend provides.
type Storage interface {
	Definitions() DefinitionStorage
	Executions() ExecutionStorage
	Signals() SignalStorage
	Schedules() ScheduleStorage
	ExecutionLogs() ExecutionLogStorage
}
