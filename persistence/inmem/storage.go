package inmem

import (
	"sort"
	"sync"
	"time"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
)

var _ persistence.Storage = new(Storage)

// Storage is a single-process implementation of every store, selected
// by --storage-impl memory and used throughout the tests. Semantics
// mirror the redis implementation: atomic save-plus-enqueue, compare
// and set signal consumption, due queues popped on poll.
type Storage struct {
	definitions   *definitionStorage
	executions    *executionStorage
	signals       *signalStorage
	schedules     *scheduleStorage
	executionLogs *executionLogStorage
}

func NewStorage() *Storage {
	return &Storage{
		definitions: &definitionStorage{
			versions: make(map[string]map[int]model.WorkflowDefinition),
		},
		executions: &executionStorage{
			executions: make(map[string]model.WorkflowExecution),
			dispatch:   make([]string, 0),
			retries:    make(map[string]time.Time),
			timeouts:   make(map[string]time.Time),
		},
		signals: &signalStorage{
			signals: make(map[string]model.WorkflowSignal),
		},
		schedules: &scheduleStorage{
			schedules: make(map[string]model.WorkflowSchedule),
		},
		executionLogs: &executionLogStorage{
			entries: make(map[string][]model.ExecutionLogEntry),
		},
	}
}

func (s *Storage) Definitions() persistence.DefinitionStorage {
	return s.definitions
}

func (s *Storage) Executions() persistence.ExecutionStorage {
	return s.executions
}

func (s *Storage) Signals() persistence.SignalStorage {
	return s.signals
}

func (s *Storage) Schedules() persistence.ScheduleStorage {
	return s.schedules
}

func (s *Storage) ExecutionLogs() persistence.ExecutionLogStorage {
	return s.executionLogs
}

type definitionStorage struct {
	mu       sync.RWMutex
	versions map[string]map[int]model.WorkflowDefinition
}

func (d *definitionStorage) Save(wf model.WorkflowDefinition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.versions[wf.WorkflowId]; !ok {
		d.versions[wf.WorkflowId] = make(map[int]model.WorkflowDefinition)
	}
	d.versions[wf.WorkflowId][wf.Version] = wf
	return nil
}

func (d *definitionStorage) Get(workflowId string, version int) (*model.WorkflowDefinition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	wf, ok := d.versions[workflowId][version]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: workflowId}
	}
	return &wf, nil
}

func (d *definitionStorage) LatestVersion(workflowId string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	versions, ok := d.versions[workflowId]
	if !ok || len(versions) == 0 {
		return 0, persistence.NotFoundError{Kind: "workflow", Id: workflowId}
	}
	latest := 0
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

func (d *definitionStorage) Delete(workflowId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.versions, workflowId)
	return nil
}

type executionStorage struct {
	mu         sync.Mutex
	executions map[string]model.WorkflowExecution
	dispatch   []string
	retries    map[string]time.Time
	timeouts   map[string]time.Time
}

func (e *executionStorage) Save(execution *model.WorkflowExecution) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[execution.ExecutionId] = *execution
	return nil
}

func (e *executionStorage) Get(executionId string) (*model.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	execution, ok := e.executions[executionId]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "execution", Id: executionId}
	}
	return &execution, nil
}

func (e *executionStorage) ListByOwner(ownerId string) ([]model.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var executions []model.WorkflowExecution
	for _, execution := range e.executions {
		if execution.OwnerId == ownerId {
			executions = append(executions, execution)
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})
	return executions, nil
}

func (e *executionStorage) SaveAndEnqueue(execution *model.WorkflowExecution) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[execution.ExecutionId] = *execution
	for _, id := range e.dispatch {
		if id == execution.ExecutionId {
			return nil
		}
	}
	e.dispatch = append(e.dispatch, execution.ExecutionId)
	return nil
}

func (e *executionStorage) PollDispatch(batchSize int) ([]model.DispatchRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := batchSize
	if n > len(e.dispatch) {
		n = len(e.dispatch)
	}
	var requests []model.DispatchRequest
	for _, id := range e.dispatch[:n] {
		requests = append(requests, model.DispatchRequest{ExecutionId: id})
	}
	return requests, nil
}

func (e *executionStorage) AckDispatch(requests []model.DispatchRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, req := range requests {
		for i, id := range e.dispatch {
			if id == req.ExecutionId {
				e.dispatch = append(e.dispatch[:i], e.dispatch[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (e *executionStorage) ScheduleRetry(execution *model.WorkflowExecution, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[execution.ExecutionId] = *execution
	e.retries[execution.ExecutionId] = at
	return nil
}

func (e *executionStorage) PollRetries(now time.Time) ([]model.DispatchRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return popDue(e.retries, now), nil
}

func (e *executionStorage) ScheduleSignalTimeout(executionId string, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeouts[executionId] = at
	return nil
}

func (e *executionStorage) CancelSignalTimeout(executionId string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.timeouts, executionId)
	return nil
}

func (e *executionStorage) PollSignalTimeouts(now time.Time) ([]model.DispatchRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return popDue(e.timeouts, now), nil
}

func popDue(queue map[string]time.Time, now time.Time) []model.DispatchRequest {
	var requests []model.DispatchRequest
	for id, at := range queue {
		if !at.After(now) {
			requests = append(requests, model.DispatchRequest{ExecutionId: id})
			delete(queue, id)
		}
	}
	return requests
}

type signalStorage struct {
	mu      sync.Mutex
	signals map[string]model.WorkflowSignal
	order   []string
}

func (s *signalStorage) Append(signal model.WorkflowSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[signal.SignalId] = signal
	s.order = append(s.order, signal.SignalId)
	return nil
}

func (s *signalStorage) PollUnprocessed(batchSize int) ([]model.WorkflowSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var signals []model.WorkflowSignal
	for _, id := range s.order {
		signal := s.signals[id]
		if signal.Processed {
			continue
		}
		signals = append(signals, signal)
		if len(signals) == batchSize {
			break
		}
	}
	return signals, nil
}

func (s *signalStorage) Consume(signalId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signal, ok := s.signals[signalId]
	if !ok || signal.Processed {
		return false, nil
	}
	signal.Processed = true
	s.signals[signalId] = signal
	return true, nil
}

type scheduleStorage struct {
	mu        sync.Mutex
	schedules map[string]model.WorkflowSchedule
}

func (s *scheduleStorage) Save(schedule model.WorkflowSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.ScheduleId] = schedule
	return nil
}

func (s *scheduleStorage) Get(scheduleId string) (*model.WorkflowSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[scheduleId]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "schedule", Id: scheduleId}
	}
	return &schedule, nil
}

func (s *scheduleStorage) PollDue(now time.Time) ([]model.WorkflowSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.WorkflowSchedule
	for _, schedule := range s.schedules {
		if schedule.Active && !schedule.NextRunAt.After(now) {
			due = append(due, schedule)
		}
	}
	return due, nil
}

func (s *scheduleStorage) SetActive(scheduleId string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[scheduleId]
	if !ok {
		return persistence.NotFoundError{Kind: "schedule", Id: scheduleId}
	}
	schedule.Active = active
	s.schedules[scheduleId] = schedule
	return nil
}

type executionLogStorage struct {
	mu      sync.Mutex
	entries map[string][]model.ExecutionLogEntry
}

func (l *executionLogStorage) Append(entry model.ExecutionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.ExecutionId] = append(l.entries[entry.ExecutionId], entry)
	return nil
}

func (l *executionLogStorage) List(executionId string) ([]model.ExecutionLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]model.ExecutionLogEntry, len(l.entries[executionId]))
	copy(entries, l.entries[executionId])
	return entries, nil
}
