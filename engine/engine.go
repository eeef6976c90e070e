package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/flowmill/flowmill/activity"
	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	"go.uber.org/zap"
)

const DEFAULT_STEP_CEILING = 1000
const DEFAULT_MAX_RETRIES = 3

type Options struct {
	Backoff       Backoff
	StepCeiling   int
	PoolSize      int
	QueueCapacity int
}

// Engine is the runner: it advances one execution at a time through its
// graph. Work is partitioned across the pool by execution id, and a
// keyed mutex serializes steps against sweep-driven transitions, so at
// most one dispatch is in flight per execution.
type Engine struct {
	storage     persistence.Storage
	definitions *definition.Service
	registry    *activity.Registry
	backoff     Backoff
	stepCeiling int
	locks       *keyedMutex
	workers     []*util.Worker
}

func NewEngine(storage persistence.Storage, definitions *definition.Service, registry *activity.Registry, opts Options, wg *sync.WaitGroup) *Engine {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 512
	}
	if opts.StepCeiling <= 0 {
		opts.StepCeiling = DEFAULT_STEP_CEILING
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	e := &Engine{
		storage:     storage,
		definitions: definitions,
		registry:    registry,
		backoff:     opts.Backoff,
		stepCeiling: opts.StepCeiling,
		locks:       newKeyedMutex(),
	}
	for i := 0; i < opts.PoolSize; i++ {
		worker := util.NewWorker(fmt.Sprintf("runner-%d", i), wg, func(task util.Task) error {
			return e.Step(task.(string))
		}, opts.QueueCapacity)
		e.workers = append(e.workers, worker)
	}
	return e
}

func (e *Engine) Start() {
	for _, worker := range e.workers {
		worker.Start()
	}
}

func (e *Engine) Stop() {
	for _, worker := range e.workers {
		worker.Stop()
	}
}

// Submit hands a dispatch request to the worker owning the execution's
// partition, preserving per-execution ordering.
func (e *Engine) Submit(executionId string) {
	h := fnv.New32a()
	h.Write([]byte(executionId))
	e.workers[int(h.Sum32())%len(e.workers)].Sender() <- executionId
}

// Step runs one dispatch of an execution: load, invoke the current
// node's activity, persist the outcome. Terminal executions are a
// no-op, which makes re-dispatch after a crash safe.
func (e *Engine) Step(executionId string) error {
	e.locks.Lock(executionId)
	defer e.locks.Unlock(executionId)

	execution, err := e.storage.Executions().Get(executionId)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		logger.Debug("ignoring dispatch of terminal execution", zap.String("execution", executionId), zap.String("status", string(execution.Status)))
		return nil
	}
	if execution.CancelRequested {
		return e.markCancelled(execution)
	}
	if execution.Status == model.EXECUTION_WAITING_SIGNAL {
		// parked; only signal consumption or the timeout sweep moves it
		return nil
	}
	wf, err := e.definitions.Get(execution.WorkflowId, execution.Version)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return e.markFailed(execution, execution.CurrentNode, fmt.Errorf("definition %s version %d not loadable: %w", execution.WorkflowId, execution.Version, err))
		}
		// transient store failure: put the dispatch back and retry on a
		// later poll instead of failing the execution
		e.requeue(execution)
		return fmt.Errorf("error loading definition %s version %d: %w", execution.WorkflowId, execution.Version, err)
	}
	execution.StepCount++
	if execution.StepCount > e.stepCeiling {
		return e.markFailed(execution, execution.CurrentNode, ErrStepCeiling)
	}
	node, ok := wf.Node(execution.CurrentNode)
	if !ok {
		return e.markFailed(execution, execution.CurrentNode, fmt.Errorf("current node %s not in definition version %d", execution.CurrentNode, execution.Version))
	}
	if execution.Status == model.EXECUTION_RETRY_SCHEDULED {
		execution.NextRetryAt = nil
	}
	execution.Status = model.EXECUTION_RUNNING
	execution.UpdatedAt = time.Now()
	// persist the running transition so status polls during a long
	// activity invocation see it
	if err := e.storage.Executions().Save(execution); err != nil {
		e.requeue(execution)
		return err
	}

	config := util.ResolveNodeConfig(execution.State, node.Config)
	req := activity.Request{
		ExecutionId: execution.ExecutionId,
		NodeId:      node.Id,
		Attempt:     execution.RetryCount + 1,
		Config:      config,
		State:       execution.State,
	}
	result := e.registry.Invoke(context.Background(), node.Type, req)

	switch result.Kind {
	case activity.RESULT_SUCCESS:
		return e.applySuccess(execution, wf, node.Id, result.Outputs)
	case activity.RESULT_RETRYABLE:
		return e.applyRetryable(execution, node, result.Err)
	case activity.RESULT_FATAL:
		return e.markFailed(execution, node.Id, result.Err)
	case activity.RESULT_AWAIT_SIGNAL:
		return e.applyAwaitSignal(execution, node.Id, result)
	default:
		return e.markFailed(execution, node.Id, fmt.Errorf("activity returned unknown result kind %d", result.Kind))
	}
}

func (e *Engine) applySuccess(execution *model.WorkflowExecution, wf *model.WorkflowDefinition, nodeId string, outputs map[string]any) error {
	if execution.State == nil {
		execution.State = make(map[string]any)
	}
	for k, v := range outputs {
		execution.State[k] = v
	}
	next, found, err := selectNextNode(wf, nodeId, execution.State)
	if err != nil {
		return e.markFailed(execution, nodeId, err)
	}
	if !found {
		execution.Status = model.EXECUTION_COMPLETED
		execution.UpdatedAt = time.Now()
		if err := e.storage.Executions().Save(execution); err != nil {
			return err
		}
		e.appendLog(execution.ExecutionId, nodeId, model.LOG_LEVEL_INFO, fmt.Sprintf("node %s completed, execution completed", nodeId))
		logger.Info("execution completed", zap.String("execution", execution.ExecutionId), zap.String("workflow", execution.WorkflowId))
		return nil
	}
	execution.CurrentNode = next
	execution.RetryCount = 0
	execution.UpdatedAt = time.Now()
	if err := e.storage.Executions().SaveAndEnqueue(execution); err != nil {
		return err
	}
	e.appendLog(execution.ExecutionId, nodeId, model.LOG_LEVEL_INFO, fmt.Sprintf("node %s completed, advancing to %s", nodeId, next))
	return nil
}

func (e *Engine) applyRetryable(execution *model.WorkflowExecution, node model.WorkflowNode, actErr error) error {
	ceiling := node.MaxRetries
	if ceiling == 0 {
		ceiling = DEFAULT_MAX_RETRIES
	}
	if execution.RetryCount >= ceiling {
		logger.Error("retry ceiling exhausted, failing execution", zap.String("execution", execution.ExecutionId), zap.String("node", node.Id), zap.Int("maxRetries", ceiling))
		return e.markFailed(execution, node.Id, fmt.Errorf("retry ceiling %d exhausted: %w", ceiling, actErr))
	}
	execution.RetryCount++
	at := time.Now().Add(e.backoff.Delay(execution.RetryCount))
	execution.Status = model.EXECUTION_RETRY_SCHEDULED
	execution.NextRetryAt = &at
	execution.UpdatedAt = time.Now()
	if err := e.storage.Executions().ScheduleRetry(execution, at); err != nil {
		return err
	}
	e.appendLog(execution.ExecutionId, node.Id, model.LOG_LEVEL_INFO, fmt.Sprintf("node %s failed transiently (attempt %d), retry scheduled: %v", node.Id, execution.RetryCount, actErr))
	return nil
}

func (e *Engine) applyAwaitSignal(execution *model.WorkflowExecution, nodeId string, result activity.Result) error {
	timeoutAt := time.Now().Add(result.Timeout)
	execution.Status = model.EXECUTION_WAITING_SIGNAL
	execution.WaitSignal = result.SignalType
	execution.WaitTimeoutAt = &timeoutAt
	execution.UpdatedAt = time.Now()
	// timeout entry first: a stray entry for a non-waiting execution is
	// harmless, a waiting execution without one would never time out
	if err := e.storage.Executions().ScheduleSignalTimeout(execution.ExecutionId, timeoutAt); err != nil {
		return err
	}
	if err := e.storage.Executions().Save(execution); err != nil {
		return err
	}
	e.appendLog(execution.ExecutionId, nodeId, model.LOG_LEVEL_INFO, fmt.Sprintf("node %s waiting for signal %s until %s", nodeId, result.SignalType, timeoutAt.Format(time.RFC3339)))
	return nil
}

// ResumeWithSignal consumes one signal for a parked execution. The
// compare and set on the signal is the commit point: concurrent
// delivery attempts resume the execution exactly once. The signal
// payload completes the waiting node and the execution follows its
// success edge.
func (e *Engine) ResumeWithSignal(signal model.WorkflowSignal) error {
	e.locks.Lock(signal.ExecutionId)
	defer e.locks.Unlock(signal.ExecutionId)

	execution, err := e.storage.Executions().Get(signal.ExecutionId)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		// target is gone, drop the signal so the inbox drains
		_, err := e.storage.Signals().Consume(signal.SignalId)
		return err
	}
	if execution.Status != model.EXECUTION_WAITING_SIGNAL || execution.WaitSignal != signal.Type {
		// leave it in the inbox, the execution may wait on it later
		return nil
	}
	// load the definition before consuming: a transient store failure
	// here leaves the signal unprocessed for the next sweep to deliver
	wf, err := e.definitions.Get(execution.WorkflowId, execution.Version)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return e.markFailed(execution, execution.CurrentNode, fmt.Errorf("definition %s version %d not loadable: %w", execution.WorkflowId, execution.Version, err))
		}
		return fmt.Errorf("error loading definition %s version %d: %w", execution.WorkflowId, execution.Version, err)
	}
	consumed, err := e.storage.Signals().Consume(signal.SignalId)
	if err != nil {
		return err
	}
	if !consumed {
		return nil
	}
	if err := e.storage.Executions().CancelSignalTimeout(execution.ExecutionId); err != nil {
		return err
	}
	nodeId := execution.CurrentNode
	execution.WaitSignal = ""
	execution.WaitTimeoutAt = nil
	execution.Status = model.EXECUTION_RUNNING
	e.appendLog(execution.ExecutionId, nodeId, model.LOG_LEVEL_INFO, fmt.Sprintf("signal %s consumed, resuming", signal.Type))
	return e.applySuccess(execution, wf, nodeId, signal.Payload)
}

// FailTimeout transitions an execution still parked past its deadline
// to failed. Executions that were resumed in the meantime are left
// alone.
func (e *Engine) FailTimeout(executionId string, now time.Time) error {
	e.locks.Lock(executionId)
	defer e.locks.Unlock(executionId)

	execution, err := e.storage.Executions().Get(executionId)
	if err != nil {
		return err
	}
	if execution.Status != model.EXECUTION_WAITING_SIGNAL {
		return nil
	}
	if execution.WaitTimeoutAt == nil || execution.WaitTimeoutAt.After(now) {
		return nil
	}
	return e.markFailed(execution, execution.CurrentNode, fmt.Errorf("%w: signal %s", ErrSignalTimeout, execution.WaitSignal))
}

// Cancel marks the execution for cancellation and enqueues it so the
// runner observes the flag promptly.
func (e *Engine) Cancel(executionId string) error {
	e.locks.Lock(executionId)
	defer e.locks.Unlock(executionId)

	execution, err := e.storage.Executions().Get(executionId)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		return nil
	}
	execution.CancelRequested = true
	execution.UpdatedAt = time.Now()
	return e.storage.Executions().SaveAndEnqueue(execution)
}

func (e *Engine) markCancelled(execution *model.WorkflowExecution) error {
	execution.Status = model.EXECUTION_CANCELLED
	execution.NextRetryAt = nil
	execution.WaitSignal = ""
	execution.WaitTimeoutAt = nil
	execution.UpdatedAt = time.Now()
	if err := e.storage.Executions().CancelSignalTimeout(execution.ExecutionId); err != nil {
		return err
	}
	if err := e.storage.Executions().Save(execution); err != nil {
		return err
	}
	e.appendLog(execution.ExecutionId, execution.CurrentNode, model.LOG_LEVEL_INFO, "execution cancelled")
	logger.Info("execution cancelled", zap.String("execution", execution.ExecutionId))
	return nil
}

// requeue puts the dispatch back on the durable queue so a transient
// store failure is retried on a later poll instead of stranding the
// execution.
func (e *Engine) requeue(execution *model.WorkflowExecution) {
	if err := e.storage.Executions().SaveAndEnqueue(execution); err != nil {
		logger.Error("error re-enqueueing execution", zap.String("execution", execution.ExecutionId), zap.Error(err))
	}
}

func (e *Engine) markFailed(execution *model.WorkflowExecution, nodeId string, failure error) error {
	execution.Status = model.EXECUTION_FAILED
	execution.Error = failure.Error()
	execution.NextRetryAt = nil
	execution.WaitSignal = ""
	execution.WaitTimeoutAt = nil
	execution.UpdatedAt = time.Now()
	if err := e.storage.Executions().Save(execution); err != nil {
		return err
	}
	e.appendLog(execution.ExecutionId, nodeId, model.LOG_LEVEL_ERROR, fmt.Sprintf("execution failed: %v", failure))
	logger.Info("execution failed", zap.String("execution", execution.ExecutionId), zap.String("node", nodeId), zap.Error(failure))
	return nil
}

func (e *Engine) appendLog(executionId string, nodeId string, level model.LogLevel, message string) {
	entry := model.ExecutionLogEntry{
		ExecutionId: executionId,
		NodeId:      nodeId,
		Level:       level,
		Message:     message,
		Timestamp:   time.Now(),
	}
	if err := e.storage.ExecutionLogs().Append(entry); err != nil {
		logger.Error("error appending execution log entry", zap.String("execution", executionId), zap.Error(err))
	}
}
