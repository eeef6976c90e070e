package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowmill/flowmill/activity"
	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/persistence/inmem"
	"github.com/stretchr/testify/require"
)

// flakyDefinitionStorage fails the next Get calls with a transient
// storage error, then delegates.
type flakyDefinitionStorage struct {
	persistence.DefinitionStorage
	failures int
}

func (f *flakyDefinitionStorage) Get(workflowId string, version int) (*model.WorkflowDefinition, error) {
	if f.failures > 0 {
		f.failures--
		return nil, persistence.StorageLayerError{Message: "connection refused"}
	}
	return f.DefinitionStorage.Get(workflowId, version)
}

type stubActivity struct {
	name string
	fn   func(req activity.Request) activity.Result
}

func (s *stubActivity) Name() string {
	return s.name
}

func (s *stubActivity) Execute(ctx context.Context, req activity.Request) activity.Result {
	return s.fn(req)
}

type fixture struct {
	storage  *inmem.Storage
	registry *activity.Registry
	engine   *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	storage := inmem.NewStorage()
	registry := activity.NewRegistry()
	definitions := definition.NewService(storage.Definitions(), registry)
	var wg sync.WaitGroup
	return &fixture{
		storage:  storage,
		registry: registry,
		engine:   NewEngine(storage, definitions, registry, opts, &wg),
	}
}

func newFlakyFixture(t *testing.T, failures int) *fixture {
	t.Helper()
	storage := inmem.NewStorage()
	registry := activity.NewRegistry()
	flaky := &flakyDefinitionStorage{DefinitionStorage: storage.Definitions(), failures: failures}
	definitions := definition.NewService(flaky, registry)
	var wg sync.WaitGroup
	return &fixture{
		storage:  storage,
		registry: registry,
		engine:   NewEngine(storage, definitions, registry, Options{}, &wg),
	}
}

func (f *fixture) register(t *testing.T, name string, fn func(req activity.Request) activity.Result) {
	t.Helper()
	require.NoError(t, f.registry.Register(name, &stubActivity{name: name, fn: fn}))
}

func (f *fixture) saveDefinition(t *testing.T, wf model.WorkflowDefinition) {
	t.Helper()
	require.NoError(t, f.storage.Definitions().Save(wf))
}

func (f *fixture) startExecution(t *testing.T, wf model.WorkflowDefinition, input map[string]any) string {
	t.Helper()
	if input == nil {
		input = make(map[string]any)
	}
	execution := &model.WorkflowExecution{
		ExecutionId: "exec-" + wf.WorkflowId,
		WorkflowId:  wf.WorkflowId,
		Version:     wf.Version,
		OwnerId:     wf.OwnerId,
		Status:      model.EXECUTION_PENDING,
		CurrentNode: wf.Entry,
		State:       input,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, f.storage.Executions().SaveAndEnqueue(execution))
	return execution.ExecutionId
}

// pump drives queued dispatches and due retries synchronously until the
// engine parks or terminates. Retries are polled with a far future
// clock so backoff delays do not slow the test down.
func (f *fixture) pump(t *testing.T) {
	t.Helper()
	executions := f.storage.Executions()
	for i := 0; i < 200; i++ {
		requests, err := executions.PollDispatch(100)
		require.NoError(t, err)
		if len(requests) > 0 {
			require.NoError(t, executions.AckDispatch(requests))
		} else {
			requests, err = executions.PollRetries(time.Now().Add(72 * time.Hour))
			require.NoError(t, err)
		}
		if len(requests) == 0 {
			return
		}
		for _, req := range requests {
			require.NoError(t, f.engine.Step(req.ExecutionId))
		}
	}
	t.Fatal("pump did not quiesce")
}

func (f *fixture) getExecution(t *testing.T, executionId string) *model.WorkflowExecution {
	t.Helper()
	execution, err := f.storage.Executions().Get(executionId)
	require.NoError(t, err)
	return execution
}

func linearDefinition(types ...string) model.WorkflowDefinition {
	wf := model.WorkflowDefinition{
		WorkflowId: "wf-1",
		OwnerId:    "owner-1",
		Name:       "test",
		Version:    1,
		Entry:      "n0",
		Trigger:    model.TriggerConfig{Type: model.TRIGGER_TYPE_MANUAL},
	}
	for i, nodeType := range types {
		id := nodeId(i)
		wf.Nodes = append(wf.Nodes, model.WorkflowNode{Id: id, Type: nodeType})
		if i > 0 {
			wf.Edges = append(wf.Edges, model.WorkflowEdge{From: nodeId(i - 1), To: id})
		}
	}
	return wf
}

func nodeId(i int) string {
	return "n" + string(rune('0'+i))
}

func TestRetriedExecutionCompletes(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "task-a", func(req activity.Request) activity.Result {
		return activity.Success(map[string]any{"y": 2})
	})
	f.register(t, "task-b", func(req activity.Request) activity.Result {
		if req.Attempt <= 2 {
			return activity.Retryable(errors.New("transient"))
		}
		return activity.Success(map[string]any{"z": 3})
	})
	f.register(t, "task-c", func(req activity.Request) activity.Result {
		return activity.Success(map[string]any{})
	})
	wf := linearDefinition("task-a", "task-b", "task-c")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, map[string]any{"x": 1})
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_COMPLETED, execution.Status)
	require.Equal(t, map[string]any{"x": 1, "y": 2, "z": 3}, execution.State)

	entries, err := f.storage.ExecutionLogs().List(executionId)
	require.NoError(t, err)
	retriesScheduled := 0
	for _, entry := range entries {
		require.Equal(t, executionId, entry.ExecutionId)
		if strings.Contains(entry.Message, "retry scheduled") {
			retriesScheduled++
			require.Equal(t, "n1", entry.NodeId)
		}
	}
	require.Equal(t, 2, retriesScheduled)
}

func TestRetryCeilingFailsExecution(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "always-transient", func(req activity.Request) activity.Result {
		return activity.Retryable(errors.New("still broken"))
	})
	wf := linearDefinition("always-transient")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_FAILED, execution.Status)
	require.Equal(t, DEFAULT_MAX_RETRIES, execution.RetryCount)
	require.Contains(t, execution.Error, "retry ceiling")
	require.Nil(t, execution.NextRetryAt)
}

func TestFatalFailsImmediately(t *testing.T) {
	f := newFixture(t, Options{})
	invocations := 0
	f.register(t, "broken", func(req activity.Request) activity.Result {
		invocations++
		return activity.Fatal(errors.New("bad config"))
	})
	wf := linearDefinition("broken")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_FAILED, execution.Status)
	require.Equal(t, 1, invocations)
	require.Contains(t, execution.Error, "bad config")
}

func TestTerminalRedispatchIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "once", func(req activity.Request) activity.Result {
		return activity.Success(nil)
	})
	wf := linearDefinition("once")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)
	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_COMPLETED, execution.Status)

	entriesBefore, err := f.storage.ExecutionLogs().List(executionId)
	require.NoError(t, err)
	require.NoError(t, f.engine.Step(executionId))
	after := f.getExecution(t, executionId)
	require.Equal(t, execution.StepCount, after.StepCount)
	require.Equal(t, model.EXECUTION_COMPLETED, after.Status)
	entriesAfter, err := f.storage.ExecutionLogs().List(executionId)
	require.NoError(t, err)
	require.Len(t, entriesAfter, len(entriesBefore))
}

func TestBranchSelection(t *testing.T) {
	f := newFixture(t, Options{})
	visited := make(map[string]bool)
	f.register(t, "score", func(req activity.Request) activity.Result {
		return activity.Success(map[string]any{"score": 10})
	})
	f.register(t, "high", func(req activity.Request) activity.Result {
		visited["high"] = true
		return activity.Success(nil)
	})
	f.register(t, "low", func(req activity.Request) activity.Result {
		visited["low"] = true
		return activity.Success(nil)
	})
	wf := model.WorkflowDefinition{
		WorkflowId: "wf-branch",
		OwnerId:    "owner-1",
		Version:    1,
		Entry:      "start",
		Trigger:    model.TriggerConfig{Type: model.TRIGGER_TYPE_MANUAL},
		Nodes: []model.WorkflowNode{
			{Id: "start", Type: "score"},
			{Id: "high", Type: "high"},
			{Id: "low", Type: "low"},
		},
		Edges: []model.WorkflowEdge{
			{From: "start", To: "high", When: "$.score > 5"},
			{From: "start", To: "low", Default: true},
		},
	}
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_COMPLETED, execution.Status)
	require.True(t, visited["high"])
	require.False(t, visited["low"])
}

func TestBranchWithoutMatchFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "score", func(req activity.Request) activity.Result {
		return activity.Success(map[string]any{"score": 1})
	})
	f.register(t, "high", func(req activity.Request) activity.Result {
		return activity.Success(nil)
	})
	wf := model.WorkflowDefinition{
		WorkflowId: "wf-nomatch",
		OwnerId:    "owner-1",
		Version:    1,
		Entry:      "start",
		Trigger:    model.TriggerConfig{Type: model.TRIGGER_TYPE_MANUAL},
		Nodes: []model.WorkflowNode{
			{Id: "start", Type: "score"},
			{Id: "high", Type: "high"},
		},
		Edges: []model.WorkflowEdge{
			{From: "start", To: "high", When: "$.score > 5"},
		},
	}
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_FAILED, execution.Status)
	require.Contains(t, execution.Error, ErrNoMatchingEdge.Error())
}

func TestAwaitSignalResume(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "approve", func(req activity.Request) activity.Result {
		return activity.AwaitSignal("approval", time.Hour)
	})
	f.register(t, "final", func(req activity.Request) activity.Result {
		return activity.Success(nil)
	})
	wf := linearDefinition("approve", "final")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_WAITING_SIGNAL, execution.Status)
	require.Equal(t, "approval", execution.WaitSignal)
	require.NotNil(t, execution.WaitTimeoutAt)

	signal := model.WorkflowSignal{
		SignalId:    "sig-1",
		ExecutionId: executionId,
		Type:        "approval",
		Payload:     map[string]any{"approved": true},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.storage.Signals().Append(signal))
	require.NoError(t, f.engine.ResumeWithSignal(signal))
	f.pump(t)

	execution = f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_COMPLETED, execution.Status)
	require.Equal(t, true, execution.State["approved"])
	require.Empty(t, execution.WaitSignal)

	// a second delivery of the same signal must not resume anything
	require.NoError(t, f.engine.ResumeWithSignal(signal))
	after := f.getExecution(t, executionId)
	require.Equal(t, execution.StepCount, after.StepCount)
}

func TestMismatchedSignalStaysPending(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "approve", func(req activity.Request) activity.Result {
		return activity.AwaitSignal("approval", time.Hour)
	})
	wf := linearDefinition("approve")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	signal := model.WorkflowSignal{
		SignalId:    "sig-other",
		ExecutionId: executionId,
		Type:        "rejection",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.storage.Signals().Append(signal))
	require.NoError(t, f.engine.ResumeWithSignal(signal))

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_WAITING_SIGNAL, execution.Status)
	unprocessed, err := f.storage.Signals().PollUnprocessed(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
}

func TestSignalTimeoutFailsExecution(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "approve", func(req activity.Request) activity.Result {
		return activity.AwaitSignal("approval", time.Hour)
	})
	wf := linearDefinition("approve")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	// before the deadline nothing happens
	require.NoError(t, f.engine.FailTimeout(executionId, time.Now()))
	require.Equal(t, model.EXECUTION_WAITING_SIGNAL, f.getExecution(t, executionId).Status)

	require.NoError(t, f.engine.FailTimeout(executionId, time.Now().Add(2*time.Hour)))
	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_FAILED, execution.Status)
	require.Contains(t, execution.Error, ErrSignalTimeout.Error())
}

func TestCancelSkipsActivity(t *testing.T) {
	f := newFixture(t, Options{})
	invocations := 0
	f.register(t, "slow", func(req activity.Request) activity.Result {
		invocations++
		return activity.Success(nil)
	})
	wf := linearDefinition("slow")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	require.NoError(t, f.engine.Cancel(executionId))
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_CANCELLED, execution.Status)
	require.Equal(t, 0, invocations)

	// cancelling a terminal execution stays a no-op
	require.NoError(t, f.engine.Cancel(executionId))
	require.Equal(t, model.EXECUTION_CANCELLED, f.getExecution(t, executionId).Status)
}

func TestStepCeilingBoundsCyclicGraph(t *testing.T) {
	f := newFixture(t, Options{StepCeiling: 10})
	f.register(t, "poll", func(req activity.Request) activity.Result {
		return activity.Success(nil)
	})
	wf := model.WorkflowDefinition{
		WorkflowId: "wf-loop",
		OwnerId:    "owner-1",
		Version:    1,
		Entry:      "poll",
		Trigger:    model.TriggerConfig{Type: model.TRIGGER_TYPE_MANUAL},
		Nodes: []model.WorkflowNode{
			{Id: "poll", Type: "poll"},
		},
		Edges: []model.WorkflowEdge{
			{From: "poll", To: "poll"},
		},
	}
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_FAILED, execution.Status)
	require.Contains(t, execution.Error, ErrStepCeiling.Error())
	require.Equal(t, 11, execution.StepCount)
}

func TestNodeConfigInterpolation(t *testing.T) {
	f := newFixture(t, Options{})
	var seenConfig map[string]any
	f.register(t, "emit", func(req activity.Request) activity.Result {
		return activity.Success(map[string]any{"target": "world"})
	})
	f.register(t, "consume", func(req activity.Request) activity.Result {
		seenConfig = req.Config
		return activity.Success(nil)
	})
	wf := linearDefinition("emit", "consume")
	wf.Nodes[1].Config = map[string]any{"greeting": "hello {$.target}"}
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	require.Equal(t, model.EXECUTION_COMPLETED, f.getExecution(t, executionId).Status)
	require.Equal(t, "hello world", seenConfig["greeting"])
}

func TestTransientDefinitionOutageRetriesDispatch(t *testing.T) {
	f := newFlakyFixture(t, 1)
	wf := linearDefinition("noop")
	f.saveDefinition(t, wf)
	executionId := f.startExecution(t, wf, nil)
	requests, err := f.storage.Executions().PollDispatch(10)
	require.NoError(t, err)
	require.NoError(t, f.storage.Executions().AckDispatch(requests))

	err = f.engine.Step(executionId)
	require.Error(t, err)
	var transient persistence.StorageLayerError
	require.ErrorAs(t, err, &transient)

	// not failed, still pending, and back on the dispatch queue
	execution := f.getExecution(t, executionId)
	require.Equal(t, model.EXECUTION_PENDING, execution.Status)
	require.Empty(t, execution.Error)
	requests, err = f.storage.Executions().PollDispatch(10)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	require.NoError(t, f.engine.Step(executionId))
	require.Equal(t, model.EXECUTION_COMPLETED, f.getExecution(t, executionId).Status)
}

func TestMissingDefinitionFailsExecution(t *testing.T) {
	f := newFixture(t, Options{})
	execution := &model.WorkflowExecution{
		ExecutionId: "exec-ghost",
		WorkflowId:  "wf-ghost",
		Version:     1,
		Status:      model.EXECUTION_PENDING,
		CurrentNode: "n0",
		State:       make(map[string]any),
	}
	require.NoError(t, f.storage.Executions().SaveAndEnqueue(execution))

	require.NoError(t, f.engine.Step("exec-ghost"))
	got := f.getExecution(t, "exec-ghost")
	require.Equal(t, model.EXECUTION_FAILED, got.Status)
	require.Contains(t, got.Error, "not loadable")
}

func TestTransientOutageLeavesSignalUnprocessed(t *testing.T) {
	f := newFlakyFixture(t, 1)
	wf := model.WorkflowDefinition{
		WorkflowId: "wf-gate",
		OwnerId:    "owner-1",
		Version:    1,
		Entry:      "gate",
		Trigger:    model.TriggerConfig{Type: model.TRIGGER_TYPE_MANUAL},
		Nodes:      []model.WorkflowNode{{Id: "gate", Type: "wait"}},
	}
	f.saveDefinition(t, wf)
	timeoutAt := time.Now().Add(time.Hour)
	execution := &model.WorkflowExecution{
		ExecutionId:   "exec-gate",
		WorkflowId:    "wf-gate",
		Version:       1,
		OwnerId:       "owner-1",
		Status:        model.EXECUTION_WAITING_SIGNAL,
		CurrentNode:   "gate",
		State:         make(map[string]any),
		WaitSignal:    "approval",
		WaitTimeoutAt: &timeoutAt,
	}
	require.NoError(t, f.storage.Executions().Save(execution))
	require.NoError(t, f.storage.Executions().ScheduleSignalTimeout("exec-gate", timeoutAt))
	signal := model.WorkflowSignal{
		SignalId:    "sig-1",
		ExecutionId: "exec-gate",
		Type:        "approval",
		Payload:     map[string]any{"approved": true},
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.storage.Signals().Append(signal))

	err := f.engine.ResumeWithSignal(signal)
	require.Error(t, err)
	var transient persistence.StorageLayerError
	require.ErrorAs(t, err, &transient)

	// delivery not burned: still waiting, signal still in the inbox
	after := f.getExecution(t, "exec-gate")
	require.Equal(t, model.EXECUTION_WAITING_SIGNAL, after.Status)
	unprocessed, err := f.storage.Signals().PollUnprocessed(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	// the next sweep delivers
	require.NoError(t, f.engine.ResumeWithSignal(signal))
	after = f.getExecution(t, "exec-gate")
	require.Equal(t, model.EXECUTION_COMPLETED, after.Status)
	require.Equal(t, true, after.State["approved"])
}

func TestRunningStatusPersistedDuringInvoke(t *testing.T) {
	f := newFixture(t, Options{})
	var observed []model.ExecutionStatus
	f.register(t, "inspect", func(req activity.Request) activity.Result {
		execution, err := f.storage.Executions().Get(req.ExecutionId)
		require.NoError(t, err)
		observed = append(observed, execution.Status)
		if req.Attempt == 1 {
			return activity.Retryable(errors.New("transient"))
		}
		require.Nil(t, execution.NextRetryAt)
		return activity.Success(nil)
	})
	wf := linearDefinition("inspect")
	f.saveDefinition(t, wf)

	executionId := f.startExecution(t, wf, nil)
	f.pump(t)

	require.Equal(t, model.EXECUTION_COMPLETED, f.getExecution(t, executionId).Status)
	require.Equal(t, []model.ExecutionStatus{model.EXECUTION_RUNNING, model.EXECUTION_RUNNING}, observed)
}
