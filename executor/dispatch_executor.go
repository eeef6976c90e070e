package executor

import (
	"sync"
	"time"

	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	"go.uber.org/zap"
)

var _ Executor = new(dispatchExecutor)

// dispatchExecutor drains the durable dispatch queue into the runner
// pool. Entries are acked after submission; a crash in between causes a
// re-dispatch, which the runner's terminal no-op makes safe.
type dispatchExecutor struct {
	storage   persistence.Storage
	engine    *engine.Engine
	batchSize int
	tw        *util.TickWorker
}

func NewDispatchExecutor(storage persistence.Storage, engine *engine.Engine, interval time.Duration, batchSize int, wg *sync.WaitGroup) *dispatchExecutor {
	ex := &dispatchExecutor{
		storage:   storage,
		engine:    engine,
		batchSize: batchSize,
	}
	ex.tw = util.NewTickWorker("dispatch-poller", interval, ex.handle, wg)
	return ex
}

func (ex *dispatchExecutor) Start() {
	ex.tw.Start()
}

func (ex *dispatchExecutor) Stop() {
	ex.tw.Stop()
}

func (ex *dispatchExecutor) handle() {
	requests, err := ex.storage.Executions().PollDispatch(ex.batchSize)
	if err != nil {
		logger.Error("error polling dispatch queue", zap.Error(err))
		return
	}
	if len(requests) == 0 {
		return
	}
	for _, req := range requests {
		ex.engine.Submit(req.ExecutionId)
	}
	if err := ex.storage.Executions().AckDispatch(requests); err != nil {
		logger.Error("error acking dispatch queue", zap.Error(err))
	}
}
