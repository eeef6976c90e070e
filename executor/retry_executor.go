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

var _ Executor = new(retryExecutor)

// retryExecutor hands due retry_scheduled executions back to the
// runner; the runner clears next_retry_at when it picks the step up.
type retryExecutor struct {
	storage persistence.Storage
	engine  *engine.Engine
	tw      *util.TickWorker
}

func NewRetryExecutor(storage persistence.Storage, engine *engine.Engine, interval time.Duration, wg *sync.WaitGroup) *retryExecutor {
	ex := &retryExecutor{
		storage: storage,
		engine:  engine,
	}
	ex.tw = util.NewTickWorker("retry-sweep", interval, ex.handle, wg)
	return ex
}

func (ex *retryExecutor) Start() {
	ex.tw.Start()
}

func (ex *retryExecutor) Stop() {
	ex.tw.Stop()
}

func (ex *retryExecutor) handle() {
	requests, err := ex.storage.Executions().PollRetries(time.Now())
	if err != nil {
		logger.Error("error polling due retries", zap.Error(err))
		return
	}
	for _, req := range requests {
		ex.engine.Submit(req.ExecutionId)
	}
}
