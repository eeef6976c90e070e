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

var _ Executor = new(timeoutExecutor)

// timeoutExecutor fails executions still waiting on a signal past
// their deadline.
type timeoutExecutor struct {
	storage persistence.Storage
	engine  *engine.Engine
	tw      *util.TickWorker
}

func NewTimeoutExecutor(storage persistence.Storage, engine *engine.Engine, interval time.Duration, wg *sync.WaitGroup) *timeoutExecutor {
	ex := &timeoutExecutor{
		storage: storage,
		engine:  engine,
	}
	ex.tw = util.NewTickWorker("timeout-sweep", interval, ex.handle, wg)
	return ex
}

func (ex *timeoutExecutor) Start() {
	ex.tw.Start()
}

func (ex *timeoutExecutor) Stop() {
	ex.tw.Stop()
}

func (ex *timeoutExecutor) handle() {
	now := time.Now()
	requests, err := ex.storage.Executions().PollSignalTimeouts(now)
	if err != nil {
		logger.Error("error polling signal timeouts", zap.Error(err))
		return
	}
	for _, req := range requests {
		if err := ex.engine.FailTimeout(req.ExecutionId, now); err != nil {
			logger.Error("error failing timed out execution", zap.String("execution", req.ExecutionId), zap.Error(err))
		}
	}
}
