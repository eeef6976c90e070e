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

var _ Executor = new(signalExecutor)

// signalExecutor delivers unprocessed signals to their parked target
// executions. Type-mismatched signals stay in the inbox; consumption is
// decided by the runner under the execution lock.
type signalExecutor struct {
	storage   persistence.Storage
	engine    *engine.Engine
	batchSize int
	tw        *util.TickWorker
}

func NewSignalExecutor(storage persistence.Storage, engine *engine.Engine, interval time.Duration, batchSize int, wg *sync.WaitGroup) *signalExecutor {
	ex := &signalExecutor{
		storage:   storage,
		engine:    engine,
		batchSize: batchSize,
	}
	ex.tw = util.NewTickWorker("signal-sweep", interval, ex.handle, wg)
	return ex
}

func (ex *signalExecutor) Start() {
	ex.tw.Start()
}

func (ex *signalExecutor) Stop() {
	ex.tw.Stop()
}

func (ex *signalExecutor) handle() {
	signals, err := ex.storage.Signals().PollUnprocessed(ex.batchSize)
	if err != nil {
		logger.Error("error polling unprocessed signals", zap.Error(err))
		return
	}
	for _, signal := range signals {
		if err := ex.engine.ResumeWithSignal(signal); err != nil {
			logger.Error("error delivering signal", zap.String("signal", signal.SignalId), zap.String("execution", signal.ExecutionId), zap.Error(err))
		}
	}
}
