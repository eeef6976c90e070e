package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowmill/flowmill/activity"
	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/definition"
	"github.com/flowmill/flowmill/engine"
	"github.com/flowmill/flowmill/executor"
	"github.com/flowmill/flowmill/logger"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/persistence/inmem"
	"github.com/flowmill/flowmill/persistence/redis"
	"github.com/flowmill/flowmill/rest"
	"github.com/flowmill/flowmill/service"
)

// Agent wires storage, registry, engine, scheduler sweeps and the REST
// server, and owns their lifecycle.
type Agent struct {
	Config           config.Config
	storage          persistence.Storage
	registry         *activity.Registry
	definitions      *definition.Service
	engine           *engine.Engine
	executors        []executor.Executor
	executionService *service.WorkflowExecutionService
	httpServer       *rest.Server
	shutdown         bool
	shutdownLock     sync.Mutex
	wg               sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupRegistry,
		a.setupDefinitionService,
		a.setupEngine,
		a.setupExecutors,
		a.setupExecutionService,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		a.storage = redis.NewRedisStorage(redis.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		})
	case config.STORAGE_TYPE_INMEM:
		a.storage = inmem.NewStorage()
	default:
		return fmt.Errorf("unknown storage implementation %s", a.Config.StorageType)
	}
	return nil
}

func (a *Agent) setupRegistry() error {
	a.registry = activity.NewRegistry()
	return nil
}

// Registry exposes the activity registry so node-type plugins can be
// registered before Start.
func (a *Agent) Registry() *activity.Registry {
	return a.registry
}

func (a *Agent) setupDefinitionService() error {
	a.definitions = definition.NewService(a.storage.Definitions(), a.registry)
	return nil
}

func (a *Agent) setupEngine() error {
	a.engine = engine.NewEngine(a.storage, a.definitions, a.registry, engine.Options{
		Backoff: engine.Backoff{
			Base: time.Duration(a.Config.RetryBackoff.BaseSeconds) * time.Second,
			Max:  time.Duration(a.Config.RetryBackoff.MaxSeconds) * time.Second,
		},
		StepCeiling:   a.Config.StepCeiling,
		PoolSize:      a.Config.RunnerPoolSize,
		QueueCapacity: a.Config.RunnerCapacity,
	}, &a.wg)
	return nil
}

func (a *Agent) setupExecutors() error {
	interval := time.Duration(a.Config.SweepIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	batchSize := a.Config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	a.executors = []executor.Executor{
		executor.NewDispatchExecutor(a.storage, a.engine, interval, batchSize, &a.wg),
		executor.NewCronExecutor(a.storage, a.definitions, interval, &a.wg),
		executor.NewRetryExecutor(a.storage, a.engine, interval, &a.wg),
		executor.NewSignalExecutor(a.storage, a.engine, interval, batchSize, &a.wg),
		executor.NewTimeoutExecutor(a.storage, a.engine, interval, &a.wg),
	}
	return nil
}

func (a *Agent) setupExecutionService() error {
	a.executionService = service.NewWorkflowExecutionService(a.storage, a.definitions, a.engine)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.definitions, a.executionService)
	return err
}

func (a *Agent) Start() error {
	a.engine.Start()
	for _, ex := range a.executors {
		ex.Start()
	}
	go func() {
		err := a.httpServer.Start()
		if err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	for _, ex := range a.executors {
		ex.Stop()
	}
	a.engine.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
