package redis

import (
	"github.com/flowmill/flowmill/persistence"
)

var _ persistence.Storage = new(redisStorage)

type redisStorage struct {
	definitions   *redisDefinitionStorage
	executions    *redisExecutionStorage
	signals       *redisSignalStorage
	schedules     *redisScheduleStorage
	executionLogs *redisExecutionLogStorage
}

func NewRedisStorage(conf Config) *redisStorage {
	baseDao := newBaseDao(conf)
	return &redisStorage{
		definitions:   NewRedisDefinitionStorage(baseDao),
		executions:    NewRedisExecutionStorage(baseDao),
		signals:       NewRedisSignalStorage(baseDao),
		schedules:     NewRedisScheduleStorage(baseDao),
		executionLogs: NewRedisExecutionLogStorage(baseDao),
	}
}

func (s *redisStorage) Definitions() persistence.DefinitionStorage {
	return s.definitions
}

func (s *redisStorage) Executions() persistence.ExecutionStorage {
	return s.executions
}

func (s *redisStorage) Signals() persistence.SignalStorage {
	return s.signals
}

func (s *redisStorage) Schedules() persistence.ScheduleStorage {
	return s.schedules
}

func (s *redisStorage) ExecutionLogs() persistence.ExecutionLogStorage {
	return s.executionLogs
}
