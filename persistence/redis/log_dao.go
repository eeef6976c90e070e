package redis

import (
	"context"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
)

const EXECUTION_LOG string = "EXECUTION_LOG"

var _ persistence.ExecutionLogStorage = new(redisExecutionLogStorage)

type redisExecutionLogStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.ExecutionLogEntry]
}

func NewRedisExecutionLogStorage(baseDao *baseDao) *redisExecutionLogStorage {
	return &redisExecutionLogStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.ExecutionLogEntry](),
	}
}

func (r *redisExecutionLogStorage) Append(entry model.ExecutionLogEntry) error {
	key := r.getNamespaceKey(EXECUTION_LOG, entry.ExecutionId)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(entry)
	if err != nil {
		return err
	}
	if err := r.redisClient.RPush(ctx, key, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionLogStorage) List(executionId string) ([]model.ExecutionLogEntry, error) {
	key := r.getNamespaceKey(EXECUTION_LOG, executionId)
	ctx := context.Background()
	values, err := r.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var entries []model.ExecutionLogEntry
	for _, v := range values {
		entry, err := r.encoderDecoder.Decode([]byte(v))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}
