package redis

import (
	"context"
	"errors"
	"time"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
)

const SIGNAL string = "SIGNAL"
const SIGNAL_UNPROCESSED string = "SIGNAL_UNPROCESSED"

var _ persistence.SignalStorage = new(redisSignalStorage)

type redisSignalStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowSignal]
}

func NewRedisSignalStorage(baseDao *baseDao) *redisSignalStorage {
	return &redisSignalStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowSignal](),
	}
}

func (r *redisSignalStorage) Append(signal model.WorkflowSignal) error {
	key := r.getNamespaceKey(SIGNAL)
	unprocessedKey := r.getNamespaceKey(SIGNAL_UNPROCESSED)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(signal)
	if err != nil {
		return err
	}
	member := rd.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: signal.SignalId,
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{signal.SignalId, string(data)}).Err()
		if err != nil {
			return err
		}
		return pipe.ZAdd(ctx, unprocessedKey, member).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisSignalStorage) PollUnprocessed(batchSize int) ([]model.WorkflowSignal, error) {
	key := r.getNamespaceKey(SIGNAL)
	unprocessedKey := r.getNamespaceKey(SIGNAL_UNPROCESSED)
	ctx := context.Background()
	ids, err := r.redisClient.ZRange(ctx, unprocessedKey, 0, int64(batchSize-1)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.WorkflowSignal{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var signals []model.WorkflowSignal
	for _, id := range ids {
		signalStr, err := r.redisClient.HGet(ctx, key, id).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				continue
			}
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		signal, err := r.encoderDecoder.Decode([]byte(signalStr))
		if err != nil {
			return nil, err
		}
		signals = append(signals, *signal)
	}
	return signals, nil
}

// Consume races on the unprocessed set. ZRem removes a member exactly
// once, so concurrent delivery attempts for the same signal see exactly
// one winner.
func (r *redisSignalStorage) Consume(signalId string) (bool, error) {
	key := r.getNamespaceKey(SIGNAL)
	unprocessedKey := r.getNamespaceKey(SIGNAL_UNPROCESSED)
	ctx := context.Background()
	removed, err := r.redisClient.ZRem(ctx, unprocessedKey, signalId).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	if removed == 0 {
		return false, nil
	}
	signalStr, err := r.redisClient.HGet(ctx, key, signalId).Result()
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	signal, err := r.encoderDecoder.Decode([]byte(signalStr))
	if err != nil {
		return false, err
	}
	signal.Processed = true
	data, err := r.encoderDecoder.Encode(*signal)
	if err != nil {
		return false, err
	}
	if err := r.redisClient.HSet(ctx, key, []string{signalId, string(data)}).Err(); err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return true, nil
}
