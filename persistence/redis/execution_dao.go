package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
)

const EXECUTION string = "EXECUTION"
const EXECUTION_OWNER string = "EXECUTION_OWNER"
const DISPATCH_QUEUE string = "DISPATCH"
const RETRY_QUEUE string = "RETRY"
const TIMEOUT_QUEUE string = "TIMEOUT"

var _ persistence.ExecutionStorage = new(redisExecutionStorage)

type redisExecutionStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowExecution]
}

func NewRedisExecutionStorage(baseDao *baseDao) *redisExecutionStorage {
	return &redisExecutionStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowExecution](),
	}
}

func (r *redisExecutionStorage) Save(execution *model.WorkflowExecution) error {
	key := r.getNamespaceKey(EXECUTION)
	ownerKey := r.getNamespaceKey(EXECUTION_OWNER, execution.OwnerId)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(*execution)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{execution.ExecutionId, string(data)}).Err()
		if err != nil {
			return err
		}
		return pipe.SAdd(ctx, ownerKey, execution.ExecutionId).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionStorage) Get(executionId string) (*model.WorkflowExecution, error) {
	key := r.getNamespaceKey(EXECUTION)
	ctx := context.Background()
	executionStr, err := r.redisClient.HGet(ctx, key, executionId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "execution", Id: executionId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode([]byte(executionStr))
}

func (r *redisExecutionStorage) ListByOwner(ownerId string) ([]model.WorkflowExecution, error) {
	ownerKey := r.getNamespaceKey(EXECUTION_OWNER, ownerId)
	key := r.getNamespaceKey(EXECUTION)
	ctx := context.Background()
	ids, err := r.redisClient.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var executions []model.WorkflowExecution
	for _, id := range ids {
		executionStr, err := r.redisClient.HGet(ctx, key, id).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				continue
			}
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		execution, err := r.encoderDecoder.Decode([]byte(executionStr))
		if err != nil {
			return nil, err
		}
		executions = append(executions, *execution)
	}
	return executions, nil
}

// SaveAndEnqueue commits the execution record and its dispatch queue
// entry in one transaction; a crash can not persist one without the
// other.
func (r *redisExecutionStorage) SaveAndEnqueue(execution *model.WorkflowExecution) error {
	key := r.getNamespaceKey(EXECUTION)
	ownerKey := r.getNamespaceKey(EXECUTION_OWNER, execution.OwnerId)
	queueKey := r.getNamespaceKey(DISPATCH_QUEUE)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(*execution)
	if err != nil {
		return err
	}
	member := rd.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: execution.ExecutionId,
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{execution.ExecutionId, string(data)}).Err()
		if err != nil {
			return err
		}
		err = pipe.SAdd(ctx, ownerKey, execution.ExecutionId).Err()
		if err != nil {
			return err
		}
		return pipe.ZAdd(ctx, queueKey, member).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionStorage) PollDispatch(batchSize int) ([]model.DispatchRequest, error) {
	queueKey := r.getNamespaceKey(DISPATCH_QUEUE)
	ctx := context.Background()
	values, err := r.redisClient.ZRange(ctx, queueKey, 0, int64(batchSize-1)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.DispatchRequest{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var requests []model.DispatchRequest
	for _, v := range values {
		requests = append(requests, model.DispatchRequest{ExecutionId: v})
	}
	return requests, nil
}

func (r *redisExecutionStorage) AckDispatch(requests []model.DispatchRequest) error {
	if len(requests) == 0 {
		return nil
	}
	queueKey := r.getNamespaceKey(DISPATCH_QUEUE)
	ctx := context.Background()
	var members []any
	for _, req := range requests {
		members = append(members, req.ExecutionId)
	}
	err := r.redisClient.ZRem(ctx, queueKey, members...).Err()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// ScheduleRetry commits the retry_scheduled record and the due-queue
// entry atomically.
func (r *redisExecutionStorage) ScheduleRetry(execution *model.WorkflowExecution, at time.Time) error {
	key := r.getNamespaceKey(EXECUTION)
	queueKey := r.getNamespaceKey(RETRY_QUEUE)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(*execution)
	if err != nil {
		return err
	}
	member := rd.Z{
		Score:  float64(at.UnixMilli()),
		Member: execution.ExecutionId,
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{execution.ExecutionId, string(data)}).Err()
		if err != nil {
			return err
		}
		return pipe.ZAdd(ctx, queueKey, member).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionStorage) PollRetries(now time.Time) ([]model.DispatchRequest, error) {
	return r.popDue(RETRY_QUEUE, now)
}

func (r *redisExecutionStorage) ScheduleSignalTimeout(executionId string, at time.Time) error {
	queueKey := r.getNamespaceKey(TIMEOUT_QUEUE)
	ctx := context.Background()
	member := rd.Z{
		Score:  float64(at.UnixMilli()),
		Member: executionId,
	}
	err := r.redisClient.ZAdd(ctx, queueKey, member).Err()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionStorage) CancelSignalTimeout(executionId string) error {
	queueKey := r.getNamespaceKey(TIMEOUT_QUEUE)
	ctx := context.Background()
	err := r.redisClient.ZRem(ctx, queueKey, executionId).Err()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisExecutionStorage) PollSignalTimeouts(now time.Time) ([]model.DispatchRequest, error) {
	return r.popDue(TIMEOUT_QUEUE, now)
}

func (r *redisExecutionStorage) popDue(queue string, now time.Time) ([]model.DispatchRequest, error) {
	queueKey := r.getNamespaceKey(queue)
	ctx := context.Background()
	max := strconv.FormatInt(now.UnixMilli(), 10)
	pipe := r.redisClient.Pipeline()
	opt := &rd.ZRangeBy{
		Min: "0",
		Max: max,
	}
	zr := pipe.ZRangeByScore(ctx, queueKey, opt)
	pipe.ZRemRangeByScore(ctx, queueKey, "0", max)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	values, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.DispatchRequest{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var requests []model.DispatchRequest
	for _, v := range values {
		requests = append(requests, model.DispatchRequest{ExecutionId: v})
	}
	return requests, nil
}
