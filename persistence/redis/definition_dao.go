package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/flowmill/flowmill/model"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/util"
	rd "github.com/go-redis/redis/v9"
)

const WORKFLOW_DEF string = "WORKFLOW"
const WORKFLOW_DEF_VERSION string = "WORKFLOW_VERSION"

var _ persistence.DefinitionStorage = new(redisDefinitionStorage)

type redisDefinitionStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowDefinition]
}

func NewRedisDefinitionStorage(baseDao *baseDao) *redisDefinitionStorage {
	return &redisDefinitionStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowDefinition](),
	}
}

func (r *redisDefinitionStorage) Save(wf model.WorkflowDefinition) error {
	key := r.getNamespaceKey(WORKFLOW_DEF, wf.WorkflowId)
	versionKey := r.getNamespaceKey(WORKFLOW_DEF_VERSION, wf.WorkflowId)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(wf)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{strconv.Itoa(wf.Version), string(data)}).Err()
		if err != nil {
			return err
		}
		return pipe.Set(ctx, versionKey, wf.Version, 0).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisDefinitionStorage) Get(workflowId string, version int) (*model.WorkflowDefinition, error) {
	key := r.getNamespaceKey(WORKFLOW_DEF, workflowId)
	ctx := context.Background()
	wfStr, err := r.redisClient.HGet(ctx, key, strconv.Itoa(version)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "workflow", Id: workflowId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode([]byte(wfStr))
}

func (r *redisDefinitionStorage) LatestVersion(workflowId string) (int, error) {
	versionKey := r.getNamespaceKey(WORKFLOW_DEF_VERSION, workflowId)
	ctx := context.Background()
	version, err := r.redisClient.Get(ctx, versionKey).Int()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return 0, persistence.NotFoundError{Kind: "workflow", Id: workflowId}
		}
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return version, nil
}

func (r *redisDefinitionStorage) Delete(workflowId string) error {
	key := r.getNamespaceKey(WORKFLOW_DEF, workflowId)
	versionKey := r.getNamespaceKey(WORKFLOW_DEF_VERSION, workflowId)
	ctx := context.Background()
	err := r.redisClient.Del(ctx, key, versionKey).Err()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
