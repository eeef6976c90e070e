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

const SCHEDULE string = "SCHEDULE"
const SCHEDULE_DUE string = "SCHEDULE_DUE"

var _ persistence.ScheduleStorage = new(redisScheduleStorage)

type redisScheduleStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.WorkflowSchedule]
}

func NewRedisScheduleStorage(baseDao *baseDao) *redisScheduleStorage {
	return &redisScheduleStorage{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.WorkflowSchedule](),
	}
}

func (r *redisScheduleStorage) Save(schedule model.WorkflowSchedule) error {
	key := r.getNamespaceKey(SCHEDULE)
	dueKey := r.getNamespaceKey(SCHEDULE_DUE)
	ctx := context.Background()
	data, err := r.encoderDecoder.Encode(schedule)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		err := pipe.HSet(ctx, key, []string{schedule.ScheduleId, string(data)}).Err()
		if err != nil {
			return err
		}
		if schedule.Active {
			member := rd.Z{
				Score:  float64(schedule.NextRunAt.UnixMilli()),
				Member: schedule.ScheduleId,
			}
			return pipe.ZAdd(ctx, dueKey, member).Err()
		}
		return pipe.ZRem(ctx, dueKey, schedule.ScheduleId).Err()
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisScheduleStorage) Get(scheduleId string) (*model.WorkflowSchedule, error) {
	key := r.getNamespaceKey(SCHEDULE)
	ctx := context.Background()
	scheduleStr, err := r.redisClient.HGet(ctx, key, scheduleId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "schedule", Id: scheduleId}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.Decode([]byte(scheduleStr))
}

// PollDue reads without removing; the cron sweep advances NextRunAt via
// Save, which rescores the due entry.
func (r *redisScheduleStorage) PollDue(now time.Time) ([]model.WorkflowSchedule, error) {
	dueKey := r.getNamespaceKey(SCHEDULE_DUE)
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	ids, err := r.redisClient.ZRangeByScore(ctx, dueKey, opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.WorkflowSchedule{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var schedules []model.WorkflowSchedule
	for _, id := range ids {
		schedule, err := r.Get(id)
		if err != nil {
			if _, ok := err.(persistence.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, nil
}

func (r *redisScheduleStorage) SetActive(scheduleId string, active bool) error {
	schedule, err := r.Get(scheduleId)
	if err != nil {
		return err
	}
	schedule.Active = active
	return r.Save(*schedule)
}
