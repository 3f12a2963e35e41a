package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"nft/seller/internal/config"
	"nft/seller/internal/domain/task"
)

// Queue publishes tasks to Redis streams, one stream per task type.
type Queue interface {
	AddTask(ctx context.Context, task task.Task) (string, error) // Returns message ID
	ReadTasks(ctx context.Context, taskType string, count int64) ([]redis.XMessage, error)
}

type RedisQueue struct {
	redisClient  *redis.Client
	streamPrefix string
	maxLen       int64
}

func NewRedisQueue(redisClient *redis.Client, cfg config.RedisConfig) Queue {
	return &RedisQueue{
		redisClient:  redisClient,
		streamPrefix: cfg.StreamPrefix,
		maxLen:       cfg.StreamMaxLen,
	}
}

func (q *RedisQueue) AddTask(ctx context.Context, task task.Task) (string, error) {
	// Get task type to determine stream name
	taskType := task.TaskType()
	streamName := q.streamPrefix + taskType

	taskValue, err := task.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	// Fields: task_type, task_data
	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		MaxLen: q.maxLen,
		Approx: q.maxLen > 0,
		Values: map[string]interface{}{
			"task_type": taskType,
			"task_data": string(taskValue),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, streamName, messageID)
	return messageID, nil
}

// ReadTasks returns the most recent count messages of a task stream, newest first.
func (q *RedisQueue) ReadTasks(ctx context.Context, taskType string, count int64) ([]redis.XMessage, error) {
	streamName := q.streamPrefix + taskType
	msgs, err := q.redisClient.XRevRangeN(ctx, streamName, "+", "-", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read Redis stream %s: %w", streamName, err)
	}
	return msgs, nil
}
