package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventfuse/eventfuse/config"
	"github.com/eventfuse/eventfuse/internal/models"
)

const (
	taskKeyPrefix = "eventfuse:queue:"
	dlqKeyPrefix  = "eventfuse:dlq:"
)

// NewRedisClient builds a redis client from config, or nil when unset.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisTaskQueue implements TaskQueue on redis lists.
type RedisTaskQueue struct {
	client *redis.Client
}

// NewRedisTaskQueue creates a redis-backed task queue
func NewRedisTaskQueue(client *redis.Client) *RedisTaskQueue {
	return &RedisTaskQueue{client: client}
}

// Enqueue pushes a task onto the named queue
func (q *RedisTaskQueue) Enqueue(ctx context.Context, queue string, task models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.client.LPush(ctx, taskKeyPrefix+queue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue pops the oldest task from the named queue
func (q *RedisTaskQueue) Dequeue(ctx context.Context, queue string) (*models.Task, error) {
	payload, err := q.client.RPop(ctx, taskKeyPrefix+queue).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}

	var task models.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Depth returns the number of queued tasks
func (q *RedisTaskQueue) Depth(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, taskKeyPrefix+queue).Result()
}

// RedisDLQ implements DLQ on redis lists.
type RedisDLQ struct {
	client *redis.Client
}

// NewRedisDLQ creates a redis-backed dead letter queue
func NewRedisDLQ(client *redis.Client) *RedisDLQ {
	return &RedisDLQ{client: client}
}

// Push appends a message to a DLQ topic
func (q *RedisDLQ) Push(ctx context.Context, topic string, msg models.DLQMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}
	if err := q.client.LPush(ctx, dlqKeyPrefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("push dlq message: %w", err)
	}
	return nil
}

// Pop removes and returns the oldest message from a DLQ topic
func (q *RedisDLQ) Pop(ctx context.Context, topic string) (*models.DLQMessage, error) {
	payload, err := q.client.RPop(ctx, dlqKeyPrefix+topic).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop dlq message: %w", err)
	}

	var msg models.DLQMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal dlq message: %w", err)
	}
	return &msg, nil
}

// Depth returns the number of dead-lettered messages on a topic
func (q *RedisDLQ) Depth(ctx context.Context, topic string) (int64, error) {
	return q.client.LLen(ctx, dlqKeyPrefix+topic).Result()
}
