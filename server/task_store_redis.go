package server

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// Redis key layout: one JSON value per task plus set indexes for the full
// task listing and the per-context grouping.
const (
	redisTaskKeyPrefix    = "a2a:task:"
	redisTaskIndexKey     = "a2a:tasks"
	redisContextKeyPrefix = "a2a:context:"
)

// RedisTaskStore implements TaskStore on a Redis instance, suitable when
// several server processes need to observe the same task state.
type RedisTaskStore struct {
	client *redis.Client
	logger *zap.Logger
}

var _ TaskStore = (*RedisTaskStore)(nil)

// NewRedisTaskStore creates a task store on an existing Redis client.
func NewRedisTaskStore(client *redis.Client, logger *zap.Logger) *RedisTaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisTaskStore{
		client: client,
		logger: logger,
	}
}

// ConnectRedisTaskStore parses a Redis URL, verifies connectivity and returns
// a ready store.
func ConnectRedisTaskStore(ctx context.Context, url string, logger *zap.Logger) (*RedisTaskStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, NewInternalError("failed to connect to redis", err)
	}

	return NewRedisTaskStore(client, logger), nil
}

// Close releases the underlying Redis client.
func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

// Save upserts a task and maintains the listing and context indexes.
func (s *RedisTaskStore) Save(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return NewInternalError("failed to serialize task", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisTaskKeyPrefix+task.ID, payload, 0)
	pipe.SAdd(ctx, redisTaskIndexKey, task.ID)
	pipe.SAdd(ctx, redisContextKeyPrefix+task.ContextID, task.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewInternalError("failed to save task", err)
	}

	s.logger.Debug("task saved",
		zap.String("task_id", task.ID),
		zap.String("context_id", task.ContextID),
		zap.String("state", string(task.Status.State)))

	return nil
}

// Get retrieves a task by id; nil when absent.
func (s *RedisTaskStore) Get(ctx context.Context, taskID string) (*types.Task, error) {
	payload, err := s.client.Get(ctx, redisTaskKeyPrefix+taskID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, NewInternalError("failed to get task", err)
	}

	var task types.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, NewInternalError("failed to deserialize task", err)
	}

	return &task, nil
}

// Delete removes a task and its index entries.
func (s *RedisTaskStore) Delete(ctx context.Context, taskID string) error {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisTaskKeyPrefix+taskID)
	pipe.SRem(ctx, redisTaskIndexKey, taskID)
	pipe.SRem(ctx, redisContextKeyPrefix+task.ContextID, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return NewInternalError("failed to delete task", err)
	}

	return nil
}

// List returns all stored tasks.
func (s *RedisTaskStore) List(ctx context.Context) ([]*types.Task, error) {
	return s.tasksFromIndex(ctx, redisTaskIndexKey)
}

// ListByContext returns all tasks that share the given context id.
func (s *RedisTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	return s.tasksFromIndex(ctx, redisContextKeyPrefix+contextID)
}

func (s *RedisTaskStore) tasksFromIndex(ctx context.Context, indexKey string) ([]*types.Task, error) {
	taskIDs, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return nil, NewInternalError("failed to read task index", err)
	}

	tasks := make([]*types.Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := s.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			s.logger.Warn("task missing from store but present in index",
				zap.String("task_id", taskID))
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}
