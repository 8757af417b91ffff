package server

import (
	"context"
	"sync"

	types "github.com/agentruntime/a2a/types"
	zap "go.uber.org/zap"
)

// PushNotificationConfigStore persists webhook configurations per task.
//
// Set semantics: when the config carries an id that already exists under the
// task, it replaces that entry in place; otherwise the config is appended.
// This keeps at most one config per (task, config id) pair plus any number of
// anonymous configs.
type PushNotificationConfigStore interface {
	// Set stores or replaces a push notification config for a task
	Set(ctx context.Context, taskID string, config types.PushNotificationConfig) error

	// Get retrieves all push notification configs for a task
	Get(ctx context.Context, taskID string) ([]types.PushNotificationConfig, error)

	// Delete removes one config by id, or every config for the task when
	// configID is nil
	Delete(ctx context.Context, taskID string, configID *string) error
}

// InMemoryPushNotificationConfigStore implements PushNotificationConfigStore
// with a map guarded by a reader/writer lock.
type InMemoryPushNotificationConfigStore struct {
	logger  *zap.Logger
	configs map[string][]types.PushNotificationConfig
	mu      sync.RWMutex
}

var _ PushNotificationConfigStore = (*InMemoryPushNotificationConfigStore)(nil)

// NewInMemoryPushNotificationConfigStore creates a new in-memory push config store.
func NewInMemoryPushNotificationConfigStore(logger *zap.Logger) *InMemoryPushNotificationConfigStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InMemoryPushNotificationConfigStore{
		logger:  logger,
		configs: make(map[string][]types.PushNotificationConfig),
	}
}

// Set stores or replaces a push notification config for a task.
func (s *InMemoryPushNotificationConfigStore) Set(ctx context.Context, taskID string, config types.PushNotificationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskConfigs := s.configs[taskID]

	if config.ID != nil {
		for i, existing := range taskConfigs {
			if existing.ID != nil && *existing.ID == *config.ID {
				taskConfigs[i] = config
				s.logger.Debug("push config replaced",
					zap.String("task_id", taskID),
					zap.String("config_id", *config.ID))
				return nil
			}
		}
	}

	s.configs[taskID] = append(taskConfigs, config)

	s.logger.Debug("push config stored",
		zap.String("task_id", taskID),
		zap.String("url", config.URL))

	return nil
}

// Get retrieves all push notification configs for a task.
func (s *InMemoryPushNotificationConfigStore) Get(ctx context.Context, taskID string) ([]types.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taskConfigs := s.configs[taskID]
	result := make([]types.PushNotificationConfig, len(taskConfigs))
	copy(result, taskConfigs)

	return result, nil
}

// Delete removes one config by id, or every config when configID is nil.
func (s *InMemoryPushNotificationConfigStore) Delete(ctx context.Context, taskID string, configID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if configID == nil {
		delete(s.configs, taskID)
		s.logger.Debug("push configs purged", zap.String("task_id", taskID))
		return nil
	}

	taskConfigs := s.configs[taskID]
	remaining := taskConfigs[:0]
	for _, existing := range taskConfigs {
		if existing.ID != nil && *existing.ID == *configID {
			continue
		}
		remaining = append(remaining, existing)
	}
	s.configs[taskID] = remaining

	s.logger.Debug("push config deleted",
		zap.String("task_id", taskID),
		zap.String("config_id", *configID))

	return nil
}
