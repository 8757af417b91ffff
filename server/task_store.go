package server

import (
	"context"
	"fmt"
	"sync"

	types "github.com/agentruntime/a2a/types"
	zap "go.uber.org/zap"
)

// TaskStore persists tasks by id and groups them by context id. Save is a
// full-row upsert; read-modify-write cycles are the task manager's concern.
// Implementations must be safe for concurrent callers.
type TaskStore interface {
	// Save upserts a task by id
	Save(ctx context.Context, task *types.Task) error

	// Get retrieves a task by id, returning nil when the task does not exist
	Get(ctx context.Context, taskID string) (*types.Task, error)

	// Delete removes a task by id
	Delete(ctx context.Context, taskID string) error

	// List returns a stable snapshot of all stored tasks
	List(ctx context.Context) ([]*types.Task, error)

	// ListByContext returns all tasks that share the given context id
	ListByContext(ctx context.Context, contextID string) ([]*types.Task, error)
}

// cloneTask returns a copy whose slices do not share backing arrays with the
// original, so stored tasks are not mutated through returned snapshots.
func cloneTask(task *types.Task) *types.Task {
	clone := *task

	if task.History != nil {
		clone.History = make([]types.Message, len(task.History))
		copy(clone.History, task.History)
	}

	if task.Artifacts != nil {
		clone.Artifacts = make([]types.Artifact, len(task.Artifacts))
		copy(clone.Artifacts, task.Artifacts)
		for i := range clone.Artifacts {
			parts := make([]types.Part, len(task.Artifacts[i].Parts))
			copy(parts, task.Artifacts[i].Parts)
			clone.Artifacts[i].Parts = parts
		}
	}

	return &clone
}

// InMemoryTaskStore implements TaskStore using a map guarded by a
// reader/writer lock. Reads are non-exclusive; Save and Delete are exclusive.
type InMemoryTaskStore struct {
	logger         *zap.Logger
	tasks          map[string]*types.Task
	tasksByContext map[string][]string
	mu             sync.RWMutex
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates a new in-memory task store.
func NewInMemoryTaskStore(logger *zap.Logger) *InMemoryTaskStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InMemoryTaskStore{
		logger:         logger,
		tasks:          make(map[string]*types.Task),
		tasksByContext: make(map[string][]string),
	}
}

// Save upserts a task by id and maintains the context index.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *types.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.tasks[task.ID]
	s.tasks[task.ID] = cloneTask(task)

	if !existed {
		s.tasksByContext[task.ContextID] = append(s.tasksByContext[task.ContextID], task.ID)
	}

	s.logger.Debug("task saved",
		zap.String("task_id", task.ID),
		zap.String("context_id", task.ContextID),
		zap.String("state", string(task.Status.State)))

	return nil
}

// Get retrieves a task by id; nil when absent.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, nil
	}

	return cloneTask(task), nil
}

// Delete removes a task by id and cleans up the context index.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil
	}

	delete(s.tasks, taskID)

	contextTasks := s.tasksByContext[task.ContextID]
	for i, existingID := range contextTasks {
		if existingID == taskID {
			s.tasksByContext[task.ContextID] = append(contextTasks[:i], contextTasks[i+1:]...)
			break
		}
	}
	if len(s.tasksByContext[task.ContextID]) == 0 {
		delete(s.tasksByContext, task.ContextID)
	}

	s.logger.Debug("task deleted",
		zap.String("task_id", taskID),
		zap.String("context_id", task.ContextID))

	return nil
}

// List returns a snapshot of all stored tasks.
func (s *InMemoryTaskStore) List(ctx context.Context) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*types.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, cloneTask(task))
	}

	return tasks, nil
}

// ListByContext returns all tasks for a context id in insertion order.
func (s *InMemoryTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taskIDs, exists := s.tasksByContext[contextID]
	if !exists {
		return []*types.Task{}, nil
	}

	tasks := make([]*types.Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, exists := s.tasks[taskID]
		if !exists {
			s.logger.Warn("task missing from store but present in context index",
				zap.String("task_id", taskID),
				zap.String("context_id", contextID))
			continue
		}
		tasks = append(tasks, cloneTask(task))
	}

	return tasks, nil
}
