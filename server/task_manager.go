package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// TaskManager owns task lifecycle transitions. Every mutation goes through a
// read-modify-write cycle against the TaskStore, serialized by an internal
// lock so concurrent events cannot interleave partial updates.
type TaskManager interface {
	// CreateTask creates a submitted task seeded with the initial message
	CreateTask(ctx context.Context, taskID, contextID string, message *types.Message) (*types.Task, error)

	// GetTask retrieves a task by id, returning TaskNotFound when absent
	GetTask(ctx context.Context, taskID string) (*types.Task, error)

	// ApplyEvent folds a streaming event into the stored task and returns the
	// updated snapshot
	ApplyEvent(ctx context.Context, event types.Event) (*types.Task, error)

	// UpdateStatus transitions a task to a new status
	UpdateStatus(ctx context.Context, taskID string, status types.TaskStatus) (*types.Task, error)

	// AddMessage appends a message to the task history
	AddMessage(ctx context.Context, taskID string, message types.Message) (*types.Task, error)

	// CancelTask transitions a non-terminal task to canceled
	CancelTask(ctx context.Context, taskID string) (*types.Task, error)
}

// DefaultTaskManager implements TaskManager on top of a TaskStore. Mutations
// for the same task id run under a per-task lock so concurrent events cannot
// lose history appends or interleave partial read-modify-write cycles.
type DefaultTaskManager struct {
	store  TaskStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ TaskManager = (*DefaultTaskManager)(nil)

// NewDefaultTaskManager creates a task manager backed by the given store.
func NewDefaultTaskManager(store TaskStore, logger *zap.Logger) *DefaultTaskManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DefaultTaskManager{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// taskLock returns the mutex serializing mutations for a task id.
func (m *DefaultTaskManager) taskLock(taskID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[taskID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[taskID] = lock
	}
	return lock
}

// releaseLock drops the per-task mutex once the task is terminal. A late
// mutation recreates the mutex and is rejected by the terminal-state check.
func (m *DefaultTaskManager) releaseLock(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, taskID)
}

func nowTimestamp() *string {
	ts := time.Now().UTC().Format(time.RFC3339)
	return &ts
}

// stampStatus fills in the current time when the status carries none.
func stampStatus(status types.TaskStatus) types.TaskStatus {
	if status.Timestamp == nil {
		status.Timestamp = nowTimestamp()
	}
	return status
}

// clampTimestamp keeps status timestamps non-decreasing across successive
// updates. A caller-supplied timestamp older than the stored one is replaced
// with the stored timestamp.
func clampTimestamp(prev, next types.TaskStatus) types.TaskStatus {
	if prev.Timestamp == nil || next.Timestamp == nil {
		return next
	}

	prevTime, prevErr := time.Parse(time.RFC3339, *prev.Timestamp)
	nextTime, nextErr := time.Parse(time.RFC3339, *next.Timestamp)
	if prevErr == nil && nextErr == nil && nextTime.Before(prevTime) {
		next.Timestamp = prev.Timestamp
	}
	return next
}

// CreateTask creates a submitted task seeded with the initial message.
func (m *DefaultTaskManager) CreateTask(ctx context.Context, taskID, contextID string, message *types.Message) (*types.Task, error) {
	if taskID == "" {
		taskID = uuid.New().String()
	}
	if contextID == "" {
		contextID = uuid.New().String()
	}

	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task := &types.Task{
		ID:        taskID,
		ContextID: contextID,
		Kind:      types.KindTask,
		Status: types.TaskStatus{
			State:     types.TaskStateSubmitted,
			Timestamp: nowTimestamp(),
		},
	}

	if message != nil {
		msg := *message
		msg.TaskID = &task.ID
		msg.ContextID = &task.ContextID
		task.History = []types.Message{msg}
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}

	m.logger.Debug("task created",
		zap.String("task_id", task.ID),
		zap.String("context_id", task.ContextID))

	return task, nil
}

// GetTask retrieves a task by id, returning TaskNotFound when absent.
func (m *DefaultTaskManager) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// ApplyEvent folds a streaming event into the stored task.
func (m *DefaultTaskManager) ApplyEvent(ctx context.Context, event types.Event) (*types.Task, error) {
	switch e := event.(type) {
	case *types.Task:
		return m.applySnapshot(ctx, e)
	case types.Task:
		return m.applySnapshot(ctx, &e)
	case *types.TaskStatusUpdateEvent:
		return m.applyStatusUpdate(ctx, e)
	case types.TaskStatusUpdateEvent:
		return m.applyStatusUpdate(ctx, &e)
	case *types.TaskArtifactUpdateEvent:
		return m.applyArtifactUpdate(ctx, e)
	case types.TaskArtifactUpdateEvent:
		return m.applyArtifactUpdate(ctx, &e)
	case *types.Message:
		if e.TaskID == nil {
			return nil, fmt.Errorf("message event carries no task id")
		}
		return m.AddMessage(ctx, *e.TaskID, *e)
	case types.Message:
		if e.TaskID == nil {
			return nil, fmt.Errorf("message event carries no task id")
		}
		return m.AddMessage(ctx, *e.TaskID, e)
	default:
		return nil, fmt.Errorf("unsupported event kind %q", event.EventKind())
	}
}

// applySnapshot replaces the stored task with a full snapshot, preserving any
// history the snapshot does not repeat.
func (m *DefaultTaskManager) applySnapshot(ctx context.Context, snapshot *types.Task) (*types.Task, error) {
	lock := m.taskLock(snapshot.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.Get(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status.State.IsTerminal() {
		return nil, NewTaskNotCancelableError(existing.ID, existing.Status.State)
	}

	task := *snapshot
	task.Kind = types.KindTask
	task.Status = stampStatus(task.Status)
	if existing != nil {
		task.Status = clampTimestamp(existing.Status, task.Status)
	}

	if existing != nil && len(task.History) < len(existing.History) {
		task.History = existing.History
	}

	if err := m.store.Save(ctx, &task); err != nil {
		return nil, err
	}

	if task.Status.State.IsTerminal() {
		m.releaseLock(task.ID)
	}

	return &task, nil
}

// UpdateStatus transitions a task to a new status. Terminal tasks reject
// further transitions. The previous status message, when present, is folded
// into the history so it is not lost.
func (m *DefaultTaskManager) UpdateStatus(ctx context.Context, taskID string, status types.TaskStatus) (*types.Task, error) {
	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := m.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status.State.IsTerminal() {
		return nil, NewTaskNotCancelableError(taskID, task.Status.State)
	}

	if task.Status.Message != nil {
		task.History = append(task.History, *task.Status.Message)
	}

	task.Status = clampTimestamp(task.Status, stampStatus(status))

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}

	if task.Status.State.IsTerminal() {
		m.releaseLock(taskID)
	}

	m.logger.Debug("task status updated",
		zap.String("task_id", taskID),
		zap.String("state", string(task.Status.State)))

	return task, nil
}

// applyStatusUpdate validates and applies a status-update event. An event
// flagged final must carry a terminal state.
func (m *DefaultTaskManager) applyStatusUpdate(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	if event.Final && !event.Status.State.IsTerminal() {
		return nil, fmt.Errorf("final status update for task %s carries non-terminal state %q", event.TaskID, event.Status.State)
	}
	return m.UpdateStatus(ctx, event.TaskID, event.Status)
}

// applyArtifactUpdate assembles artifact chunks. A chunk with append set
// extends the parts of the artifact with the same id; otherwise the chunk
// replaces it or starts a new artifact.
func (m *DefaultTaskManager) applyArtifactUpdate(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	lock := m.taskLock(event.TaskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := m.GetTask(ctx, event.TaskID)
	if err != nil {
		return nil, err
	}

	if task.Status.State.IsTerminal() {
		return nil, NewTaskNotCancelableError(task.ID, task.Status.State)
	}

	artifact := event.Artifact
	if event.LastChunk != nil {
		artifact.LastChunk = event.LastChunk
	}

	appendChunk := event.Append != nil && *event.Append

	replaced := false
	for i := range task.Artifacts {
		if task.Artifacts[i].ArtifactID != artifact.ArtifactID {
			continue
		}
		if appendChunk {
			task.Artifacts[i].Parts = append(task.Artifacts[i].Parts, artifact.Parts...)
			if artifact.LastChunk != nil {
				task.Artifacts[i].LastChunk = artifact.LastChunk
			}
		} else {
			task.Artifacts[i] = artifact
		}
		replaced = true
		break
	}
	if !replaced {
		task.Artifacts = append(task.Artifacts, artifact)
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}

	m.logger.Debug("task artifact updated",
		zap.String("task_id", task.ID),
		zap.String("artifact_id", artifact.ArtifactID))

	return task, nil
}

// AddMessage appends a message to the task history.
func (m *DefaultTaskManager) AddMessage(ctx context.Context, taskID string, message types.Message) (*types.Task, error) {
	lock := m.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	task, err := m.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	message.Kind = types.KindMessage
	message.TaskID = &task.ID
	if message.ContextID == nil {
		message.ContextID = &task.ContextID
	}
	task.History = append(task.History, message)

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// CancelTask transitions a non-terminal task to canceled. The terminal-state
// check runs under the task lock inside UpdateStatus.
func (m *DefaultTaskManager) CancelTask(ctx context.Context, taskID string) (*types.Task, error) {
	return m.UpdateStatus(ctx, taskID, types.TaskStatus{
		State: types.TaskStateCanceled,
	})
}
