package server

import (
	"context"
	"fmt"

	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// TaskHandler processes a task and returns the updated task. This is where
// the agent's business logic lives: the handler receives the current task
// snapshot plus the triggering message and decides the resulting state,
// history and artifacts.
type TaskHandler interface {
	// HandleTask processes a task and returns the updated task
	HandleTask(ctx context.Context, task *types.Task, message *types.Message) (*types.Task, error)
}

// StreamableTaskHandler is an optional extension for handlers that produce
// incremental events. The returned channel must be closed by the handler once
// the final event has been sent.
type StreamableTaskHandler interface {
	// HandleTaskStreaming processes a task and emits events as work proceeds
	HandleTaskStreaming(ctx context.Context, task *types.Task, message *types.Message) (<-chan types.Event, error)
}

// EchoTaskHandler completes every task by echoing the incoming message text
// back as an agent reply. Useful for wiring tests and as a starting point for
// real handlers.
type EchoTaskHandler struct {
	logger *zap.Logger
}

var _ TaskHandler = (*EchoTaskHandler)(nil)

// NewEchoTaskHandler creates the echo handler.
func NewEchoTaskHandler(logger *zap.Logger) *EchoTaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EchoTaskHandler{logger: logger}
}

// HandleTask replies with the received text and completes the task.
func (h *EchoTaskHandler) HandleTask(ctx context.Context, task *types.Task, message *types.Message) (*types.Task, error) {
	text := ""
	if message != nil {
		text = message.TextContent()
	}

	reply := types.NewAgentTextMessage(task.ID, task.ContextID, fmt.Sprintf("Echo: %s", text))
	task.History = append(task.History, *reply)
	task.Status = types.TaskStatus{
		State:     types.TaskStateCompleted,
		Message:   reply,
		Timestamp: nowTimestamp(),
	}

	h.logger.Debug("echo handler completed task", zap.String("task_id", task.ID))

	return task, nil
}
