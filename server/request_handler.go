package server

import (
	"context"

	uuid "github.com/google/uuid"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// RequestHandler is the transport-independent surface of the protocol: one
// method per A2A operation. Transport adapters translate the wire envelope to
// these calls and map returned errors onto the JSON-RPC error model.
type RequestHandler interface {
	// OnMessageSend handles message/send and returns the final task or an
	// immediate agent message
	OnMessageSend(ctx context.Context, params types.MessageSendParams) (types.Event, error)

	// OnMessageStream handles message/stream and returns the event stream
	OnMessageStream(ctx context.Context, params types.MessageSendParams) (<-chan types.Event, error)

	// OnGetTask handles tasks/get
	OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error)

	// OnCancelTask handles tasks/cancel
	OnCancelTask(ctx context.Context, params types.TaskIdParams) (*types.Task, error)

	// OnResubscribe handles tasks/resubscribe and returns the live event
	// stream of an ongoing task
	OnResubscribe(ctx context.Context, params types.TaskIdParams) (<-chan types.Event, error)

	// OnSetTaskPushNotificationConfig handles tasks/pushNotificationConfig/set
	OnSetTaskPushNotificationConfig(ctx context.Context, params types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error)

	// OnGetTaskPushNotificationConfig handles tasks/pushNotificationConfig/get
	OnGetTaskPushNotificationConfig(ctx context.Context, params types.GetTaskPushNotificationConfigParams) (*types.TaskPushNotificationConfig, error)

	// OnListTaskPushNotificationConfig handles tasks/pushNotificationConfig/list
	OnListTaskPushNotificationConfig(ctx context.Context, params types.TaskIdParams) ([]types.TaskPushNotificationConfig, error)

	// OnDeleteTaskPushNotificationConfig handles tasks/pushNotificationConfig/delete
	OnDeleteTaskPushNotificationConfig(ctx context.Context, params types.DeleteTaskPushNotificationConfigParams) error

	// OnGetAuthenticatedExtendedCard handles agent/authenticatedExtendedCard
	OnGetAuthenticatedExtendedCard(ctx context.Context) (*types.AgentCard, error)
}

// DefaultRequestHandler implements RequestHandler on top of the task manager,
// the agent's TaskHandler and the optional push notification components. When
// the push store or sender is absent the push config operations report
// PushNotificationNotSupported and transitions are delivered to no one.
type DefaultRequestHandler struct {
	logger          *zap.Logger
	taskManager     TaskManager
	taskHandler     TaskHandler
	pushStore       PushNotificationConfigStore
	pushSender      PushNotificationSender
	broadcaster     *EventBroadcaster
	extendedCard    *types.AgentCard
	artifactStorage ArtifactStorage
}

var _ RequestHandler = (*DefaultRequestHandler)(nil)

// RequestHandlerOption customizes a DefaultRequestHandler.
type RequestHandlerOption func(*DefaultRequestHandler)

// WithPushNotifications wires the push config store and webhook sender.
func WithPushNotifications(store PushNotificationConfigStore, sender PushNotificationSender) RequestHandlerOption {
	return func(h *DefaultRequestHandler) {
		h.pushStore = store
		h.pushSender = sender
	}
}

// WithExtendedAgentCard sets the card returned by
// agent/authenticatedExtendedCard.
func WithExtendedAgentCard(card *types.AgentCard) RequestHandlerOption {
	return func(h *DefaultRequestHandler) {
		h.extendedCard = card
	}
}

// WithArtifactStorage offloads inline file bytes in produced artifacts to the
// given storage before tasks are persisted.
func WithArtifactStorage(storage ArtifactStorage) RequestHandlerOption {
	return func(h *DefaultRequestHandler) {
		h.artifactStorage = storage
	}
}

// NewDefaultRequestHandler creates a request handler.
func NewDefaultRequestHandler(taskManager TaskManager, taskHandler TaskHandler, logger *zap.Logger, opts ...RequestHandlerOption) *DefaultRequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &DefaultRequestHandler{
		logger:      logger,
		taskManager: taskManager,
		taskHandler: taskHandler,
		broadcaster: NewEventBroadcaster(logger),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// trimHistory applies the client-requested history length to a task copy.
// Zero keeps no history; nil keeps everything.
func trimHistory(task *types.Task, historyLength *int) *types.Task {
	if historyLength == nil {
		return task
	}

	trimmed := *task
	n := *historyLength
	switch {
	case n <= 0:
		trimmed.History = nil
	case n < len(task.History):
		trimmed.History = task.History[len(task.History)-n:]
	}

	return &trimmed
}

// resolveTask loads the addressed task for an incoming message, or creates a
// new one when the message opens a fresh interaction.
func (h *DefaultRequestHandler) resolveTask(ctx context.Context, params types.MessageSendParams) (*types.Task, error) {
	message := params.Message

	if message.TaskID != nil {
		task, err := h.taskManager.GetTask(ctx, *message.TaskID)
		if err != nil {
			return nil, err
		}
		if task.Status.State.IsTerminal() {
			return nil, NewTaskNotCancelableError(task.ID, task.Status.State)
		}
		updated, err := h.taskManager.AddMessage(ctx, task.ID, message)
		if err != nil {
			return nil, err
		}
		h.storeSendConfig(ctx, updated.ID, params)
		return updated, nil
	}

	taskID := uuid.New().String()
	contextID := ""
	if message.ContextID != nil {
		contextID = *message.ContextID
	}

	task, err := h.taskManager.CreateTask(ctx, taskID, contextID, &message)
	if err != nil {
		return nil, err
	}
	h.storeSendConfig(ctx, task.ID, params)

	return task, nil
}

// storeSendConfig persists a push config supplied inline on a send request.
// Follow-up sends to an existing task register the config the same way a
// fresh send does. Failures are logged; the send itself already succeeded.
func (h *DefaultRequestHandler) storeSendConfig(ctx context.Context, taskID string, params types.MessageSendParams) {
	if params.Configuration == nil || params.Configuration.PushNotificationConfig == nil || h.pushStore == nil {
		return
	}

	if err := h.pushStore.Set(ctx, taskID, *params.Configuration.PushNotificationConfig); err != nil {
		h.logger.Warn("failed to store push config from send configuration",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// notifyPush delivers the task snapshot to registered webhooks. Failures are
// logged and never propagate to the caller.
func (h *DefaultRequestHandler) notifyPush(task *types.Task) {
	if h.pushSender == nil || task == nil {
		return
	}

	snapshot := *task
	go func() {
		if err := h.pushSender.SendNotification(context.Background(), &snapshot); err != nil {
			h.logger.Warn("push notification dispatch failed",
				zap.String("task_id", snapshot.ID),
				zap.Error(err))
		}
	}()
}

// offloadArtifacts rewrites inline file bytes in the task's artifacts to URI
// references. Failures leave the artifact inline and are logged.
func (h *DefaultRequestHandler) offloadArtifacts(ctx context.Context, task *types.Task) {
	if h.artifactStorage == nil || task == nil {
		return
	}

	for i := range task.Artifacts {
		if err := OffloadFileParts(ctx, h.artifactStorage, &task.Artifacts[i], h.logger); err != nil {
			h.logger.Warn("failed to offload artifact payload",
				zap.String("task_id", task.ID),
				zap.String("artifact_id", task.Artifacts[i].ArtifactID),
				zap.Error(err))
		}
	}
}

// OnMessageSend processes a message synchronously and returns the final task.
// A single push dispatch fires for the resulting status.
func (h *DefaultRequestHandler) OnMessageSend(ctx context.Context, params types.MessageSendParams) (types.Event, error) {
	if len(params.Message.Parts) == 0 {
		return nil, NewInvalidParamsError("message must contain at least one part")
	}

	task, err := h.resolveTask(ctx, params)
	if err != nil {
		return nil, err
	}

	working, err := h.taskManager.UpdateStatus(ctx, task.ID, types.TaskStatus{State: types.TaskStateWorking})
	if err != nil {
		return nil, err
	}

	updated, err := h.taskHandler.HandleTask(ctx, working, &params.Message)
	if err != nil {
		failed, failErr := h.taskManager.UpdateStatus(ctx, task.ID, types.TaskStatus{
			State:   types.TaskStateFailed,
			Message: failureMessage(task, err),
		})
		if failErr != nil {
			h.logger.Error("failed to record task failure",
				zap.String("task_id", task.ID),
				zap.Error(failErr))
			return nil, NewInternalError("task handler failed", err)
		}
		h.notifyPush(failed)
		return failed, nil
	}
	if updated == nil {
		return nil, NewInvalidAgentResponseError("task handler returned no task")
	}
	h.offloadArtifacts(ctx, updated)

	final, err := h.taskManager.ApplyEvent(ctx, updated)
	if err != nil {
		return nil, err
	}
	h.notifyPush(final)

	var historyLength *int
	if params.Configuration != nil {
		historyLength = params.Configuration.HistoryLength
	}

	return trimHistory(final, historyLength), nil
}

func failureMessage(task *types.Task, err error) *types.Message {
	return types.NewAgentTextMessage(task.ID, task.ContextID, err.Error())
}

// OnMessageStream processes a message and streams lifecycle events. The
// returned channel yields the initial task snapshot, a working transition,
// any handler events, and a final status update, then closes.
func (h *DefaultRequestHandler) OnMessageStream(ctx context.Context, params types.MessageSendParams) (<-chan types.Event, error) {
	if len(params.Message.Parts) == 0 {
		return nil, NewInvalidParamsError("message must contain at least one part")
	}

	task, err := h.resolveTask(ctx, params)
	if err != nil {
		return nil, err
	}

	events := make(chan types.Event, subscriberBuffer)
	go h.runStream(ctx, task, params.Message, events)

	return events, nil
}

// emit delivers an event to the direct stream and to any resubscribed
// listeners.
func (h *DefaultRequestHandler) emit(taskID string, events chan<- types.Event, event types.Event) {
	events <- event
	h.broadcaster.Publish(taskID, event)
}

func (h *DefaultRequestHandler) runStream(ctx context.Context, task *types.Task, message types.Message, events chan<- types.Event) {
	defer close(events)
	defer h.broadcaster.CloseTask(task.ID)

	h.emit(task.ID, events, *task)

	working, err := h.taskManager.UpdateStatus(ctx, task.ID, types.TaskStatus{State: types.TaskStateWorking})
	if err != nil {
		h.logger.Error("failed to transition task to working",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return
	}
	h.notifyPush(working)
	h.emit(task.ID, events, types.TaskStatusUpdateEvent{
		Kind:      types.KindStatusUpdate,
		TaskID:    working.ID,
		ContextID: working.ContextID,
		Status:    working.Status,
	})

	if streamable, ok := h.taskHandler.(StreamableTaskHandler); ok {
		h.runStreamingHandler(ctx, streamable, working, message, events)
		return
	}

	updated, err := h.taskHandler.HandleTask(ctx, working, &message)
	if err != nil {
		h.finishStream(ctx, task.ID, events, types.TaskStatus{
			State:   types.TaskStateFailed,
			Message: failureMessage(task, err),
		})
		return
	}
	h.offloadArtifacts(ctx, updated)

	final, err := h.taskManager.ApplyEvent(ctx, updated)
	if err != nil {
		h.logger.Error("failed to persist handler result",
			zap.String("task_id", task.ID),
			zap.Error(err))
		h.finishStream(ctx, task.ID, events, types.TaskStatus{State: types.TaskStateFailed})
		return
	}
	h.notifyPush(final)

	h.emit(task.ID, events, types.TaskStatusUpdateEvent{
		Kind:      types.KindStatusUpdate,
		TaskID:    final.ID,
		ContextID: final.ContextID,
		Status:    final.Status,
		Final:     true,
	})
}

// runStreamingHandler forwards handler-produced events, persisting each one
// before emitting it downstream.
func (h *DefaultRequestHandler) runStreamingHandler(ctx context.Context, handler StreamableTaskHandler, task *types.Task, message types.Message, events chan<- types.Event) {
	handlerEvents, err := handler.HandleTaskStreaming(ctx, task, &message)
	if err != nil {
		h.finishStream(ctx, task.ID, events, types.TaskStatus{
			State:   types.TaskStateFailed,
			Message: failureMessage(task, err),
		})
		return
	}

	for event := range handlerEvents {
		if artifactEvent, ok := event.(types.TaskArtifactUpdateEvent); ok && h.artifactStorage != nil {
			if err := OffloadFileParts(ctx, h.artifactStorage, &artifactEvent.Artifact, h.logger); err != nil {
				h.logger.Warn("failed to offload artifact payload",
					zap.String("task_id", task.ID),
					zap.String("artifact_id", artifactEvent.Artifact.ArtifactID),
					zap.Error(err))
			}
			event = artifactEvent
		}

		updated, err := h.taskManager.ApplyEvent(ctx, event)
		if err != nil {
			h.logger.Error("failed to apply handler event",
				zap.String("task_id", task.ID),
				zap.String("kind", event.EventKind()),
				zap.Error(err))
			continue
		}

		if statusEvent, ok := event.(types.TaskStatusUpdateEvent); ok && updated != nil {
			statusEvent.Status = updated.Status
			h.notifyPush(updated)
			h.emit(task.ID, events, statusEvent)
			continue
		}

		h.emit(task.ID, events, event)
	}
}

// finishStream records a terminal status and emits the final event.
func (h *DefaultRequestHandler) finishStream(ctx context.Context, taskID string, events chan<- types.Event, status types.TaskStatus) {
	final, err := h.taskManager.UpdateStatus(ctx, taskID, status)
	if err != nil {
		h.logger.Error("failed to finalize task",
			zap.String("task_id", taskID),
			zap.Error(err))
		return
	}
	h.notifyPush(final)

	h.emit(taskID, events, types.TaskStatusUpdateEvent{
		Kind:      types.KindStatusUpdate,
		TaskID:    final.ID,
		ContextID: final.ContextID,
		Status:    final.Status,
		Final:     true,
	})
}

// OnGetTask returns the task snapshot, trimmed to the requested history
// length.
func (h *DefaultRequestHandler) OnGetTask(ctx context.Context, params types.TaskQueryParams) (*types.Task, error) {
	task, err := h.taskManager.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	return trimHistory(task, params.HistoryLength), nil
}

// OnCancelTask cancels a non-terminal task and notifies listeners.
func (h *DefaultRequestHandler) OnCancelTask(ctx context.Context, params types.TaskIdParams) (*types.Task, error) {
	task, err := h.taskManager.CancelTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	h.notifyPush(task)

	h.broadcaster.Publish(task.ID, types.TaskStatusUpdateEvent{
		Kind:      types.KindStatusUpdate,
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    task.Status,
		Final:     true,
	})
	h.broadcaster.CloseTask(task.ID)

	return task, nil
}

// OnResubscribe attaches a new listener to an ongoing task's event stream.
// For a task already in a terminal state the stream replays the final
// snapshot and closes.
func (h *DefaultRequestHandler) OnResubscribe(ctx context.Context, params types.TaskIdParams) (<-chan types.Event, error) {
	task, err := h.taskManager.GetTask(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if task.Status.State.IsTerminal() {
		events := make(chan types.Event, 1)
		events <- *task
		close(events)
		return events, nil
	}

	return h.broadcaster.Subscribe(task.ID), nil
}

// OnSetTaskPushNotificationConfig registers a webhook for a task.
func (h *DefaultRequestHandler) OnSetTaskPushNotificationConfig(ctx context.Context, params types.TaskPushNotificationConfig) (*types.TaskPushNotificationConfig, error) {
	if h.pushStore == nil {
		return nil, NewPushNotificationNotSupportedError()
	}

	if _, err := h.taskManager.GetTask(ctx, params.TaskID); err != nil {
		return nil, err
	}

	if err := h.pushStore.Set(ctx, params.TaskID, params.PushNotificationConfig); err != nil {
		return nil, err
	}

	return &params, nil
}

// OnGetTaskPushNotificationConfig returns one webhook config for a task: the
// addressed one when an id is given, otherwise the first registered.
func (h *DefaultRequestHandler) OnGetTaskPushNotificationConfig(ctx context.Context, params types.GetTaskPushNotificationConfigParams) (*types.TaskPushNotificationConfig, error) {
	if h.pushStore == nil {
		return nil, NewPushNotificationNotSupportedError()
	}

	if _, err := h.taskManager.GetTask(ctx, params.ID); err != nil {
		return nil, err
	}

	configs, err := h.pushStore.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	if params.PushNotificationConfigID != nil {
		for _, config := range configs {
			if config.ID != nil && *config.ID == *params.PushNotificationConfigID {
				return &types.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: config}, nil
			}
		}
		return nil, NewInvalidParamsError("push notification config not found: " + *params.PushNotificationConfigID)
	}

	if len(configs) == 0 {
		return nil, NewInvalidParamsError("no push notification config registered for task " + params.ID)
	}

	return &types.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: configs[0]}, nil
}

// OnListTaskPushNotificationConfig returns every webhook config for a task.
func (h *DefaultRequestHandler) OnListTaskPushNotificationConfig(ctx context.Context, params types.TaskIdParams) ([]types.TaskPushNotificationConfig, error) {
	if h.pushStore == nil {
		return nil, NewPushNotificationNotSupportedError()
	}

	if _, err := h.taskManager.GetTask(ctx, params.ID); err != nil {
		return nil, err
	}

	configs, err := h.pushStore.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	result := make([]types.TaskPushNotificationConfig, 0, len(configs))
	for _, config := range configs {
		result = append(result, types.TaskPushNotificationConfig{TaskID: params.ID, PushNotificationConfig: config})
	}

	return result, nil
}

// OnDeleteTaskPushNotificationConfig removes one webhook config from a task.
func (h *DefaultRequestHandler) OnDeleteTaskPushNotificationConfig(ctx context.Context, params types.DeleteTaskPushNotificationConfigParams) error {
	if h.pushStore == nil {
		return NewPushNotificationNotSupportedError()
	}

	if _, err := h.taskManager.GetTask(ctx, params.ID); err != nil {
		return err
	}

	return h.pushStore.Delete(ctx, params.ID, &params.PushNotificationConfigID)
}

// OnGetAuthenticatedExtendedCard returns the extended agent card.
func (h *DefaultRequestHandler) OnGetAuthenticatedExtendedCard(ctx context.Context) (*types.AgentCard, error) {
	if h.extendedCard == nil {
		return nil, NewAuthenticatedExtendedCardNotSupportedError()
	}
	return h.extendedCard, nil
}
