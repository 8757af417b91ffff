package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/agentruntime/a2a/server"
	types "github.com/agentruntime/a2a/types"
)

func intPtr(n int) *int { return &n }

func newEchoRequestHandler(t *testing.T, opts ...server.RequestHandlerOption) *server.DefaultRequestHandler {
	t.Helper()

	store := server.NewInMemoryTaskStore(zap.NewNop())
	manager := server.NewDefaultTaskManager(store, zap.NewNop())
	handler := server.NewEchoTaskHandler(zap.NewNop())

	return server.NewDefaultRequestHandler(manager, handler, zap.NewNop(), opts...)
}

func sendParams(text string) types.MessageSendParams {
	return types.MessageSendParams{Message: *types.NewUserTextMessage(text)}
}

func TestDefaultRequestHandler_OnMessageSend(t *testing.T) {
	handler := newEchoRequestHandler(t)
	ctx := context.Background()

	t.Run("new message creates and completes a task", func(t *testing.T) {
		event, err := handler.OnMessageSend(ctx, sendParams("hello"))
		require.NoError(t, err)

		task, ok := event.(*types.Task)
		require.True(t, ok)
		assert.Equal(t, types.TaskStateCompleted, task.Status.State)
		require.NotNil(t, task.Status.Message)
		assert.Equal(t, "Echo: hello", task.Status.Message.TextContent())
		assert.NotEmpty(t, task.ID)
		assert.NotEmpty(t, task.ContextID)
	})

	t.Run("message without parts is rejected", func(t *testing.T) {
		_, err := handler.OnMessageSend(ctx, types.MessageSendParams{
			Message: types.Message{Kind: types.KindMessage, Role: types.RoleUser},
		})
		require.Error(t, err)
		assert.Equal(t, server.ErrInvalidParams, server.ErrorCode(err))
	})

	t.Run("message addressed to a terminal task is rejected", func(t *testing.T) {
		event, err := handler.OnMessageSend(ctx, sendParams("first"))
		require.NoError(t, err)
		task := event.(*types.Task)

		followUp := sendParams("second")
		followUp.Message.TaskID = &task.ID

		_, err = handler.OnMessageSend(ctx, followUp)
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotCancelable, server.ErrorCode(err))
	})

	t.Run("message addressed to an unknown task is rejected", func(t *testing.T) {
		params := sendParams("hello")
		unknown := "no-such-task"
		params.Message.TaskID = &unknown

		_, err := handler.OnMessageSend(ctx, params)
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotFound, server.ErrorCode(err))
	})

	t.Run("history length trims the returned snapshot", func(t *testing.T) {
		params := sendParams("hello")
		params.Configuration = &types.MessageSendConfiguration{HistoryLength: intPtr(0)}

		event, err := handler.OnMessageSend(ctx, params)
		require.NoError(t, err)
		task := event.(*types.Task)
		assert.Empty(t, task.History)
	})
}

func TestDefaultRequestHandler_OnGetTask(t *testing.T) {
	handler := newEchoRequestHandler(t)
	ctx := context.Background()

	event, err := handler.OnMessageSend(ctx, sendParams("hello"))
	require.NoError(t, err)
	created := event.(*types.Task)

	t.Run("returns the stored snapshot", func(t *testing.T) {
		task, err := handler.OnGetTask(ctx, types.TaskQueryParams{ID: created.ID})
		require.NoError(t, err)
		assert.Equal(t, created.ID, task.ID)
		assert.Equal(t, types.TaskStateCompleted, task.Status.State)
		assert.NotEmpty(t, task.History)
	})

	t.Run("history length keeps the newest messages", func(t *testing.T) {
		task, err := handler.OnGetTask(ctx, types.TaskQueryParams{
			ID:            created.ID,
			HistoryLength: intPtr(1),
		})
		require.NoError(t, err)
		assert.Len(t, task.History, 1)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := handler.OnGetTask(ctx, types.TaskQueryParams{ID: "missing"})
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotFound, server.ErrorCode(err))
	})
}

func TestDefaultRequestHandler_OnCancelTask(t *testing.T) {
	store := server.NewInMemoryTaskStore(zap.NewNop())
	manager := server.NewDefaultTaskManager(store, zap.NewNop())
	handler := server.NewDefaultRequestHandler(manager, server.NewEchoTaskHandler(zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	task, err := manager.CreateTask(ctx, "task-1", "ctx-1", types.NewUserTextMessage("hi"))
	require.NoError(t, err)

	canceled, err := handler.OnCancelTask(ctx, types.TaskIdParams{ID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCanceled, canceled.Status.State)

	t.Run("canceling a terminal task fails", func(t *testing.T) {
		_, err := handler.OnCancelTask(ctx, types.TaskIdParams{ID: task.ID})
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotCancelable, server.ErrorCode(err))
	})
}

func TestDefaultRequestHandler_OnMessageStream(t *testing.T) {
	handler := newEchoRequestHandler(t)
	ctx := context.Background()

	events, err := handler.OnMessageStream(ctx, sendParams("hello"))
	require.NoError(t, err)

	var received []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, open := <-events:
			if !open {
				goto done
			}
			received = append(received, event)
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
done:

	require.GreaterOrEqual(t, len(received), 3)

	task, ok := received[0].(types.Task)
	require.True(t, ok, "first event should be the task snapshot")
	assert.Equal(t, types.TaskStateSubmitted, task.Status.State)

	working, ok := received[1].(types.TaskStatusUpdateEvent)
	require.True(t, ok, "second event should be the working transition")
	assert.Equal(t, types.TaskStateWorking, working.Status.State)
	assert.False(t, working.Final)

	final, ok := received[len(received)-1].(types.TaskStatusUpdateEvent)
	require.True(t, ok, "last event should be the final status")
	assert.True(t, final.Final)
	assert.Equal(t, types.TaskStateCompleted, final.Status.State)
}

func TestDefaultRequestHandler_OnResubscribe(t *testing.T) {
	store := server.NewInMemoryTaskStore(zap.NewNop())
	manager := server.NewDefaultTaskManager(store, zap.NewNop())
	handler := server.NewDefaultRequestHandler(manager, server.NewEchoTaskHandler(zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	t.Run("terminal task replays the final snapshot", func(t *testing.T) {
		_, err := manager.CreateTask(ctx, "task-1", "ctx-1", nil)
		require.NoError(t, err)
		_, err = manager.UpdateStatus(ctx, "task-1", types.TaskStatus{State: types.TaskStateCompleted})
		require.NoError(t, err)

		events, err := handler.OnResubscribe(ctx, types.TaskIdParams{ID: "task-1"})
		require.NoError(t, err)

		event, open := <-events
		require.True(t, open)
		task, ok := event.(types.Task)
		require.True(t, ok)
		assert.Equal(t, types.TaskStateCompleted, task.Status.State)

		_, open = <-events
		assert.False(t, open, "stream should close after the snapshot")
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := handler.OnResubscribe(ctx, types.TaskIdParams{ID: "missing"})
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotFound, server.ErrorCode(err))
	})
}

func TestDefaultRequestHandler_PushNotificationConfigOps(t *testing.T) {
	ctx := context.Background()

	t.Run("operations fail without a configured store", func(t *testing.T) {
		handler := newEchoRequestHandler(t)

		_, err := handler.OnSetTaskPushNotificationConfig(ctx, types.TaskPushNotificationConfig{TaskID: "task-1"})
		assert.Equal(t, server.ErrPushNotificationNotSupported, server.ErrorCode(err))

		_, err = handler.OnGetTaskPushNotificationConfig(ctx, types.GetTaskPushNotificationConfigParams{ID: "task-1"})
		assert.Equal(t, server.ErrPushNotificationNotSupported, server.ErrorCode(err))

		_, err = handler.OnListTaskPushNotificationConfig(ctx, types.TaskIdParams{ID: "task-1"})
		assert.Equal(t, server.ErrPushNotificationNotSupported, server.ErrorCode(err))

		err = handler.OnDeleteTaskPushNotificationConfig(ctx, types.DeleteTaskPushNotificationConfigParams{ID: "task-1", PushNotificationConfigID: "cfg-1"})
		assert.Equal(t, server.ErrPushNotificationNotSupported, server.ErrorCode(err))
	})

	t.Run("set, get, list and delete round-trip", func(t *testing.T) {
		pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
		sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())
		handler := newEchoRequestHandler(t, server.WithPushNotifications(pushStore, sender))

		event, err := handler.OnMessageSend(ctx, sendParams("hello"))
		require.NoError(t, err)
		task := event.(*types.Task)

		set, err := handler.OnSetTaskPushNotificationConfig(ctx, types.TaskPushNotificationConfig{
			TaskID: task.ID,
			PushNotificationConfig: types.PushNotificationConfig{
				ID:  strPtr("cfg-1"),
				URL: "https://example.com/hook",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, task.ID, set.TaskID)

		got, err := handler.OnGetTaskPushNotificationConfig(ctx, types.GetTaskPushNotificationConfigParams{
			ID:                       task.ID,
			PushNotificationConfigID: strPtr("cfg-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/hook", got.PushNotificationConfig.URL)

		list, err := handler.OnListTaskPushNotificationConfig(ctx, types.TaskIdParams{ID: task.ID})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, handler.OnDeleteTaskPushNotificationConfig(ctx, types.DeleteTaskPushNotificationConfigParams{
			ID:                       task.ID,
			PushNotificationConfigID: "cfg-1",
		}))

		list, err = handler.OnListTaskPushNotificationConfig(ctx, types.TaskIdParams{ID: task.ID})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("get with unknown config id", func(t *testing.T) {
		pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
		sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())
		handler := newEchoRequestHandler(t, server.WithPushNotifications(pushStore, sender))

		event, err := handler.OnMessageSend(ctx, sendParams("hello"))
		require.NoError(t, err)
		task := event.(*types.Task)

		_, err = handler.OnGetTaskPushNotificationConfig(ctx, types.GetTaskPushNotificationConfigParams{
			ID:                       task.ID,
			PushNotificationConfigID: strPtr("missing"),
		})
		require.Error(t, err)
		assert.Equal(t, server.ErrInvalidParams, server.ErrorCode(err))
	})

	t.Run("set for an unknown task", func(t *testing.T) {
		pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
		sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())
		handler := newEchoRequestHandler(t, server.WithPushNotifications(pushStore, sender))

		_, err := handler.OnSetTaskPushNotificationConfig(ctx, types.TaskPushNotificationConfig{
			TaskID:                 "missing",
			PushNotificationConfig: types.PushNotificationConfig{URL: "https://example.com"},
		})
		require.Error(t, err)
		assert.Equal(t, server.ErrTaskNotFound, server.ErrorCode(err))
	})
}

func TestDefaultRequestHandler_PushDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("send with an inline config fires one webhook post", func(t *testing.T) {
		webhook, notifications := newWebhookRecorder(http.StatusOK)
		defer webhook.Close()

		pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
		sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())
		handler := newEchoRequestHandler(t, server.WithPushNotifications(pushStore, sender))

		params := sendParams("hello")
		params.Configuration = &types.MessageSendConfiguration{
			PushNotificationConfig: &types.PushNotificationConfig{
				URL:   webhook.URL,
				Token: strPtr("send-token"),
			},
		}

		event, err := handler.OnMessageSend(ctx, params)
		require.NoError(t, err)
		task := event.(*types.Task)

		require.Eventually(t, func() bool {
			return len(notifications()) >= 1
		}, 2*time.Second, 10*time.Millisecond, "webhook should receive the completion push")

		time.Sleep(50 * time.Millisecond)
		received := notifications()
		require.Len(t, received, 1, "a send fires exactly one push")
		assert.Equal(t, "send-token", received[0].token)

		var delivered types.Task
		require.NoError(t, json.Unmarshal(received[0].body, &delivered))
		assert.Equal(t, task.ID, delivered.ID)
		assert.Equal(t, types.TaskStateCompleted, delivered.Status.State)
	})

	t.Run("follow-up send stores an inline config on the existing task", func(t *testing.T) {
		store := server.NewInMemoryTaskStore(zap.NewNop())
		manager := server.NewDefaultTaskManager(store, zap.NewNop())
		pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
		sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())
		handler := server.NewDefaultRequestHandler(manager, server.NewEchoTaskHandler(zap.NewNop()), zap.NewNop(),
			server.WithPushNotifications(pushStore, sender))

		task, err := manager.CreateTask(ctx, "task-1", "ctx-1", types.NewUserTextMessage("first"))
		require.NoError(t, err)
		_, err = manager.UpdateStatus(ctx, task.ID, types.TaskStatus{State: types.TaskStateInputRequired})
		require.NoError(t, err)

		followUp := sendParams("second")
		followUp.Message.TaskID = &task.ID
		followUp.Configuration = &types.MessageSendConfiguration{
			PushNotificationConfig: &types.PushNotificationConfig{
				ID:  strPtr("cfg-follow"),
				URL: "https://example.com/hook",
			},
		}

		_, err = handler.OnMessageSend(ctx, followUp)
		require.NoError(t, err)

		configs, err := pushStore.Get(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, "https://example.com/hook", configs[0].URL)
	})
}

func TestDefaultRequestHandler_OnGetAuthenticatedExtendedCard(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		handler := newEchoRequestHandler(t)
		_, err := handler.OnGetAuthenticatedExtendedCard(ctx)
		require.Error(t, err)
		assert.Equal(t, server.ErrAuthenticatedExtendedCardNotSupported, server.ErrorCode(err))
	})

	t.Run("configured card is returned", func(t *testing.T) {
		card := &types.AgentCard{Name: "extended-agent", Version: "1.0.0"}
		handler := newEchoRequestHandler(t, server.WithExtendedAgentCard(card))

		got, err := handler.OnGetAuthenticatedExtendedCard(ctx)
		require.NoError(t, err)
		assert.Equal(t, "extended-agent", got.Name)
	})
}
