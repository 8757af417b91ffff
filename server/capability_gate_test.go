package server_test

import (
	"context"
	"testing"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/agentruntime/a2a/server"
	types "github.com/agentruntime/a2a/types"
)

func newGatedHandler(t *testing.T, capabilities types.AgentCapabilities, extendedCard bool) (*server.CapabilityGate, server.TaskManager) {
	t.Helper()

	store := server.NewInMemoryTaskStore(zap.NewNop())
	manager := server.NewDefaultTaskManager(store, zap.NewNop())

	pushStore := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
	sender := server.NewHTTPPushNotificationSender(pushStore, zap.NewNop())

	opts := []server.RequestHandlerOption{server.WithPushNotifications(pushStore, sender)}
	if extendedCard {
		opts = append(opts, server.WithExtendedAgentCard(&types.AgentCard{Name: "extended"}))
	}

	handler := server.NewDefaultRequestHandler(manager, server.NewEchoTaskHandler(zap.NewNop()), zap.NewNop(), opts...)

	card := types.AgentCard{
		Name:         "test-agent",
		Version:      "1.0.0",
		Capabilities: capabilities,
	}
	if extendedCard {
		card.SupportsAuthenticatedExtendedCard = boolPtr(true)
	}

	return server.NewCapabilityGate(handler, card), manager
}

func TestCapabilityGate_Streaming(t *testing.T) {
	ctx := context.Background()

	t.Run("stream rejected when streaming is off", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, false)

		_, err := gate.OnMessageStream(ctx, sendParams("hello"))
		require.Error(t, err)
		assert.Equal(t, server.ErrUnsupportedOperation, server.ErrorCode(err))
		assert.Contains(t, err.Error(), "Streaming is not supported by the agent")
	})

	t.Run("resubscribe rejected when streaming is off", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, false)

		_, err := gate.OnResubscribe(ctx, types.TaskIdParams{ID: "task-1"})
		require.Error(t, err)
		assert.Equal(t, server.ErrUnsupportedOperation, server.ErrorCode(err))
		assert.Contains(t, err.Error(), "Streaming is not supported by the agent")
	})

	t.Run("stream allowed when streaming is on", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{Streaming: boolPtr(true)}, false)

		events, err := gate.OnMessageStream(ctx, sendParams("hello"))
		require.NoError(t, err)
		for range events {
		}
	})

	t.Run("plain send is never gated", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, false)

		event, err := gate.OnMessageSend(ctx, sendParams("hello"))
		require.NoError(t, err)
		task := event.(*types.Task)
		assert.Equal(t, types.TaskStateCompleted, task.Status.State)
	})
}

func TestCapabilityGate_PushNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("set rejected when push notifications are off", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, false)

		_, err := gate.OnSetTaskPushNotificationConfig(ctx, types.TaskPushNotificationConfig{TaskID: "task-1"})
		require.Error(t, err)
		assert.Equal(t, server.ErrPushNotificationNotSupported, server.ErrorCode(err))
	})

	t.Run("reads pass through even when the capability is off", func(t *testing.T) {
		gate, manager := newGatedHandler(t, types.AgentCapabilities{}, false)

		_, err := manager.CreateTask(ctx, "task-1", "ctx-1", nil)
		require.NoError(t, err)

		configs, err := gate.OnListTaskPushNotificationConfig(ctx, types.TaskIdParams{ID: "task-1"})
		require.NoError(t, err)
		assert.Empty(t, configs)
	})

	t.Run("set allowed when push notifications are on", func(t *testing.T) {
		gate, manager := newGatedHandler(t, types.AgentCapabilities{PushNotifications: boolPtr(true)}, false)

		_, err := manager.CreateTask(ctx, "task-1", "ctx-1", nil)
		require.NoError(t, err)

		_, err = gate.OnSetTaskPushNotificationConfig(ctx, types.TaskPushNotificationConfig{
			TaskID:                 "task-1",
			PushNotificationConfig: types.PushNotificationConfig{URL: "https://example.com/hook"},
		})
		require.NoError(t, err)
	})
}

func TestCapabilityGate_ExtendedCard(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected when the card does not declare it", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, false)

		_, err := gate.OnGetAuthenticatedExtendedCard(ctx)
		require.Error(t, err)
		assert.Equal(t, server.ErrAuthenticatedExtendedCardNotSupported, server.ErrorCode(err))
	})

	t.Run("returned when declared", func(t *testing.T) {
		gate, _ := newGatedHandler(t, types.AgentCapabilities{}, true)

		card, err := gate.OnGetAuthenticatedExtendedCard(ctx)
		require.NoError(t, err)
		assert.Equal(t, "extended", card.Name)
	})
}
