package server_test

import (
	"testing"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	server "github.com/agentruntime/a2a/server"
	types "github.com/agentruntime/a2a/types"
)

func TestEventBroadcaster(t *testing.T) {
	t.Run("subscribers receive published events", func(t *testing.T) {
		broadcaster := server.NewEventBroadcaster(zap.NewNop())

		first := broadcaster.Subscribe("task-1")
		second := broadcaster.Subscribe("task-1")
		other := broadcaster.Subscribe("task-2")

		event := types.TaskStatusUpdateEvent{
			Kind:   types.KindStatusUpdate,
			TaskID: "task-1",
			Status: types.TaskStatus{State: types.TaskStateWorking},
		}
		broadcaster.Publish("task-1", event)

		assert.Len(t, first, 1)
		assert.Len(t, second, 1)
		assert.Empty(t, other)

		received := <-first
		update, ok := received.(types.TaskStatusUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, types.TaskStateWorking, update.Status.State)
	})

	t.Run("close task closes every subscriber", func(t *testing.T) {
		broadcaster := server.NewEventBroadcaster(zap.NewNop())
		ch := broadcaster.Subscribe("task-1")

		broadcaster.CloseTask("task-1")

		_, open := <-ch
		assert.False(t, open)
	})

	t.Run("unsubscribe closes only that channel", func(t *testing.T) {
		broadcaster := server.NewEventBroadcaster(zap.NewNop())
		first := broadcaster.Subscribe("task-1")
		second := broadcaster.Subscribe("task-1")

		broadcaster.Unsubscribe("task-1", first)

		_, open := <-first
		assert.False(t, open)

		broadcaster.Publish("task-1", types.TaskStatusUpdateEvent{
			Kind:   types.KindStatusUpdate,
			TaskID: "task-1",
			Status: types.TaskStatus{State: types.TaskStateWorking},
		})
		assert.Len(t, second, 1)
	})

	t.Run("slow subscribers drop instead of blocking", func(t *testing.T) {
		broadcaster := server.NewEventBroadcaster(zap.NewNop())
		ch := broadcaster.Subscribe("task-1")

		for i := 0; i < 32; i++ {
			broadcaster.Publish("task-1", types.TaskStatusUpdateEvent{
				Kind:   types.KindStatusUpdate,
				TaskID: "task-1",
				Status: types.TaskStatus{State: types.TaskStateWorking},
			})
		}

		assert.Len(t, ch, 16)
	})
}
