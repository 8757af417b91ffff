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

func strPtr(s string) *string { return &s }

func TestInMemoryPushNotificationConfigStore_Set(t *testing.T) {
	store := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
	ctx := context.Background()

	t.Run("config with id replaces in place", func(t *testing.T) {
		first := types.PushNotificationConfig{ID: strPtr("cfg-1"), URL: "https://one.example.com/hook"}
		require.NoError(t, store.Set(ctx, "task-1", first))

		replacement := types.PushNotificationConfig{ID: strPtr("cfg-1"), URL: "https://two.example.com/hook"}
		require.NoError(t, store.Set(ctx, "task-1", replacement))

		configs, err := store.Get(ctx, "task-1")
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, "https://two.example.com/hook", configs[0].URL)
	})

	t.Run("anonymous configs are appended", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "task-2", types.PushNotificationConfig{URL: "https://a.example.com"}))
		require.NoError(t, store.Set(ctx, "task-2", types.PushNotificationConfig{URL: "https://b.example.com"}))

		configs, err := store.Get(ctx, "task-2")
		require.NoError(t, err)
		assert.Len(t, configs, 2)
	})
}

func TestInMemoryPushNotificationConfigStore_Get(t *testing.T) {
	store := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
	ctx := context.Background()

	t.Run("unknown task yields empty slice", func(t *testing.T) {
		configs, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, configs)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "task-1", types.PushNotificationConfig{ID: strPtr("cfg-1"), URL: "https://one.example.com"}))

		configs, err := store.Get(ctx, "task-1")
		require.NoError(t, err)
		configs[0].URL = "https://mutated.example.com"

		fresh, err := store.Get(ctx, "task-1")
		require.NoError(t, err)
		assert.Equal(t, "https://one.example.com", fresh[0].URL)
	})
}

func TestInMemoryPushNotificationConfigStore_Delete(t *testing.T) {
	store := server.NewInMemoryPushNotificationConfigStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "task-1", types.PushNotificationConfig{ID: strPtr("cfg-1"), URL: "https://a.example.com"}))
	require.NoError(t, store.Set(ctx, "task-1", types.PushNotificationConfig{ID: strPtr("cfg-2"), URL: "https://b.example.com"}))

	t.Run("delete by id removes only that config", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "task-1", strPtr("cfg-1")))

		configs, err := store.Get(ctx, "task-1")
		require.NoError(t, err)
		require.Len(t, configs, 1)
		assert.Equal(t, "cfg-2", *configs[0].ID)
	})

	t.Run("nil config id purges everything for the task", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "task-1", nil))

		configs, err := store.Get(ctx, "task-1")
		require.NoError(t, err)
		assert.Empty(t, configs)
	})
}
