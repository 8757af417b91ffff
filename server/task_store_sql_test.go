package server

import (
	"context"
	"path/filepath"
	"testing"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

func sptr(s string) *string { return &s }

func openTestTaskStore(t *testing.T) *SQLTaskStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tasks.db")
	store, err := ConnectSQLTaskStore(context.Background(), dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSQLTaskStore_RoundTrip(t *testing.T) {
	store := openTestTaskStore(t)
	ctx := context.Background()

	task := &types.Task{
		ID:        "task-1",
		ContextID: "ctx-1",
		Kind:      types.KindTask,
		Status:    types.TaskStatus{State: types.TaskStateWorking},
		History:   []types.Message{*types.NewUserTextMessage("hello")},
		Artifacts: []types.Artifact{{
			ArtifactID: "art-1",
			Parts:      []types.Part{{Kind: types.PartKindText, Text: sptr("chunk")}},
		}},
		Metadata: map[string]any{"origin": "test"},
	}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.TaskStateWorking, got.Status.State)
	require.Len(t, got.History, 1)
	assert.Equal(t, "hello", got.History[0].TextContent())
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, "art-1", got.Artifacts[0].ArtifactID)
	assert.Equal(t, "test", got.Metadata["origin"])

	t.Run("missing task returns nil", func(t *testing.T) {
		got, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSQLTaskStore_Upsert(t *testing.T) {
	store := openTestTaskStore(t)
	ctx := context.Background()

	task := &types.Task{
		ID:        "task-1",
		ContextID: "ctx-1",
		Kind:      types.KindTask,
		Status:    types.TaskStatus{State: types.TaskStateSubmitted},
	}
	require.NoError(t, store.Save(ctx, task))

	task.Status.State = types.TaskStateCompleted
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCompleted, got.Status.State)

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSQLTaskStore_ListByContext(t *testing.T) {
	store := openTestTaskStore(t)
	ctx := context.Background()

	for _, id := range []string{"task-1", "task-2"} {
		require.NoError(t, store.Save(ctx, &types.Task{
			ID:        id,
			ContextID: "ctx-a",
			Kind:      types.KindTask,
			Status:    types.TaskStatus{State: types.TaskStateSubmitted},
		}))
	}
	require.NoError(t, store.Save(ctx, &types.Task{
		ID:        "task-3",
		ContextID: "ctx-b",
		Kind:      types.KindTask,
		Status:    types.TaskStatus{State: types.TaskStateSubmitted},
	}))

	tasks, err := store.ListByContext(ctx, "ctx-a")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = store.ListByContext(ctx, "ctx-z")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSQLTaskStore_Delete(t *testing.T) {
	store := openTestTaskStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &types.Task{
		ID:        "task-1",
		ContextID: "ctx-a",
		Kind:      types.KindTask,
		Status:    types.TaskStatus{State: types.TaskStateSubmitted},
	}))

	require.NoError(t, store.Delete(ctx, "task-1"))

	got, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
