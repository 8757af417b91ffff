package types_test

import (
	"encoding/json"
	"testing"

	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"

	types "github.com/agentruntime/a2a/types"
)

func TestTaskState_IsTerminal(t *testing.T) {
	terminal := []types.TaskState{
		types.TaskStateCompleted,
		types.TaskStateCanceled,
		types.TaskStateFailed,
		types.TaskStateRejected,
	}
	for _, state := range terminal {
		assert.True(t, state.IsTerminal(), "state %s should be terminal", state)
	}

	active := []types.TaskState{
		types.TaskStateSubmitted,
		types.TaskStateWorking,
		types.TaskStateInputRequired,
		types.TaskStateAuthRequired,
		types.TaskStateUnknown,
	}
	for _, state := range active {
		assert.False(t, state.IsTerminal(), "state %s should not be terminal", state)
	}
}

func TestPart_Unmarshal(t *testing.T) {
	t.Run("text part", func(t *testing.T) {
		var part types.Part
		err := json.Unmarshal([]byte(`{"kind":"text","text":"hello"}`), &part)
		require.NoError(t, err)
		assert.Equal(t, types.PartKindText, part.Kind)
		require.NotNil(t, part.Text)
		assert.Equal(t, "hello", *part.Text)
	})

	t.Run("file part with uri", func(t *testing.T) {
		var part types.Part
		err := json.Unmarshal([]byte(`{"kind":"file","file":{"uri":"https://example.com/f.bin","mimeType":"application/octet-stream"}}`), &part)
		require.NoError(t, err)
		assert.Equal(t, types.PartKindFile, part.Kind)
		require.NotNil(t, part.File)
		assert.Equal(t, "https://example.com/f.bin", *part.File.URI)
	})

	t.Run("data part", func(t *testing.T) {
		var part types.Part
		err := json.Unmarshal([]byte(`{"kind":"data","data":{"answer":42}}`), &part)
		require.NoError(t, err)
		assert.Equal(t, types.PartKindData, part.Kind)
		assert.Equal(t, float64(42), part.Data["answer"])
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		var part types.Part
		err := json.Unmarshal([]byte(`{"kind":"video","text":"x"}`), &part)
		assert.Error(t, err)
	})

	t.Run("text part without text rejected", func(t *testing.T) {
		var part types.Part
		err := json.Unmarshal([]byte(`{"kind":"text"}`), &part)
		assert.Error(t, err)
	})
}

func TestUnmarshalEvent(t *testing.T) {
	t.Run("task snapshot", func(t *testing.T) {
		raw := []byte(`{"kind":"task","id":"t-1","contextId":"c-1","status":{"state":"working"}}`)
		event, err := types.UnmarshalEvent(raw)
		require.NoError(t, err)
		task, ok := event.(types.Task)
		require.True(t, ok)
		assert.Equal(t, "t-1", task.ID)
		assert.Equal(t, types.TaskStateWorking, task.Status.State)
	})

	t.Run("status update", func(t *testing.T) {
		raw := []byte(`{"kind":"status-update","taskId":"t-1","contextId":"c-1","status":{"state":"completed"},"final":true}`)
		event, err := types.UnmarshalEvent(raw)
		require.NoError(t, err)
		update, ok := event.(types.TaskStatusUpdateEvent)
		require.True(t, ok)
		assert.True(t, update.Final)
		assert.Equal(t, types.TaskStateCompleted, update.Status.State)
	})

	t.Run("artifact update", func(t *testing.T) {
		raw := []byte(`{"kind":"artifact-update","taskId":"t-1","contextId":"c-1","artifact":{"artifactId":"a-1","parts":[{"kind":"text","text":"chunk"}]}}`)
		event, err := types.UnmarshalEvent(raw)
		require.NoError(t, err)
		update, ok := event.(types.TaskArtifactUpdateEvent)
		require.True(t, ok)
		assert.Equal(t, "a-1", update.Artifact.ArtifactID)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := types.UnmarshalEvent([]byte(`{"kind":"mystery"}`))
		assert.Error(t, err)
	})
}

func TestSecurityScheme_TypeTag(t *testing.T) {
	t.Run("unmarshal selects member by type", func(t *testing.T) {
		var scheme types.SecurityScheme
		err := json.Unmarshal([]byte(`{"type":"apiKey","name":"X-API-Key","in":"header"}`), &scheme)
		require.NoError(t, err)
		assert.Equal(t, types.SecuritySchemeTypeAPIKey, scheme.Type())
		require.NotNil(t, scheme.APIKey)
		assert.Equal(t, "X-API-Key", scheme.APIKey.Name)
	})

	t.Run("marshal injects type tag", func(t *testing.T) {
		scheme := types.SecurityScheme{
			HTTP: &types.HTTPAuthSecurityScheme{Scheme: "bearer"},
		}
		raw, err := json.Marshal(scheme)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		assert.Equal(t, "http", fields["type"])
		assert.Equal(t, "bearer", fields["scheme"])
	})

	t.Run("unsupported type rejected", func(t *testing.T) {
		var scheme types.SecurityScheme
		err := json.Unmarshal([]byte(`{"type":"saml"}`), &scheme)
		assert.Error(t, err)
	})
}

func TestNewAgentTextMessage(t *testing.T) {
	msg := types.NewAgentTextMessage("t-1", "c-1", "done")

	assert.Equal(t, types.KindMessage, msg.Kind)
	assert.Equal(t, types.RoleAgent, msg.Role)
	assert.NotEmpty(t, msg.MessageID)
	require.NotNil(t, msg.TaskID)
	assert.Equal(t, "t-1", *msg.TaskID)
	assert.Equal(t, "done", msg.TextContent())
}
