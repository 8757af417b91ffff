package types

import (
	"encoding/json"
	"fmt"
)

// UnmarshalEvent decodes a streaming payload into its concrete event type,
// selected by the kind discriminator.
func UnmarshalEvent(data []byte) (Event, error) {
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to read event kind: %w", err)
	}

	switch tag.Kind {
	case KindTask:
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, err
		}
		return task, nil
	case KindMessage:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, err
		}
		return message, nil
	case KindStatusUpdate:
		var event TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}
		return event, nil
	case KindArtifactUpdate:
		var event TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}
		return event, nil
	default:
		return nil, fmt.Errorf("unsupported event kind: %q", tag.Kind)
	}
}
