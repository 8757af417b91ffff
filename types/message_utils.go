package types

import (
	uuid "github.com/google/uuid"
)

// NewUserMessage creates a user message with a fresh message id.
func NewUserMessage(parts []Part) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.New().String(),
		Role:      RoleUser,
		Parts:     parts,
	}
}

// NewUserTextMessage creates a user message with a single text part.
func NewUserTextMessage(text string) *Message {
	return NewUserMessage([]Part{NewTextPart(text)})
}

// NewAgentMessage creates an agent message with a fresh message id.
func NewAgentMessage(parts []Part) *Message {
	return &Message{
		Kind:      KindMessage,
		MessageID: uuid.New().String(),
		Role:      RoleAgent,
		Parts:     parts,
	}
}

// NewAgentTextMessage creates an agent message with a single text part,
// bound to the given task and context.
func NewAgentTextMessage(taskID, contextID, text string) *Message {
	msg := NewAgentMessage([]Part{NewTextPart(text)})
	msg.TaskID = &taskID
	msg.ContextID = &contextID
	return msg
}

// TextContent concatenates the text of every text part of the message.
func (m *Message) TextContent() string {
	var out string
	for _, part := range m.Parts {
		if part.Kind == PartKindText && part.Text != nil {
			out += *part.Text
		}
	}
	return out
}
