package types

import (
	"encoding/json"
	"fmt"
)

// Part is a container for one section of message or artifact content.
// Exactly one of Text, File or Data is populated, discriminated by Kind.
type Part struct {
	Kind     string         `json:"kind"`
	Text     *string        `json:"text,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PartKind enum values for the three supported part types
const (
	PartKindText = "text"
	PartKindFile = "file"
	PartKindData = "data"
)

// partUnmarshalHelper avoids recursing into Part.UnmarshalJSON.
type partUnmarshalHelper struct {
	Kind     string         `json:"kind"`
	Text     *string        `json:"text,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON validates the kind discriminator and that the matching
// payload field is present.
func (p *Part) UnmarshalJSON(data []byte) error {
	var helper partUnmarshalHelper
	if err := json.Unmarshal(data, &helper); err != nil {
		return err
	}

	switch helper.Kind {
	case PartKindText:
		if helper.Text == nil {
			return fmt.Errorf("part of kind %q is missing the text field", helper.Kind)
		}
	case PartKindFile:
		if helper.File == nil {
			return fmt.Errorf("part of kind %q is missing the file field", helper.Kind)
		}
	case PartKindData:
		if helper.Data == nil {
			return fmt.Errorf("part of kind %q is missing the data field", helper.Kind)
		}
	default:
		return fmt.Errorf("unsupported part kind: %q", helper.Kind)
	}

	p.Kind = helper.Kind
	p.Text = helper.Text
	p.File = helper.File
	p.Data = helper.Data
	p.Metadata = helper.Metadata

	return nil
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: &text}
}

// NewFilePart creates a file part.
func NewFilePart(file FileContent) Part {
	return Part{Kind: PartKindFile, File: &file}
}

// NewDataPart creates a structured data part.
func NewDataPart(data map[string]any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// UnmarshalParts unmarshals a JSON array of parts with kind validation.
func UnmarshalParts(data []byte) ([]Part, error) {
	var rawParts []json.RawMessage
	if err := json.Unmarshal(data, &rawParts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw parts: %w", err)
	}

	parts := make([]Part, len(rawParts))
	for i, rawPart := range rawParts {
		var part Part
		if err := json.Unmarshal(rawPart, &part); err != nil {
			return nil, fmt.Errorf("failed to unmarshal part at index %d: %w", i, err)
		}
		parts[i] = part
	}

	return parts, nil
}
