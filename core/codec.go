package core

import (
	"encoding/json"
	"fmt"
)

// MessageRecord is the flat, serializable envelope for a Message. Durable
// checkpoint stores persist records instead of the interface values.
type MessageRecord struct {
	Role       Role       `json:"role" bson:"role"`
	Text       string     `json:"text,omitempty" bson:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty" bson:"name,omitempty"`
	IsError    bool       `json:"is_error,omitempty" bson:"is_error,omitempty"`
	Human      bool       `json:"human,omitempty" bson:"human,omitempty"`
}

// RecordOf converts a message into its envelope.
func RecordOf(m Message) MessageRecord {
	switch v := m.(type) {
	case UserMessage:
		return MessageRecord{Role: RoleUser, Text: v.Text}
	case AssistantMessage:
		return MessageRecord{Role: RoleAssistant, Text: v.Text, ToolCalls: v.Clone().ToolCalls}
	case ToolResultMessage:
		return MessageRecord{Role: RoleTool, Text: v.Content, ToolCallID: v.ToolCallID, Name: v.Name, IsError: v.IsError, Human: v.Human}
	default:
		return MessageRecord{}
	}
}

// Message converts the envelope back into its concrete message type.
func (r MessageRecord) Message() (Message, error) {
	switch r.Role {
	case RoleUser:
		return UserMessage{Text: r.Text}, nil
	case RoleAssistant:
		return AssistantMessage{Text: r.Text, ToolCalls: r.ToolCalls}, nil
	case RoleTool:
		if r.ToolCallID == "" {
			return nil, fmt.Errorf("tool result record without tool_call_id")
		}
		return ToolResultMessage{ToolCallID: r.ToolCallID, Name: r.Name, Content: r.Text, IsError: r.IsError, Human: r.Human}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", r.Role)
	}
}

// RecordsOf converts a history into envelopes.
func RecordsOf(msgs []Message) []MessageRecord {
	out := make([]MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, RecordOf(m))
	}
	return out
}

// MessagesOf converts envelopes back into a history.
func MessagesOf(recs []MessageRecord) ([]Message, error) {
	out := make([]Message, 0, len(recs))

	for i, r := range recs {
		m, err := r.Message()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		out = append(out, m)
	}

	return out, nil
}

type stateJSON struct {
	Messages []MessageRecord `json:"messages"`
	Values   map[string]any  `json:"values,omitempty"`
}

// MarshalJSON encodes the state with message envelopes.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{Messages: RecordsOf(s.Messages), Values: s.Values})
}

// UnmarshalJSON decodes a state produced by MarshalJSON. Numeric values in
// Values come back as float64, as with any encoding/json map.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	msgs, err := MessagesOf(raw.Messages)
	if err != nil {
		return err
	}

	if raw.Values == nil {
		raw.Values = map[string]any{}
	}

	s.Messages = msgs
	s.Values = raw.Values

	return nil
}
