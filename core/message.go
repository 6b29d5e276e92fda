package core

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. Concrete message types implement the
// unexported isMessage marker enabling a closed set.
type Message interface {
	Role() Role
	isMessage()
}

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id" bson:"id"`                                   // Unique within the producing assistant turn
	Name      string `json:"name" bson:"name"`                               // Registry key or clarification sentinel
	Arguments string `json:"arguments,omitempty" bson:"arguments,omitempty"` // Serialized JSON payload, opaque to the core
}

// UserMessage is text supplied by the caller.
type UserMessage struct {
	Text string
}

// Role implements Message.
func (UserMessage) Role() Role { return RoleUser }

func (UserMessage) isMessage() {}

// AssistantMessage is a model turn. It carries a final answer, one or more
// tool calls, or both.
type AssistantMessage struct {
	Text      string
	ToolCalls []ToolCall
}

// Role implements Message.
func (AssistantMessage) Role() Role { return RoleAssistant }

func (AssistantMessage) isMessage() {}

// HasToolCalls reports whether the turn requests any tool.
func (m AssistantMessage) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a copy that does not share the ToolCalls backing array.
func (m AssistantMessage) Clone() AssistantMessage {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

// ToolResultMessage answers exactly one ToolCall of the preceding assistant turn.
type ToolResultMessage struct {
	ToolCallID string
	Name       string
	Content    string
	IsError    bool // Content is an error description
	Human      bool // Content was authored by a human standing in for the tool
}

// Role implements Message.
func (ToolResultMessage) Role() Role { return RoleTool }

func (ToolResultMessage) isMessage() {}

// cloneMessage copies a message so slices inside it are not shared.
func cloneMessage(m Message) Message {
	if am, ok := m.(AssistantMessage); ok {
		return am.Clone()
	}
	return m
}
