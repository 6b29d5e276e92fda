package testutil

import (
	"encoding/json"

	"github.com/hupe1980/agentloop/core"
)

// TurnBuilder provides a fluent helper for constructing assistant turns.
// Example:
//
//	am := NewTurnBuilder().Text("checking").Call("c1", "web_search", map[string]any{"query": "x"}).Build()
type TurnBuilder struct {
	text  string
	calls []core.ToolCall
}

// NewTurnBuilder creates an empty builder.
func NewTurnBuilder() *TurnBuilder { return &TurnBuilder{} }

// Text sets the natural-language content (chainable).
func (b *TurnBuilder) Text(t string) *TurnBuilder { b.text = t; return b }

// Call appends a tool call whose arguments are JSON encoded from args (chainable).
// A nil args value produces an empty object.
func (b *TurnBuilder) Call(id, name string, args any) *TurnBuilder {
	b.calls = append(b.calls, Call(id, name, args))
	return b
}

// Ask appends a clarification request for the default sentinel (chainable).
func (b *TurnBuilder) Ask(id, question string) *TurnBuilder {
	return b.Call(id, "ask_human", map[string]any{"question": question})
}

// Build constructs the core.AssistantMessage value.
func (b *TurnBuilder) Build() core.AssistantMessage {
	am := core.AssistantMessage{Text: b.text}
	if len(b.calls) > 0 {
		am.ToolCalls = append([]core.ToolCall(nil), b.calls...)
	}

	return am
}

// Call builds a tool call with JSON-encoded arguments. It panics on values
// encoding/json cannot handle, which is a bug in the test.
func Call(id, name string, args any) core.ToolCall {
	if args == nil {
		return core.ToolCall{ID: id, Name: name, Arguments: "{}"}
	}

	b, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}

	return core.ToolCall{ID: id, Name: name, Arguments: string(b)}
}

// Roles lists the role of every message, handy for asserting transcript shape.
func Roles(msgs []core.Message) []core.Role {
	out := make([]core.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role()
	}

	return out
}
