package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the model step.
type Request struct {
	Instructions string           `json:"instructions"` // System instructions for the model
	Messages     []core.Message   `json:"-"`            // Conversation history, oldest first
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Exactly one
// non-partial response carries the complete assistant turn.
type Response struct {
	ID           string                `json:"id"`
	Partial      bool                  `json:"partial"` // Indicates if this is a partial response
	Message      core.AssistantMessage `json:"-"`
	FinishReason string                `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage           `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the model step to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoScriptedTurn is returned by MockModel when its script is exhausted.
var ErrNoScriptedTurn = errors.New("mock model: no scripted turn left")

type mockTurn struct {
	msg core.AssistantMessage
	err error
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// replays scripted turns in order and records every request it receives.
type MockModel struct {
	info Info

	// Respond, when set, answers requests once the script is exhausted.
	Respond func(req Request) (core.AssistantMessage, error)

	mu       sync.Mutex
	script   []mockTurn
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddText queues a final answer.
func (m *MockModel) AddText(text string) *MockModel {
	return m.AddTurn(core.AssistantMessage{Text: text})
}

// AddToolCalls queues a turn requesting the given calls.
func (m *MockModel) AddToolCalls(calls ...core.ToolCall) *MockModel {
	return m.AddTurn(core.AssistantMessage{ToolCalls: calls})
}

// AddTurn queues an arbitrary assistant turn.
func (m *MockModel) AddTurn(msg core.AssistantMessage) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockTurn{msg: msg})

	return m
}

// AddError queues a failing call.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, mockTurn{err: err})

	return m
}

// Requests returns a copy of all received requests.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Remaining returns the number of unconsumed scripted turns.
func (m *MockModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.script)
}

func (m *MockModel) next(req Request) (core.AssistantMessage, error) {
	m.mu.Lock()

	req.Messages = append([]core.Message(nil), req.Messages...)
	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		respond := m.Respond
		m.mu.Unlock()

		if respond == nil {
			return core.AssistantMessage{}, ErrNoScriptedTurn
		}

		return respond(req)
	}

	turn := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	return turn.msg, turn.err
}

// Generate implements Model; emits optional streaming text chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		msg, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, r := range msg.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Message: core.AssistantMessage{Text: string(r)}}:
				}
			}
		}

		finish := "stop"
		if msg.HasToolCalls() {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{ID: core.NewID(), Message: msg.Clone(), FinishReason: finish}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
