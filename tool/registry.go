package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentloop/model"
)

// DefaultClarificationName is the sentinel tool name used to ask the human a question.
const DefaultClarificationName = "ask_human"

var (
	// ErrDuplicateTool reports two registrations under one name.
	ErrDuplicateTool = errors.New("duplicate tool name")
	// ErrInvalidTool reports a nil tool, an empty name or a name reserved by the sentinel.
	ErrInvalidTool = errors.New("invalid tool")
)

// Clarification declares the human-clarification sentinel. It is advertised
// to the model like any other tool but has no executable implementation:
// selecting it pauses the conversation until a human answers.
type Clarification struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// DefaultClarification returns the ask_human declaration with a single
// required question argument.
func DefaultClarification() Clarification {
	return Clarification{
		Name:        DefaultClarificationName,
		Description: "Ask the human user a clarifying question when required information is missing. The conversation pauses until they answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{"type": "string", "description": "The question to ask the user"},
			},
			"required": []string{"question"},
		},
	}
}

// RegistryOptions configure NewRegistry.
type RegistryOptions struct {
	// Clarification is the sentinel declaration. Nil disables clarification.
	Clarification *Clarification
}

// Registry maps tool names to implementations. It is resolved once at
// construction and is read-only afterwards, so lookups need no locking.
type Registry struct {
	tools         map[string]Tool
	order         []string
	clarification *Clarification
}

// NewRegistry validates and indexes tools. The clarification sentinel is
// enabled with DefaultClarification unless an option clears it.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) (*Registry, error) {
	def := DefaultClarification()
	opts := RegistryOptions{Clarification: &def}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{tools: make(map[string]Tool, len(tools)), clarification: opts.Clarification}

	if r.clarification != nil && r.clarification.Name == "" {
		return nil, fmt.Errorf("%w: clarification sentinel needs a name", ErrInvalidTool)
	}

	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("%w: tool %d is nil", ErrInvalidTool, i)
		}

		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: tool %d has an empty name", ErrInvalidTool, i)
		}

		if r.IsClarification(name) {
			return nil, fmt.Errorf("%w: %q is reserved for clarification", ErrInvalidTool, name)
		}

		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, name)
		}

		r.tools[name] = t
		r.order = append(r.order, name)
	}

	return r, nil
}

// WithoutClarification disables the clarification sentinel.
func WithoutClarification() func(o *RegistryOptions) {
	return func(o *RegistryOptions) { o.Clarification = nil }
}

// WithClarification replaces the sentinel declaration.
func WithClarification(c Clarification) func(o *RegistryOptions) {
	return func(o *RegistryOptions) { o.Clarification = &c }
}

// Lookup returns the executable tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in registration order (sentinel excluded).
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of executable tools.
func (r *Registry) Len() int { return len(r.order) }

// ClarificationName returns the sentinel name, or "" when disabled.
func (r *Registry) ClarificationName() string {
	if r.clarification == nil {
		return ""
	}
	return r.clarification.Name
}

// IsClarification reports whether name is the clarification sentinel.
func (r *Registry) IsClarification(name string) bool {
	return r.clarification != nil && name == r.clarification.Name
}

// Definitions returns the declarations advertised to the model: registered
// tools in registration order followed by the sentinel.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.order)+1)
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	if r.clarification != nil {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        r.clarification.Name,
				Description: r.clarification.Description,
				Parameters:  r.clarification.Parameters,
			},
		})
	}

	return defs
}
