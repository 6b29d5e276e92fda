// Package agentloop provides a high-level facade over the interruptible
// engine. Most applications interact with this package by:
//  1. Creating an AgentLoop via New() with a model and its tools
//  2. Starting conversations with Run and continuing paused ones with Resume
//  3. Or letting RunSync answer pauses through a Handler
//
// The facade delegates orchestration to engine.Engine while keeping setup
// concise. All defaults are safe for local development and testing;
// production deployments typically supply a durable checkpoint store and a
// structured logger.
package agentloop

import (
	"context"
	"errors"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// ErrUnansweredPause is returned by RunSync when a pause cannot be answered
// because the Handler lacks the corresponding function.
var ErrUnansweredPause = errors.New("agentloop: no handler for pause")

// Options configures the AgentLoop instance.
type Options struct {
	// Engine options. Model and Registry are filled in by New.
	Engine engine.Options

	// Clarification overrides the default ask_human sentinel.
	Clarification *tool.Clarification

	// MaxPauses bounds how many pauses RunSync answers. Zero means 10.
	MaxPauses int
}

// AgentLoop is the high-level facade over engine.Engine.
type AgentLoop struct {
	opts   Options
	engine *engine.Engine
}

// New creates an AgentLoop for m exposing tools to the model.
func New(m model.Model, tools []tool.Tool, optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{MaxPauses: 10}

	for _, fn := range optFns {
		fn(&opts)
	}

	var regOpts []func(o *tool.RegistryOptions)
	if opts.Clarification != nil {
		regOpts = append(regOpts, tool.WithClarification(*opts.Clarification))
	}

	registry, err := tool.NewRegistry(tools, regOpts...)
	if err != nil {
		return nil, err
	}

	engOpts := opts.Engine
	engOpts.Model = m
	engOpts.Registry = registry

	eng, err := engine.New(func(o *engine.Options) { *o = engOpts })
	if err != nil {
		return nil, err
	}

	if opts.MaxPauses <= 0 {
		opts.MaxPauses = 10
	}

	return &AgentLoop{opts: opts, engine: eng}, nil
}

// Engine exposes the underlying engine.
func (l *AgentLoop) Engine() *engine.Engine { return l.engine }

// Run appends a user message and drives the conversation until it terminates or pauses.
func (l *AgentLoop) Run(ctx context.Context, conversationID, text string) (*engine.Result, error) {
	return l.engine.Run(ctx, conversationID, text)
}

// Resume continues a paused conversation. See engine.Engine.Resume.
func (l *AgentLoop) Resume(ctx context.Context, conversationID string, input *engine.HumanInput) (*engine.Result, error) {
	return l.engine.Resume(ctx, conversationID, input)
}

// Handler answers the pauses of a conversation driven by RunSync.
type Handler struct {
	// Answer returns the human's reply to a clarification question.
	Answer func(ctx context.Context, question string) (string, error)

	// Approve decides on staged tool calls. Returning false leaves the
	// conversation paused and RunSync returns the pending result.
	Approve func(ctx context.Context, calls []core.ToolCall) (bool, error)
}

// RunSync is a synchronous helper that runs a user message and answers every
// pause through h until the conversation terminates. A declined approval, or
// more than MaxPauses pauses, returns the pending result.
func (l *AgentLoop) RunSync(ctx context.Context, conversationID, text string, h Handler) (*engine.Result, error) {
	res, err := l.engine.Run(ctx, conversationID, text)
	if err != nil {
		return nil, err
	}

	for pauses := 0; res.Pending != nil && pauses < l.opts.MaxPauses; pauses++ {
		next, err := l.answer(ctx, res.Pending, h)
		if err != nil {
			return nil, err
		}

		if next == nil {
			return res, nil
		}

		res = next
	}

	return res, nil
}

// answer resolves one pause. A nil result without error means the staged
// calls were not approved.
func (l *AgentLoop) answer(ctx context.Context, p *engine.Pending, h Handler) (*engine.Result, error) {
	switch p.NextStep {
	case core.NextStepAwaitingHuman:
		if h.Answer == nil {
			return nil, ErrUnansweredPause
		}

		call := p.ToolCalls[0]

		text, err := h.Answer(ctx, p.Question(call.ID))
		if err != nil {
			return nil, err
		}

		return l.engine.Resume(ctx, p.ConversationID, &engine.HumanInput{CallID: call.ID, Text: text})
	case core.NextStepAwaitingToolDispatch:
		if h.Approve == nil {
			return nil, ErrUnansweredPause
		}

		ok, err := h.Approve(ctx, p.ToolCalls)
		if err != nil || !ok {
			return nil, err
		}

		return l.engine.Resume(ctx, p.ConversationID, nil)
	default:
		return nil, ErrUnansweredPause
	}
}
