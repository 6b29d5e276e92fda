package flow

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentloop/core"
	internalutil "github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// errNoFinalResponse reports a model stream that closed without a complete turn.
var errNoFinalResponse = errors.New("model produced no final response")

// modelCallLogger is implemented by logging.LoopLogger.
type modelCallLogger interface {
	LogModelCall(model string, tokens int, dur time.Duration, err error)
}

// ModelStepOptions configure NewModelStep.
type ModelStepOptions struct {
	// Instructions is the system prompt, rendered as a text/template over State.Values.
	Instructions string

	// MaxHistoryMessages bounds the history sent to the model. The window is
	// widened back to the nearest user message. Zero sends everything.
	MaxHistoryMessages int

	// OnChunk receives streamed text. Setting it enables streaming.
	OnChunk func(text string)

	Logger logging.Logger
}

// ModelStep invokes the model collaborator with the conversation history and
// the registry's tool declarations and appends exactly one assistant turn.
// It performs no branching and never retries.
type ModelStep struct {
	model    model.Model
	registry *tool.Registry
	opts     ModelStepOptions
}

// NewModelStep creates a model step. A nil registry advertises no tools.
func NewModelStep(m model.Model, registry *tool.Registry, optFns ...func(o *ModelStepOptions)) *ModelStep {
	opts := ModelStepOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &ModelStep{model: m, registry: registry, opts: opts}
}

// Run calls the model once. On success the returned State carries the new
// assistant turn and the final response is returned for usage reporting.
// Every failure is reported as *core.UpstreamModelError and leaves the input
// State untouched.
func (s *ModelStep) Run(ctx context.Context, state core.State) (core.State, *model.Response, error) {
	info := s.model.Info()

	upstream := func(err error) (core.State, *model.Response, error) {
		return state, nil, &core.UpstreamModelError{Model: info.Name, Err: err}
	}

	instructions, err := internalutil.RenderTemplate(s.opts.Instructions, state.Values)
	if err != nil {
		return upstream(err)
	}

	req := model.Request{
		Instructions: instructions,
		Messages:     TrimHistory(state.Messages, s.opts.MaxHistoryMessages),
		Stream:       s.opts.OnChunk != nil,
	}

	if s.registry != nil {
		req.Tools = s.registry.Definitions()
	}

	start := time.Now()

	resp, err := s.generate(ctx, req)
	if err != nil {
		if ml, ok := s.opts.Logger.(modelCallLogger); ok {
			ml.LogModelCall(info.Name, 0, time.Since(start), err)
		} else {
			s.opts.Logger.Warn("flow.model.failed", "model", info.Name, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		}

		return upstream(err)
	}

	msg := resp.Message.Clone()
	seen := make(map[string]bool, len(msg.ToolCalls))

	for i := range msg.ToolCalls {
		if id := msg.ToolCalls[i].ID; id == "" || seen[id] {
			msg.ToolCalls[i].ID = "call_" + core.NewID()
		}

		seen[msg.ToolCalls[i].ID] = true
	}

	resp.Message = msg

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	if ml, ok := s.opts.Logger.(modelCallLogger); ok {
		ml.LogModelCall(info.Name, tokens, time.Since(start), nil)
	}

	s.opts.Logger.Debug(
		"flow.model.completed",
		"model", info.Name,
		"tool_calls", len(msg.ToolCalls),
		"finish_reason", resp.FinishReason,
		"tokens", tokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return state.Append(msg), resp, nil
}

// generate drains both channels of a Generate call and returns the last
// non-partial response.
func (s *ModelStep) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	respCh, errCh := s.model.Generate(ctx, req)

	var final *model.Response

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if resp.Partial {
				if s.opts.OnChunk != nil && resp.Message.Text != "" {
					s.opts.OnChunk(resp.Message.Text)
				}

				continue
			}

			r := resp
			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		return nil, errNoFinalResponse
	}

	return final, nil
}

// TrimHistory returns the trailing messages of the history, at least max of
// them. The window is widened backwards until it opens on a user message, so
// tool results always travel with the assistant turn that requested them.
func TrimHistory(msgs []core.Message, max int) []core.Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}

	start := len(msgs) - max
	for start > 0 {
		if _, ok := msgs[start].(core.UserMessage); ok {
			break
		}

		start--
	}

	return msgs[start:]
}
