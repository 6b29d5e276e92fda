// Package gemini provides an implementation of model.Model backed by the
// Google Gen AI SDK (Gemini API). Tool results are sent back as user-role
// FunctionResponse parts, grouped per assistant turn.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string // falls back to GEMINI_API_KEY / GOOGLE_API_KEY in the SDK
}

// Model wraps genai.Client behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:           "gemini-2.5-flash",
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// NewModel creates a Gemini model with a new Gemini API client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions(optFns)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents, err := buildContents(req.Messages)
		if err != nil {
			errCh <- err
			return
		}

		cfg := m.buildConfig(req)

		if req.Stream {
			m.handleStreaming(ctx, contents, cfg, out, errCh)
			return
		}

		resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, cfg)
		if err != nil {
			errCh <- fmt.Errorf("gemini api error: %w", err)
			return
		}

		final, err := toResponse(resp)
		if err != nil {
			errCh <- err
			return
		}

		out <- final
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.opts.Temperature),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	if req.Instructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instructions}}}
	}

	if len(req.Tools) > 0 {
		cfg.Tools = buildTools(req.Tools)
	}

	return cfg
}

func (m *Model) handleStreaming(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	var (
		text   strings.Builder
		calls  []core.ToolCall
		last   *genai.GenerateContentResponse
		finish string
	)

	for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, cfg) {
		if err != nil {
			errCh <- fmt.Errorf("gemini streaming error: %w", err)
			return
		}

		last = chunk

		msg, reason, err := parseCandidate(chunk)
		if err != nil {
			errCh <- err
			return
		}

		if reason != "" {
			finish = reason
		}

		if msg.Text != "" {
			text.WriteString(msg.Text)
			out <- model.Response{ID: chunk.ResponseID, Partial: true, Message: core.AssistantMessage{Text: msg.Text}}
		}

		calls = append(calls, msg.ToolCalls...)
	}

	if last == nil {
		errCh <- fmt.Errorf("gemini stream returned no chunks")
		return
	}

	out <- model.Response{
		ID:           last.ResponseID,
		Message:      core.AssistantMessage{Text: text.String(), ToolCalls: calls},
		FinishReason: finishReason(finish, len(calls) > 0),
		Usage:        usageOf(last),
	}
}

// buildContents converts the conversation history into genai contents.
func buildContents(history []core.Message) ([]*genai.Content, error) {
	var (
		contents  []*genai.Content
		responses []*genai.Part
	)

	flush := func() {
		if len(responses) > 0 {
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responses})
			responses = nil
		}
	}

	for _, msg := range history {
		switch v := msg.(type) {
		case core.ToolResultMessage:
			key := "output"
			if v.IsError {
				key = "error"
			}

			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       v.ToolCallID,
				Name:     v.Name,
				Response: map[string]any{key: v.Content},
			}})
		case core.UserMessage:
			flush()

			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: v.Text}}})
		case core.AssistantMessage:
			flush()

			parts := make([]*genai.Part, 0, len(v.ToolCalls)+1)
			if v.Text != "" {
				parts = append(parts, &genai.Part{Text: v.Text})
			}

			for _, call := range v.ToolCalls {
				args := map[string]any{}
				if call.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
						return nil, fmt.Errorf("gemini: tool call %s arguments: %w", call.ID, err)
					}
				}

				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args}})
			}

			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		}
	}

	flush()

	return contents, nil
}

// buildTools converts tool definitions into a single genai tool with one
// function declaration per definition.
func buildTools(tools []model.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Function.Name,
			Description:          t.Function.Description,
			ParametersJsonSchema: t.Function.Parameters,
		})
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func parseCandidate(resp *genai.GenerateContentResponse) (core.AssistantMessage, string, error) {
	var msg core.AssistantMessage

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return msg, "", nil
	}

	cand := resp.Candidates[0]
	reason := string(cand.FinishReason)

	if cand.Content == nil {
		return msg, reason, nil
	}

	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}

		if part.Text != "" && !part.Thought {
			msg.Text += part.Text
		}

		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return msg, reason, fmt.Errorf("gemini: encode function call args: %w", err)
			}

			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
		}
	}

	return msg, reason, nil
}

func toResponse(resp *genai.GenerateContentResponse) (model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.Response{}, fmt.Errorf("gemini: no candidates returned")
	}

	msg, reason, err := parseCandidate(resp)
	if err != nil {
		return model.Response{}, err
	}

	return model.Response{
		ID:           resp.ResponseID,
		Message:      msg,
		FinishReason: finishReason(reason, msg.HasToolCalls()),
		Usage:        usageOf(resp),
	}, nil
}

func finishReason(reason string, hasCalls bool) string {
	if hasCalls {
		return "tool_calls"
	}

	if reason == "" || reason == string(genai.FinishReasonStop) {
		return "stop"
	}

	return strings.ToLower(reason)
}

func usageOf(resp *genai.GenerateContentResponse) *model.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}

	return &model.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}

var _ model.Model = (*Model)(nil)
