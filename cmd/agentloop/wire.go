package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/checkpoint"
	mongostore "github.com/hupe1980/agentloop/checkpoint/mongo"
	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/anthropic"
	"github.com/hupe1980/agentloop/model/gemini"
	"github.com/hupe1980/agentloop/model/openai"
	"github.com/hupe1980/agentloop/tool"
)

func noClose(context.Context) error { return nil }

// buildEngine assembles the engine described by cfg. The returned function
// releases the checkpoint store. Streamed text goes to out when it is non-nil.
func buildEngine(ctx context.Context, cfg config.Config, logger logging.Logger, tp trace.TracerProvider, out io.Writer) (*engine.Engine, func(context.Context) error, error) {
	m, err := newModel(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(func(o *engine.Options) {
		o.Model = m
		o.Registry = registry
		o.Store = store
		o.Logger = logger
		o.TracerProvider = tp
		o.Instructions = cfg.Instructions
		o.MaxModelCalls = cfg.Engine.MaxModelCalls
		o.MaxParallelTools = cfg.Engine.MaxParallelTools
		o.ToolTimeout = cfg.Engine.ToolTimeout
		o.MaxHistoryMessages = cfg.Engine.MaxHistoryMessages
		o.Approval = approvalPolicy(cfg.Engine.Approve)
		o.MixedTurn = engine.MixedTurnPolicy(cfg.Engine.MixedTurn)

		if out != nil {
			o.OnChunk = func(_, text string) { _, _ = io.WriteString(out, text) }
		}
	})
	if err != nil {
		_ = closeStore(ctx)
		return nil, nil, err
	}

	return eng, closeStore, nil
}

func newModel(ctx context.Context, cfg config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client := openaisdk.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))

		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case config.ProviderGemini:
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = cfg.GeminiAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	case config.ProviderMock:
		m := model.NewMockModel("mock", config.ProviderMock)
		m.Respond = mockResponder

		return m, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// mockResponder lets the CLI run offline. A user message starting with
// "ask:" turns into a clarification request, "time" into a clock call and
// anything else is echoed back.
func mockResponder(req model.Request) (core.AssistantMessage, error) {
	switch last := req.Messages[len(req.Messages)-1].(type) {
	case core.UserMessage:
		switch {
		case strings.HasPrefix(last.Text, "ask:"):
			question := strings.TrimSpace(strings.TrimPrefix(last.Text, "ask:"))

			return core.AssistantMessage{ToolCalls: []core.ToolCall{{
				Name:      tool.DefaultClarificationName,
				Arguments: fmt.Sprintf("{%q:%q}", "question", question),
			}}}, nil
		case strings.Contains(strings.ToLower(last.Text), "time"):
			return core.AssistantMessage{ToolCalls: []core.ToolCall{{Name: tool.ClockToolName, Arguments: "{}"}}}, nil
		default:
			return core.AssistantMessage{Text: "echo: " + last.Text}, nil
		}
	case core.ToolResultMessage:
		if last.Human {
			return core.AssistantMessage{Text: "you said: " + last.Content}, nil
		}

		return core.AssistantMessage{Text: last.Name + " returned " + last.Content}, nil
	default:
		return core.AssistantMessage{Text: "ok"}, nil
	}
}

func newRegistry(cfg config.Config) (*tool.Registry, error) {
	var tools []tool.Tool

	if cfg.Tools.Clock {
		loc := time.UTC

		if cfg.Tools.Timezone != "" {
			l, err := time.LoadLocation(cfg.Tools.Timezone)
			if err != nil {
				return nil, fmt.Errorf("tools.timezone: %w", err)
			}

			loc = l
		}

		tools = append(tools, tool.NewClockTool(func(o *tool.ClockOptions) { o.Location = loc }))
	}

	if cfg.Tools.Search {
		tools = append(tools, tool.NewSearchTool(func(o *tool.SearchOptions) {
			o.APIKey = cfg.Tools.SearchAPIKey
			if cfg.Tools.SearchEndpoint != "" {
				o.Endpoint = cfg.Tools.SearchEndpoint
			}
		}))
	}

	return tool.NewRegistry(tools)
}

func newStore(ctx context.Context, cfg config.Config) (core.CheckpointStore, func(context.Context) error, error) {
	switch cfg.Store.Type {
	case config.StoreMemory:
		return checkpoint.NewInMemoryStore(func(o *checkpoint.InMemoryOptions) {
			if cfg.Store.TTL > 0 {
				o.TTL = cfg.Store.TTL
			}
		}), noClose, nil
	case config.StoreFile:
		store, err := checkpoint.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}

		return store, noClose, nil
	case config.StoreMongo:
		store, disconnect, err := mongostore.Connect(ctx, cfg.Store.MongoURI, cfg.Store.Database, func(o *mongostore.Options) {
			o.Collection = cfg.Store.Collection
			o.TTL = cfg.Store.TTL
		})
		if err != nil {
			return nil, nil, err
		}

		if err := store.EnsureIndexes(ctx); err != nil {
			_ = disconnect(ctx)
			return nil, nil, err
		}

		return store, disconnect, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func approvalPolicy(names []string) engine.ApprovalPolicy {
	switch {
	case len(names) == 0:
		return nil
	case slices.Contains(names, "*"):
		return engine.ApproveAll()
	default:
		return engine.ApproveTools(names...)
	}
}
