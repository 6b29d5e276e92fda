package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/checkpoint"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// TracerName is the instrumentation scope of the engine's spans.
const TracerName = "github.com/hupe1980/agentloop/engine"

// DefaultMaxModelCalls bounds the model steps of a single drive.
const DefaultMaxModelCalls = 10

var (
	// ErrNoModel is returned by New when no model is configured.
	ErrNoModel = errors.New("engine: model is required")
	// ErrEmptyConversationID rejects calls without a conversation id.
	ErrEmptyConversationID = errors.New("engine: conversation id is required")
)

// Options configures an Engine instance using the functional options pattern.
//
// Only Model is required. Every other dependency has a default suitable for
// development: a registry with just the clarification sentinel, an in-memory
// checkpoint store, a no-op logger and the global tracer provider.
//
// Example:
//
//	eng, err := New(func(o *Options) {
//	    o.Model = openai.NewModel(client)
//	    o.Registry = registry
//	    o.Store = checkpoint.NewInMemoryStore()
//	    o.Approval = ApproveTools(tool.SearchToolName)
//	})
type Options struct {
	Model    model.Model
	Registry *tool.Registry
	Store    core.CheckpointStore
	Logger   logging.Logger

	// TracerProvider creates the engine's tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Instructions is the system prompt, a text/template over State.Values.
	Instructions string

	// MaxModelCalls bounds the model steps of one drive. Zero means DefaultMaxModelCalls,
	// negative means unlimited.
	MaxModelCalls int

	// MaxParallelTools bounds concurrent tool calls within one turn. Zero means no limit.
	MaxParallelTools int

	// ToolTimeout is applied to every tool call. Zero means none.
	ToolTimeout time.Duration

	// MaxHistoryMessages bounds the history sent to the model. The window is
	// widened back to the nearest user message. Zero sends everything.
	MaxHistoryMessages int

	// Approval gates tool execution behind an awaiting_tool_dispatch pause.
	Approval ApprovalPolicy

	// MixedTurn decides what happens to ordinary calls that share a turn with
	// a clarification request.
	MixedTurn MixedTurnPolicy

	Callbacks *CallbackManager

	// OnChunk receives streamed model text. Setting it enables streaming.
	OnChunk func(conversationID, text string)
}

// Engine drives conversations through the model, router and tool steps and
// checkpoints every transition. It is safe for concurrent use.
type Engine struct {
	opts     Options
	registry *tool.Registry
	store    core.CheckpointStore
	logger   logging.Logger
	tracer   trace.Tracer
	executor *flow.ToolExecutor

	// Per-conversation locks serialize drives on the same id.
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an Engine. It fails when no model is configured.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		MaxModelCalls: DefaultMaxModelCalls,
		MixedTurn:     MixedTurnSkip,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Model == nil {
		return nil, ErrNoModel
	}

	if opts.Registry == nil {
		reg, err := tool.NewRegistry(nil)
		if err != nil {
			return nil, err
		}

		opts.Registry = reg
	}

	if opts.Store == nil {
		opts.Store = checkpoint.NewInMemoryStore()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	if opts.MaxModelCalls == 0 {
		opts.MaxModelCalls = DefaultMaxModelCalls
	}

	if opts.MixedTurn == "" {
		opts.MixedTurn = MixedTurnSkip
	}

	e := &Engine{
		opts:     opts,
		registry: opts.Registry,
		store:    opts.Store,
		logger:   opts.Logger,
		tracer:   opts.TracerProvider.Tracer(TracerName),
		locks:    make(map[string]*convLock),
	}

	e.executor = flow.NewToolExecutor(opts.Registry, func(o *flow.ExecutorOptions) {
		o.MaxParallel = opts.MaxParallelTools
		o.Timeout = opts.ToolTimeout
		o.Logger = opts.Logger
	})

	return e, nil
}

// Run appends a user message to the conversation and drives it until it
// terminates or pauses. A missing checkpoint starts an empty conversation;
// a terminated one continues with its full history. A conversation that is
// awaiting a human, or was interrupted during its tools step, is rejected
// with an error matching core.ErrConversationPending.
func (e *Engine) Run(ctx context.Context, conversationID, text string) (*Result, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}

	unlock := e.lock(conversationID)
	defer unlock()

	d := e.newDrive(ctx, "agentloop.run", conversationID)
	defer d.end()

	cp, err := e.load(d.ctx, conversationID)
	if err != nil {
		return nil, d.fail(err)
	}

	if cp == nil {
		cp = core.NewCheckpoint(conversationID)
	}

	if cp.Pending() || cp.NextStep == core.NextStepTools {
		return nil, d.fail(fmt.Errorf("%w: conversation %q is at %s", core.ErrConversationPending, conversationID, cp.NextStep))
	}

	cp.State = cp.State.Append(core.UserMessage{Text: text})
	cp.NextStep = core.NextStepModel
	d.cp = cp

	d.log.Info("engine.run.start", "messages", cp.State.Len())

	return d.loop()
}

// Resume continues a paused conversation.
//
// From awaiting_human, input must carry the human's answer. CallID selects
// the clarification request being answered and may be empty when exactly one
// is pending. The answer is appended as a tool result and, once every
// clarification of the turn is answered, the model step runs next.
//
// From awaiting_tool_dispatch, input must be nil: the staged calls are
// executed unmodified without consulting the model first.
//
// Without a pending checkpoint Resume fails with *core.NoPendingCheckpointError
// and writes nothing. A payload that does not fit the pause fails with
// core.ErrResumeMismatch and leaves the checkpoint untouched.
func (e *Engine) Resume(ctx context.Context, conversationID string, input *HumanInput) (*Result, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}

	unlock := e.lock(conversationID)
	defer unlock()

	d := e.newDrive(ctx, "agentloop.resume", conversationID)
	defer d.end()

	cp, err := e.load(d.ctx, conversationID)
	if err != nil {
		return nil, d.fail(err)
	}

	if cp == nil {
		return nil, d.fail(&core.NoPendingCheckpointError{ConversationID: conversationID})
	}

	if !cp.Pending() {
		return nil, d.fail(&core.NoPendingCheckpointError{ConversationID: conversationID, NextStep: cp.NextStep})
	}

	d.cp = cp

	switch cp.NextStep {
	case core.NextStepAwaitingHuman:
		if input == nil {
			return nil, d.fail(fmt.Errorf("%w: %s needs a human answer", core.ErrResumeMismatch, cp.NextStep))
		}

		if err := d.answer(*input); err != nil {
			return nil, d.fail(err)
		}
	case core.NextStepAwaitingToolDispatch:
		if input != nil {
			return nil, d.fail(fmt.Errorf("%w: %s takes no payload", core.ErrResumeMismatch, cp.NextStep))
		}

		cp.NextStep = core.NextStepTools
		d.approved = true
	}

	d.log.Info("engine.resume.start", "next_step", string(cp.NextStep))

	return d.loop()
}

// Retry continues a conversation that an upstream failure left in a running
// step. The failed step is re-executed from the last saved checkpoint.
func (e *Engine) Retry(ctx context.Context, conversationID string) (*Result, error) {
	if conversationID == "" {
		return nil, ErrEmptyConversationID
	}

	unlock := e.lock(conversationID)
	defer unlock()

	d := e.newDrive(ctx, "agentloop.retry", conversationID)
	defer d.end()

	cp, err := e.load(d.ctx, conversationID)
	if err != nil {
		return nil, d.fail(err)
	}

	if cp == nil || !cp.NextStep.Running() {
		step := core.NextStep("")
		if cp != nil {
			step = cp.NextStep
		}

		return nil, d.fail(fmt.Errorf("%w: conversation %q (next step %q)", core.ErrNotRetryable, conversationID, step))
	}

	d.cp = cp

	d.log.Info("engine.retry.start", "next_step", string(cp.NextStep))

	return d.loop()
}

// Checkpoint returns the persisted checkpoint, or nil when none exists.
func (e *Engine) Checkpoint(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	return e.load(ctx, conversationID)
}

// Forget deletes the conversation's checkpoint.
func (e *Engine) Forget(ctx context.Context, conversationID string) error {
	unlock := e.lock(conversationID)
	defer unlock()

	if err := e.store.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("engine: delete checkpoint: %w", err)
	}

	return nil
}

// Registry returns the tool registry the engine advertises to the model.
func (e *Engine) Registry() *tool.Registry { return e.registry }

func (e *Engine) load(ctx context.Context, conversationID string) (*core.Checkpoint, error) {
	cp, err := e.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("engine: load checkpoint: %w", err)
	}

	return cp, nil
}

// lock serializes drives on one conversation id and returns the unlock function.
func (e *Engine) lock(conversationID string) func() {
	e.mu.Lock()

	l, ok := e.locks[conversationID]
	if !ok {
		l = &convLock{}
		e.locks[conversationID] = l
	}

	l.refs++
	e.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		defer e.mu.Unlock()

		l.refs--
		if l.refs == 0 {
			delete(e.locks, conversationID)
		}
	}
}

func (e *Engine) newDrive(ctx context.Context, spanName, conversationID string) *drive {
	runID := core.NewID()

	ctx, span := e.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("agentloop.conversation_id", conversationID),
		attribute.String("agentloop.run_id", runID),
	))

	var log logging.Logger = e.logger
	if ll, ok := e.logger.(*logging.LoopLogger); ok {
		log = ll.WithComponent("engine").WithConversation(conversationID, runID)
	}

	modelStep := flow.NewModelStep(e.opts.Model, e.registry, func(o *flow.ModelStepOptions) {
		o.Instructions = e.opts.Instructions
		o.MaxHistoryMessages = e.opts.MaxHistoryMessages
		o.Logger = log

		if e.opts.OnChunk != nil {
			o.OnChunk = func(text string) { e.opts.OnChunk(conversationID, text) }
		}
	})

	maxCalls := e.opts.MaxModelCalls
	if maxCalls < 0 {
		maxCalls = 0
	}

	return &drive{
		e:              e,
		ctx:            ctx,
		span:           span,
		conversationID: conversationID,
		runID:          runID,
		log:            log,
		modelStep:      modelStep,
		limiter:        core.NewModelLimiter(maxCalls),
	}
}
