package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	internalutil "github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

// drive is one Run, Resume or Retry call. It owns the working checkpoint
// and is discarded when the call returns.
type drive struct {
	e              *Engine
	ctx            context.Context
	span           trace.Span
	conversationID string
	runID          string
	log            logging.Logger
	modelStep      *flow.ModelStep
	limiter        *core.ModelLimiter

	cp       *core.Checkpoint
	approved bool // staged calls were approved by a resume
}

// loop saves the checkpoint and runs the step it names until the
// conversation terminates or pauses.
func (d *drive) loop() (*Result, error) {
	for {
		if err := d.save(); err != nil {
			return nil, d.fail(err)
		}

		switch d.cp.NextStep {
		case core.NextStepModel:
			if err := d.runModel(); err != nil {
				return nil, d.fail(err)
			}
		case core.NextStepTools:
			if err := d.runTools(); err != nil {
				return nil, d.fail(err)
			}
		case core.NextStepAwaitingHuman, core.NextStepAwaitingToolDispatch:
			return d.interrupt()
		default:
			return d.finish(), nil
		}
	}
}

// runModel invokes the model once and routes its turn.
func (d *drive) runModel() error {
	if err := d.limiter.Increment(); err != nil {
		return err
	}

	ctx, span := d.e.tracer.Start(d.ctx, "agentloop.step.model", trace.WithAttributes(
		attribute.String("agentloop.model", d.e.opts.Model.Info().Name),
		attribute.Int("agentloop.messages", d.cp.State.Len()),
	))
	defer span.End()

	if err := d.callback(ctx, CallbackBeforeModel, &CallbackContext{}); err != nil {
		return recordError(span, err)
	}

	state, resp, err := d.modelStep.Run(ctx, d.cp.State)
	if err != nil {
		return recordError(span, err)
	}

	am, _ := state.Last().(core.AssistantMessage)

	if err := d.callback(ctx, CallbackAfterModel, &CallbackContext{State: state, Message: &am}); err != nil {
		return recordError(span, err)
	}

	decision := flow.Route(am, d.e.registry.ClarificationName())

	span.SetAttributes(
		attribute.String("agentloop.decision", string(decision)),
		attribute.Int("agentloop.tool_calls", len(am.ToolCalls)),
	)

	if resp.Usage != nil {
		span.SetAttributes(attribute.Int("agentloop.tokens", resp.Usage.TotalTokens))
	}

	d.cp.State = state

	// Clarification pauses are raised by runTools for any position of the
	// sentinel in the turn, so both continuing decisions share one step.
	if decision == flow.DecisionTerminate {
		d.cp.NextStep = core.NextStepNone
	} else {
		d.cp.NextStep = core.NextStepTools
	}

	d.log.Debug("engine.step.model", "decision", string(decision), "tool_calls", len(am.ToolCalls))

	return nil
}

// runTools answers the unpaired calls of the latest assistant turn. Ordinary
// calls are executed (or skipped, or staged for approval); clarification
// requests are left for a human.
func (d *drive) runTools() error {
	sentinel := d.e.registry.ClarificationName()
	ordinary, clarifications := flow.SplitCalls(d.cp.State.UnpairedToolCalls(), sentinel)

	ctx, span := d.e.tracer.Start(d.ctx, "agentloop.step.tools", trace.WithAttributes(
		attribute.Int("agentloop.tool_calls", len(ordinary)),
		attribute.Int("agentloop.clarifications", len(clarifications)),
	))
	defer span.End()

	switch {
	case len(ordinary) == 0:
	case len(clarifications) > 0 && d.e.opts.MixedTurn == MixedTurnSkip:
		skipped := make([]core.Message, 0, len(ordinary))
		for _, c := range ordinary {
			skipped = append(skipped, flow.SkippedResult(c, skippedReason))
		}

		d.cp.State = d.cp.State.Append(skipped...)

		span.SetAttributes(attribute.Bool("agentloop.skipped", true))
	case !d.approved && d.e.opts.Approval != nil && d.e.opts.Approval(ordinary):
		d.cp.NextStep = core.NextStepAwaitingToolDispatch

		span.SetAttributes(attribute.Bool("agentloop.approval_required", true))

		return nil
	default:
		if err := d.execute(ctx, ordinary); err != nil {
			return recordError(span, err)
		}
	}

	d.approved = false

	if len(clarifications) > 0 {
		d.cp.NextStep = core.NextStepAwaitingHuman
	} else {
		d.cp.NextStep = core.NextStepModel
	}

	return nil
}

func (d *drive) execute(ctx context.Context, calls []core.ToolCall) error {
	for i := range calls {
		if err := d.callback(ctx, CallbackBeforeTool, &CallbackContext{ToolCall: &calls[i]}); err != nil {
			return err
		}
	}

	results := d.e.executor.Execute(ctx, flow.Batch{
		ConversationID: d.conversationID,
		RunID:          d.runID,
		State:          d.cp.State,
		Calls:          calls,
	})

	msgs := make([]core.Message, 0, len(results))
	for i := range results {
		msgs = append(msgs, results[i])
	}

	d.cp.State = d.cp.State.Append(msgs...)

	for i := range results {
		if err := d.callback(ctx, CallbackAfterTool, &CallbackContext{ToolCall: &calls[i], Result: &results[i]}); err != nil {
			return err
		}
	}

	return nil
}

// answer appends a human answer to one pending clarification request.
func (d *drive) answer(input HumanInput) error {
	_, pending := flow.SplitCalls(d.cp.State.UnpairedToolCalls(), d.e.registry.ClarificationName())

	var target *core.ToolCall

	switch {
	case input.CallID != "":
		for i := range pending {
			if pending[i].ID == input.CallID {
				target = &pending[i]
				break
			}
		}

		if target == nil {
			return fmt.Errorf("%w: no pending clarification with call id %q", core.ErrResumeMismatch, input.CallID)
		}
	case len(pending) == 1:
		target = &pending[0]
	default:
		return fmt.Errorf("%w: %d clarifications pending, a call id is required", core.ErrResumeMismatch, len(pending))
	}

	d.cp.State = d.cp.State.Append(core.ToolResultMessage{
		ToolCallID: target.ID,
		Name:       target.Name,
		Content:    input.Text,
		Human:      true,
	})

	if len(pending) > 1 {
		d.cp.NextStep = core.NextStepAwaitingHuman
	} else {
		d.cp.NextStep = core.NextStepModel
	}

	return nil
}

func (d *drive) interrupt() (*Result, error) {
	res := d.result()

	var calls []core.ToolCall

	ordinary, clarifications := flow.SplitCalls(d.cp.State.UnpairedToolCalls(), d.e.registry.ClarificationName())
	if d.cp.NextStep == core.NextStepAwaitingHuman {
		calls = clarifications
	} else {
		calls = ordinary
	}

	res.Pending = &Pending{ConversationID: d.conversationID, NextStep: d.cp.NextStep, ToolCalls: calls}

	d.span.SetAttributes(attribute.String("agentloop.next_step", string(d.cp.NextStep)))
	d.log.Info("engine.interrupt", "next_step", string(d.cp.NextStep), "pending_calls", len(calls))

	if err := d.callback(d.ctx, CallbackOnInterrupt, &CallbackContext{Pending: res.Pending}); err != nil {
		return nil, d.fail(err)
	}

	return res, nil
}

func (d *drive) finish() *Result {
	res := d.result()

	if am, ok := d.cp.State.Last().(core.AssistantMessage); ok {
		final := am.Clone()
		res.Final = &final
	}

	d.span.SetAttributes(attribute.String("agentloop.next_step", string(d.cp.NextStep)))
	d.log.Info("engine.run.complete", "messages", d.cp.State.Len(), "model_calls", d.limiter.Count())

	return res
}

func (d *drive) result() *Result {
	return &Result{
		ConversationID: d.conversationID,
		RunID:          d.runID,
		NextStep:       d.cp.NextStep,
		State:          d.cp.State.Clone(),
	}
}

func (d *drive) save() error {
	d.cp.UpdatedAt = time.Now().UTC()

	if err := d.e.store.Save(d.ctx, d.cp); err != nil {
		return fmt.Errorf("engine: save checkpoint: %w", err)
	}

	return nil
}

// callback fills the identity fields and runs the registered callbacks.
func (d *drive) callback(ctx context.Context, t CallbackType, cc *CallbackContext) error {
	if d.e.opts.Callbacks == nil {
		return nil
	}

	cc.ConversationID = d.conversationID
	cc.RunID = d.runID

	if cc.State.Messages == nil && d.cp != nil {
		cc.State = d.cp.State
	}

	return d.e.opts.Callbacks.ExecuteCallbacks(ctx, t, cc)
}

// fail records err on the drive span, notifies on_error callbacks and returns err.
func (d *drive) fail(err error) error {
	recordError(d.span, err)
	d.log.Warn("engine.run.failed", "error", err.Error())

	if d.e.opts.Callbacks != nil {
		if cbErr := d.callback(d.ctx, CallbackOnError, &CallbackContext{Err: err}); cbErr != nil {
			d.log.Error("engine.callback.failed", "type", string(CallbackOnError), "error", cbErr.Error())
		}
	}

	return err
}

func (d *drive) end() { d.span.End() }

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

// questionOf extracts the question argument of a clarification request.
func questionOf(call core.ToolCall) string {
	args, err := internalutil.DecodeArguments(call.Arguments)
	if err != nil {
		return ""
	}

	q, _ := args["question"].(string)

	return q
}
