package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	internalutil "github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tool"
)

// toolCallLogger is implemented by logging.LoopLogger.
type toolCallLogger interface {
	LogToolCall(tool string, dur time.Duration, err error)
}

// ExecutorOptions configure NewToolExecutor.
type ExecutorOptions struct {
	MaxParallel    int           // 0 or <1 => no explicit limit (len(calls))
	Timeout        time.Duration // per call, 0 => none
	LogStartEvents bool          // log a start line per call
	Logger         logging.Logger
}

// Batch identifies the turn whose calls are executed.
type Batch struct {
	ConversationID string
	RunID          string
	State          core.State // state that produced the calls, exposed read-only to tools
	Calls          []core.ToolCall
}

// ToolExecutor executes the tool calls of one assistant turn, possibly in
// parallel. It guarantees:
//   - exactly one ToolResultMessage per non-sentinel call
//   - results in the original request order
//   - no panic or tool error escapes; failures become error results
type ToolExecutor struct {
	registry *tool.Registry
	opts     ExecutorOptions
}

// NewToolExecutor constructs an executor over registry.
func NewToolExecutor(registry *tool.Registry, optFns ...func(o *ExecutorOptions)) *ToolExecutor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &ToolExecutor{registry: registry, opts: opts}
}

// Execute runs the batch and returns its results. Clarification requests are
// skipped; they are answered by a human, not executed.
func (e *ToolExecutor) Execute(ctx context.Context, batch Batch) []core.ToolResultMessage {
	calls, _ := SplitCalls(batch.Calls, e.registry.ClarificationName())

	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.ToolResultMessage, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(ctx, batch, calls[0])
		return results
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup

	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()

	for i := range calls {
		if err := ctx.Err(); err != nil { // pre-check cancellation
			results[i] = resultMessage(calls[i], nil, cancelledError(calls[i], err))
			continue
		}

		wg.Add(1)

		sem <- struct{}{}

		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = e.executeOne(ctx, batch, call)
		}(i, calls[i])
	}

	wg.Wait()

	e.opts.Logger.Debug(
		"flow.tools.batch.complete",
		"conversation_id", batch.ConversationID,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *ToolExecutor) executeOne(ctx context.Context, batch Batch, call core.ToolCall) core.ToolResultMessage {
	if e.opts.LogStartEvents {
		e.opts.Logger.Info("flow.tool.start", "conversation_id", batch.ConversationID, "tool", call.Name, "call_id", call.ID)
	}

	start := time.Now()

	result, err := e.invoke(ctx, batch, call)

	if tl, ok := e.opts.Logger.(toolCallLogger); ok {
		tl.LogToolCall(call.Name, time.Since(start), err)
	}

	e.opts.Logger.Debug(
		"flow.tool.executed",
		"conversation_id", batch.ConversationID,
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return resultMessage(call, result, err)
}

// invoke centralizes lookup, argument decoding, timeout and panic safety.
func (e *ToolExecutor) invoke(ctx context.Context, batch Batch, call core.ToolCall) (any, error) {
	impl, ok := e.registry.Lookup(call.Name)
	if !ok {
		unknown := &core.UnknownToolError{Name: call.Name}

		return nil, &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Code: core.CodeUnknownTool, Message: unknown.Error(), Err: unknown}
	}

	args, err := internalutil.DecodeArguments(call.Arguments)
	if err != nil {
		return nil, &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Code: core.CodeValidation, Message: err.Error(), Err: err}
	}

	callCtx := ctx

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	toolCtx := core.NewToolContext(callCtx, batch.ConversationID, batch.RunID, call, batch.State, e.opts.Logger)

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		var o outcome

		defer func() {
			if r := recover(); r != nil {
				e.opts.Logger.Error("flow.tool.panic", "tool", call.Name, "call_id", call.ID, "recover", r)
				o = outcome{err: panicError(call, r)}
			}
			done <- o
		}()

		o.result, o.err = impl.Call(toolCtx, args)
	}()

	select {
	case o := <-done:
		if o.err != nil && callCtx.Err() != nil && errors.Is(o.err, callCtx.Err()) {
			return nil, cancelledError(call, callCtx.Err())
		}

		return o.result, o.err
	case <-callCtx.Done():
		return nil, cancelledError(call, callCtx.Err())
	}
}

// panicError converts a recovered panic value to a tool error carrying the stack.
func panicError(call core.ToolCall, r any) error {
	return &core.ToolExecutionError{
		Tool:    call.Name,
		CallID:  call.ID,
		Code:    core.CodePanic,
		Message: fmt.Sprintf("panic recovered: %v", r),
		Details: string(debug.Stack()),
	}
}

func cancelledError(call core.ToolCall, err error) error {
	return &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Code: core.CodeCancelled, Message: err.Error(), Err: err}
}

// SkippedResult answers a call that was deliberately not executed.
func SkippedResult(call core.ToolCall, reason string) core.ToolResultMessage {
	return resultMessage(call, nil, &core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Code: core.CodeSkipped, Message: reason})
}

// resultMessage encodes a tool outcome. Strings are used verbatim, other
// values are JSON encoded and errors are stringified.
func resultMessage(call core.ToolCall, result any, err error) core.ToolResultMessage {
	msg := core.ToolResultMessage{ToolCallID: call.ID, Name: call.Name}

	if err != nil {
		msg.Content = err.Error()
		msg.IsError = true

		return msg
	}

	switch v := result.(type) {
	case string:
		msg.Content = v
	case []byte:
		msg.Content = string(v)
	default:
		b, mErr := json.Marshal(v)
		if mErr != nil {
			msg.Content = (&core.ToolExecutionError{Tool: call.Name, CallID: call.ID, Code: core.CodeExecution, Message: "encode result: " + mErr.Error()}).Error()
			msg.IsError = true

			return msg
		}

		msg.Content = string(b)
	}

	return msg
}
