package engine

import (
	"github.com/hupe1980/agentloop/core"
)

// ApprovalPolicy reports whether the ordinary calls of a turn need human
// approval before any of them executes. A nil policy approves everything.
type ApprovalPolicy func(calls []core.ToolCall) bool

// ApproveAll gates every tool execution behind an awaiting_tool_dispatch pause.
func ApproveAll() ApprovalPolicy {
	return func(calls []core.ToolCall) bool { return len(calls) > 0 }
}

// ApproveTools gates a turn when it calls any of the named tools.
func ApproveTools(names ...string) ApprovalPolicy {
	gated := make(map[string]struct{}, len(names))
	for _, n := range names {
		gated[n] = struct{}{}
	}

	return func(calls []core.ToolCall) bool {
		for _, c := range calls {
			if _, ok := gated[c.Name]; ok {
				return true
			}
		}

		return false
	}
}

// MixedTurnPolicy decides the fate of ordinary calls that share an assistant
// turn with a clarification request.
type MixedTurnPolicy string

const (
	// MixedTurnSkip answers the ordinary calls with a skipped result and
	// pauses immediately. The model sees the skip and can re-issue the calls
	// once the human has answered.
	MixedTurnSkip MixedTurnPolicy = "skip"
	// MixedTurnExecute runs the ordinary calls (subject to approval) and
	// pauses afterwards.
	MixedTurnExecute MixedTurnPolicy = "execute"
)

// skippedReason is the content of results produced by MixedTurnSkip.
const skippedReason = "not executed: the turn also asked the user for clarification; call the tool again after the answer if still needed"

// HumanInput is the payload that resumes an awaiting_human conversation.
type HumanInput struct {
	// CallID names the clarification request being answered. It may be
	// empty when exactly one request is pending.
	CallID string
	Text   string
}

// Pending describes a paused conversation.
type Pending struct {
	ConversationID string
	NextStep       core.NextStep
	// ToolCalls are the clarification requests awaiting an answer, or the
	// staged calls awaiting approval.
	ToolCalls []core.ToolCall
}

// Question returns the question argument of a clarification request, or "".
func (p *Pending) Question(callID string) string {
	for _, c := range p.ToolCalls {
		if c.ID == callID {
			return questionOf(c)
		}
	}

	return ""
}

// Result is the outcome of a drive. Exactly one of Final and Pending is set.
type Result struct {
	ConversationID string
	RunID          string
	NextStep       core.NextStep
	Final          *core.AssistantMessage
	Pending        *Pending
	State          core.State
}

// Done reports whether the conversation terminated with a final answer.
func (r *Result) Done() bool { return r != nil && r.Final != nil }
