// Package flow provides the steps of one agent cycle.
//
// A cycle is driven by the engine and consists of three pieces:
//   - Route inspects the latest message and decides what runs next
//   - ModelStep invokes the model collaborator and appends one assistant turn
//   - ToolExecutor answers the tool calls of that turn with result messages
//
// Steps never persist anything and never mutate the State they are given;
// they return a new State for the engine to checkpoint.
package flow

import (
	"github.com/hupe1980/agentloop/core"
)

// Decision is the outcome of routing the latest message.
type Decision string

const (
	// DecisionTerminate ends the run; the assistant turn is the final answer.
	DecisionTerminate Decision = "terminate"
	// DecisionHumanInput pauses the run until a human answers a clarification request.
	DecisionHumanInput Decision = "human_input"
	// DecisionTools continues with the tool-execution step.
	DecisionTools Decision = "tools"
	// DecisionModel continues with the model step (user or tool-result message).
	DecisionModel Decision = "model"
)

// Route maps the latest message to the next step. It is a pure function of
// the message shape. Only the first tool call is compared against the
// clarification sentinel; an empty sentinel disables clarification routing.
//
// The engine uses Route to choose between terminating and continuing. Both
// DecisionHumanInput and DecisionTools continue with the tool-execution step,
// which pauses for every clarification call in the turn found by SplitCalls,
// wherever the sentinel sits among the calls.
func Route(msg core.Message, sentinel string) Decision {
	switch m := msg.(type) {
	case core.AssistantMessage:
		if !m.HasToolCalls() {
			return DecisionTerminate
		}

		if sentinel != "" && m.ToolCalls[0].Name == sentinel {
			return DecisionHumanInput
		}

		return DecisionTools
	case core.UserMessage, core.ToolResultMessage:
		return DecisionModel
	default:
		return DecisionTerminate
	}
}

// SplitCalls partitions calls into ordinary calls and clarification requests,
// preserving request order within each group.
func SplitCalls(calls []core.ToolCall, sentinel string) (ordinary, clarifications []core.ToolCall) {
	for _, c := range calls {
		if sentinel != "" && c.Name == sentinel {
			clarifications = append(clarifications, c)
			continue
		}

		ordinary = append(ordinary, c)
	}

	return ordinary, clarifications
}
