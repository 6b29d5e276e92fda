package main

import (
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
)

// printResult writes the final answer or the pause instructions. Streamed
// answers were already written chunk by chunk.
func printResult(w io.Writer, res *engine.Result, streamed bool) {
	switch {
	case res.Done():
		if streamed {
			fmt.Fprintln(w)
			return
		}

		fmt.Fprintln(w, res.Final.Text)
	case res.Pending != nil:
		printPending(w, res.Pending)
	}
}

func printPending(w io.Writer, p *engine.Pending) {
	switch p.NextStep {
	case core.NextStepAwaitingHuman:
		for _, c := range p.ToolCalls {
			fmt.Fprintf(w, "? %s [call %s]\n", p.Question(c.ID), c.ID)
		}

		if len(p.ToolCalls) > 1 {
			fmt.Fprintf(w, "answer with: agentloop resume %s --call-id <call> --answer <text>\n", p.ConversationID)
		} else {
			fmt.Fprintf(w, "answer with: agentloop resume %s --answer <text>\n", p.ConversationID)
		}
	case core.NextStepAwaitingToolDispatch:
		fmt.Fprintln(w, "approval required for:")

		for _, c := range p.ToolCalls {
			fmt.Fprintf(w, "  %s %s [call %s]\n", c.Name, c.Arguments, c.ID)
		}

		fmt.Fprintf(w, "approve with: agentloop resume %s\n", p.ConversationID)
	}
}

func printCheckpoint(w io.Writer, cp *core.Checkpoint) {
	fmt.Fprintf(w, "conversation: %s\n", cp.ConversationID)
	fmt.Fprintf(w, "next step:    %s\n", cp.NextStep)
	fmt.Fprintf(w, "updated:      %s\n", cp.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintln(w)

	for _, m := range cp.State.Messages {
		switch v := m.(type) {
		case core.UserMessage:
			fmt.Fprintf(w, "user: %s\n", v.Text)
		case core.AssistantMessage:
			if v.Text != "" {
				fmt.Fprintf(w, "assistant: %s\n", v.Text)
			}

			for _, c := range v.ToolCalls {
				fmt.Fprintf(w, "assistant -> %s %s [call %s]\n", c.Name, c.Arguments, c.ID)
			}
		case core.ToolResultMessage:
			tag := ""

			switch {
			case v.Human:
				tag = " (human)"
			case v.IsError:
				tag = " (error)"
			}

			fmt.Fprintf(w, "tool[%s]%s: %s\n", v.ToolCallID, tag, v.Content)
		}
	}
}
