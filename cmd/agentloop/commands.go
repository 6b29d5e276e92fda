package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentloop/engine"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <conversation> <message...>",
		Short: "Send a user message and drive the conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.engine.Run(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res, a.stream)

			return nil
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	var (
		answer string
		callID string
	)

	cmd := &cobra.Command{
		Use:   "resume <conversation>",
		Short: "Answer a clarification request or approve staged tool calls",
		Long: `Without --answer, resume approves the tool calls staged by an
awaiting_tool_dispatch pause. With --answer, it answers a clarification
request; --call-id selects the request when several are pending.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input *engine.HumanInput

			if cmd.Flags().Changed("answer") {
				input = &engine.HumanInput{CallID: callID, Text: answer}
			} else if callID != "" {
				return errors.New("--call-id requires --answer")
			}

			res, err := a.engine.Resume(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res, a.stream)

			return nil
		},
	}

	cmd.Flags().StringVarP(&answer, "answer", "a", "", "the human's answer to a clarification request")
	cmd.Flags().StringVar(&callID, "call-id", "", "the clarification request being answered")

	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <conversation>",
		Short: "Re-run the step that failed on an upstream model error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.engine.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res, a.stream)

			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation>",
		Short: "Print the checkpointed transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := a.engine.Checkpoint(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cp == nil {
				return fmt.Errorf("no checkpoint for conversation %q", args[0])
			}

			printCheckpoint(cmd.OutOrStdout(), cp)

			return nil
		},
	}
}

func newForgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <conversation>",
		Short: "Delete the checkpoint of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.engine.Forget(cmd.Context(), args[0])
		},
	}
}
