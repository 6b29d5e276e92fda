// Command agentloop drives interruptible agent conversations from the shell.
// Conversations are checkpointed after every step, so a run paused for a
// clarification or a tool approval can be resumed by a later invocation.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}
