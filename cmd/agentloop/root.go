package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tracing"
)

// app holds the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	envFile    string
	stream     bool

	cfg     config.Config
	logger  *logging.LoopLogger
	engine  *engine.Engine
	closers []func(context.Context) error
}

// execute runs the CLI with args and releases every resource it opened.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)

	return errors.Join(err, a.close())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentloop",
		Short: "Interruptible LLM agent loop",
		Long: `agentloop runs a conversation with a language model that may call tools,
ask the user for clarification or wait for tool approval. Every step is
checkpointed, so paused conversations survive process restarts when a file or
MongoDB checkpoint store is configured.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to an agentloop YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", ".env file to load (defaults to ./.env)")
	root.PersistentFlags().BoolVar(&a.stream, "stream", false, "print model text as it is generated")

	root.AddCommand(
		newRunCmd(a),
		newResumeCmd(a),
		newRetryCmd(a),
		newShowCmd(a),
		newForgetCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var envFiles []string
	if a.envFile != "" {
		envFiles = append(envFiles, a.envFile)
	}

	cfg, err := config.Load(a.configPath, envFiles...)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	a.cfg = cfg

	level, _ := cfg.LogLevel()
	a.logger = logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		Component: "cli",
	})

	ctx := cmd.Context()

	tp, shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	a.closers = append(a.closers, shutdown)

	var out io.Writer
	if a.stream {
		out = cmd.OutOrStdout()
	}

	eng, closeStore, err := buildEngine(ctx, cfg, a.logger, tp, out)
	if err != nil {
		return err
	}

	a.closers = append(a.closers, closeStore)
	a.engine = eng

	return nil
}

// close runs the registered closers in reverse order.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}
