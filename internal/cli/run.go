package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/harness"
	"github.com/rkallos/timeloom/internal/scenario"
	"github.com/rkallos/timeloom/internal/store"
	"github.com/rkallos/timeloom/internal/testutil"
	"github.com/rkallos/timeloom/internal/universe"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	MaxSteps  int
	RandomIDs bool
}

// RunSummary is the per-scenario payload reported after a run.
type RunSummary struct {
	Scenario string `json:"scenario"`
	Horizon  int64  `json:"horizon"`
	Objects  int    `json:"objects"`
	Events   int    `json:"events"`
	Saved    string `json:"saved,omitempty"` // snapshot name, when --db is set
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run scenarios to their horizon",
		Long: `Run one or more scenario files, driving every object to the scenario
horizon. With --db, each finished universe is saved as a snapshot named
after its scenario, ready for replay and trace.

Examples:
  timeloom run demo.yaml
  timeloom run --db ./timeloom.db demo.yaml other.yaml
  timeloom run demo.yaml --verbose --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for snapshots")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "per-object step quota (0 = default)")
	cmd.Flags().BoolVar(&opts.RandomIDs, "random-ids", false, "name spawned objects with UUIDv7 ids instead of a fixed sequence (breaks replay)")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = newLogger(true)
	}

	scenarios := make([]*scenario.Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := scenario.Load(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		scenarios = append(scenarios, s)
	}
	formatter.VerboseLog("loaded %d scenario(s)", len(scenarios))

	var st *store.Store
	if opts.Database != "" {
		var err error
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	summaries := make([]RunSummary, 0, len(scenarios))
	for _, s := range scenarios {
		var gen scenario.IDGenerator = testutil.NewFixedIDGenerator()
		if opts.RandomIDs {
			gen = testutil.UUIDGenerator{}
		}
		u, err := s.Build(gen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build scenario", err)
		}
		runOpts := []universe.RunOption{
			universe.WithHorizon(event.Time(s.Horizon)),
			universe.WithLogger(logger.With("scenario", s.Name)),
		}
		if opts.MaxSteps > 0 {
			runOpts = append(runOpts, universe.WithMaxSteps(opts.MaxSteps))
		}
		if err := u.Run(ctx, runOpts...); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s failed", s.Name), err)
		}

		result := harness.Collect(s, u)
		summary := RunSummary{
			Scenario: result.Scenario,
			Horizon:  result.Horizon,
			Objects:  result.Objects,
			Events:   len(result.Trace),
		}
		if st != nil {
			if err := store.SaveUniverse(ctx, st, s.Name, event.Time(s.Horizon), u); err != nil {
				return WrapExitError(ExitCommandError, "failed to save snapshot", err)
			}
			summary.Saved = s.Name
		}
		summaries = append(summaries, summary)
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s: %d object(s), %d event(s), horizon %d", s.Scenario, s.Objects, s.Events, s.Horizon)
		if s.Saved != "" {
			line += fmt.Sprintf(", saved as %q", s.Saved)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// signalContext derives a context cancelled by SIGINT/SIGTERM, rooted at the
// command's context so tests can cancel runs directly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
