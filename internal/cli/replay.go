package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rkallos/timeloom/internal/event"
	"github.com/rkallos/timeloom/internal/scenario"
	"github.com/rkallos/timeloom/internal/store"
	"github.com/rkallos/timeloom/internal/testutil"
	"github.com/rkallos/timeloom/internal/universe"
	"github.com/rkallos/timeloom/internal/wire"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Snapshot string
}

// ReplayResult reports a determinism check: the scenario re-run from scratch
// against the snapshot it originally produced.
type ReplayResult struct {
	Scenario      string   `json:"scenario"`
	Snapshot      string   `json:"snapshot"`
	Deterministic bool     `json:"deterministic"`
	Divergences   []string `json:"divergences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Re-run a scenario and verify it matches its snapshot",
		Long: `Re-run a scenario from scratch and compare every object's history
hash against the saved snapshot. Matching hashes prove the run is
deterministic; any divergence is reported per object.

Examples:
  timeloom replay --db ./timeloom.db demo.yaml
  timeloom replay --db ./timeloom.db --snapshot run-3 demo.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot name (defaults to the scenario name)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	name := opts.Snapshot
	if name == "" {
		name = s.Name
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	saved, err := st.HistoryHashes(ctx, name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	if len(saved) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("snapshot %q has no histories", name))
	}
	formatter.VerboseLog("snapshot %q holds %d histories", name, len(saved))

	u, err := s.Build(testutil.NewFixedIDGenerator())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build scenario", err)
	}
	if err := u.Run(ctx, universe.WithHorizon(event.Time(s.Horizon))); err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s failed", s.Name), err)
	}

	result := ReplayResult{Scenario: s.Name, Snapshot: name, Deterministic: true}
	fresh := make(map[string]string, u.Len())
	for _, id := range u.Objects() {
		h, ok := u.History(id)
		if !ok {
			continue
		}
		w, err := wire.EncodeHistory(h)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode history", err)
		}
		hash, err := wire.HistoryHash(w)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to hash history", err)
		}
		fresh[string(id)] = hash
	}

	for id, want := range saved {
		got, ok := fresh[id]
		switch {
		case !ok:
			result.Divergences = append(result.Divergences, fmt.Sprintf("object %s: in snapshot but not in replay", id))
		case got != want:
			result.Divergences = append(result.Divergences, fmt.Sprintf("object %s: history hash changed", id))
		}
	}
	for id := range fresh {
		if _, ok := saved[id]; !ok {
			result.Divergences = append(result.Divergences, fmt.Sprintf("object %s: in replay but not in snapshot", id))
		}
	}
	sort.Strings(result.Divergences)
	result.Deterministic = len(result.Divergences) == 0

	if result.Deterministic {
		return formatter.Successf(result, "replay of %s matches snapshot %q (%d histories)", s.Name, name, len(fresh))
	}
	if err := formatter.Failure(fmt.Sprintf("replay of %s diverges from snapshot %q", s.Name, name), result.Divergences); err != nil {
		return err
	}
	return NewExitError(ExitFailure, "replay diverged")
}
