package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rkallos/timeloom/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Snapshot string
	Object   string // optional filter
}

// TraceLine is one transition in the printed timeline.
type TraceLine struct {
	Object    string `json:"object"`
	When      int64  `json:"when"`
	State     *int64 `json:"state"`
	Destroyed bool   `json:"destroyed,omitempty"`
}

// TraceStats summarizes a snapshot timeline.
type TraceStats struct {
	Objects     int `json:"objects"`
	Transitions int `json:"transitions"`
	Destroyed   int `json:"destroyed"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Snapshot string      `json:"snapshot"`
	Timeline []TraceLine `json:"timeline"`
	Stats    TraceStats  `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the timeline of a saved snapshot",
		Long: `Print the transition timeline of a snapshot: every object's state
changes in time order, destruction events included.

Examples:
  timeloom trace --db ./timeloom.db --snapshot demo
  timeloom trace --db ./timeloom.db --snapshot demo --object tick
  timeloom trace --db ./timeloom.db --snapshot demo --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot name (required)")
	_ = cmd.MarkFlagRequired("snapshot")
	cmd.Flags().StringVar(&opts.Object, "object", "", "only show this object")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	// Rules are behavior, not data; a read-only trace decodes without them.
	u, err := store.LoadUniverse[int64](ctx, st, opts.Snapshot, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	result := TraceResult{Snapshot: opts.Snapshot}
	for _, id := range u.Objects() {
		if opts.Object != "" && string(id) != opts.Object {
			continue
		}
		h, ok := u.History(id)
		if !ok {
			continue
		}
		result.Stats.Objects++
		for _, ts := range h.PreviousTransitions() {
			result.Timeline = append(result.Timeline, TraceLine{
				Object: string(id),
				When:   int64(ts.When),
				State:  ts.State,
			})
		}
		last := h.LastEvent()
		result.Timeline = append(result.Timeline, TraceLine{
			Object:    string(id),
			When:      int64(last.When()),
			State:     last.State(),
			Destroyed: last.Destroyed(),
		})
		if last.Destroyed() {
			result.Stats.Destroyed++
		}
	}
	if opts.Object != "" && result.Stats.Objects == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("object %q not in snapshot %q", opts.Object, opts.Snapshot))
	}
	sort.Slice(result.Timeline, func(i, j int) bool {
		if result.Timeline[i].When != result.Timeline[j].When {
			return result.Timeline[i].When < result.Timeline[j].When
		}
		return result.Timeline[i].Object < result.Timeline[j].Object
	})
	result.Stats.Transitions = len(result.Timeline)

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	for _, line := range result.Timeline {
		if line.Destroyed {
			fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-16s destroyed\n", line.When, line.Object)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-16s %d\n", line.When, line.Object, *line.State)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d object(s), %d transition(s), %d destroyed\n",
		result.Stats.Objects, result.Stats.Transitions, result.Stats.Destroyed)
	return nil
}
