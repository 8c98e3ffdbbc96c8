package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vacc/internal/lattice"
	"github.com/roach88/vacc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	RunID    string
	Limit    int
}

// HistoryResult is the cycle history of one run.
type HistoryResult struct {
	Run    lattice.RunRecord     `json:"run"`
	Total  int64                 `json:"total"`
	Failed int64                 `json:"failed"`
	Cycles []lattice.CycleRecord `json:"cycles"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded simulation cycles",
		Long: `Show the cycles recorded in a history database.

Without --run the most recently started run is shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite history database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of most recent cycles to show (0 for all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Opening creates a missing database; history only reads existing ones.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "database not found: "+opts.Database, err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "opening history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var run lattice.RunRecord
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no such run", err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "reading run", err)
	}

	result := HistoryResult{Run: run}
	if result.Cycles, err = st.ReadCycles(ctx, run.ID, opts.Limit); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "reading cycles", err)
	}
	if result.Total, result.Failed, err = st.CycleStats(ctx, run.ID); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "reading cycle stats", err)
	}

	return formatter.Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Run %s (layout %s, %d elements, started %s)\n",
			run.ID, run.Layout, run.Elements, run.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Cycles: %d total, %d failed\n\n", result.Total, result.Failed)
		if len(result.Cycles) == 0 {
			return nil
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tSTARTED\tDURATION\tREADBACKS\tSTATUS")
		for _, c := range result.Cycles {
			status := "ok"
			if c.Failed() {
				status = c.Error
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
				c.Seq, c.StartedAt.Format(time.RFC3339), c.Duration.Round(time.Millisecond), len(c.Readbacks), status)
		}
		return tw.Flush()
	})
}
