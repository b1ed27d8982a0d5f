package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/store"
)

// RunDetail is a run summary with its flag counts.
type RunDetail struct {
	store.RunSummary
	Flags []store.FlagCount `json:"flags"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <db> [run-id]",
		Short: "List runs exported to a database",
		Long: `List the analysis runs exported with --export, oldest first. With a run id,
show that run's totals and how many unique programs carry each flag.

Examples:
  apiary runs runs.db
  apiary runs runs.db 0190a0b4-5c1e-7f3a-8d2e-1b2c3d4e5f60 --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return runRuns(rootOpts, args[0], runID, cmd)
		},
	}
	return cmd
}

func runRuns(opts *RootOptions, dbPath, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	// Open creates missing databases; a typo should not.
	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath), nil)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if runID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to list runs", err)
		}
		return formatter.Emit(runs, "", func(w io.Writer) error {
			if len(runs) == 0 {
				_, err := fmt.Fprintln(w, "No runs found.")
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %s  %s  players: %d, sessions: %d, programs: %d\n",
					r.ID, r.StartedAt, r.Source, r.Players, r.Sessions, r.Programs)
			}
			return nil
		})
	}

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return fail(formatter, ExitCommandError, ErrCodeUnknown, "unknown run: "+runID, err)
	}
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to read run", err)
	}
	flags, err := st.FlagCounts(ctx, runID)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "failed to count flags", err)
	}

	detail := RunDetail{RunSummary: run, Flags: flags}
	return formatter.Emit(detail, run.ID, func(w io.Writer) error {
		fmt.Fprintf(w, "Run %s\n", run.ID)
		fmt.Fprintf(w, "Source: %s\n", run.Source)
		fmt.Fprintf(w, "Started: %s\n", run.StartedAt)
		fmt.Fprintf(w, "Players: %d\nSessions: %d\nUnique programs: %d (named: %d)\n",
			run.Players, run.Sessions, run.Programs, run.NamedPrograms)
		fmt.Fprintf(w, "Skipped: %s\n", run.Skipped)
		if len(flags) > 0 {
			fmt.Fprintln(w, "Programs by flag:")
			for _, c := range flags {
				fmt.Fprintf(w, "  %s: %d\n", c.Flag, c.Programs)
			}
		}
		return nil
	})
}
