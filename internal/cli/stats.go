package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/report"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Top       int  // popular programs listed
	PerPlayer bool // include per-player summaries in text output
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <export.csv>",
		Short: "Aggregate statistics over all sessions",
		Long: `Aggregate statistics of a telemetry export: sessions by level, tradition
and unit type, waves, units, programmed units, unique programs, flag counts
and the most popular programs.

Examples:
  apiary stats export.csv
  apiary stats export.csv --top 20 --per-player
  apiary stats export.csv --metrics -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Top, "top", 10, "number of popular programs to list")
	cmd.Flags().BoolVar(&opts.PerPlayer, "per-player", false, "also summarize each player")

	return cmd
}

func runStats(opts *StatsOptions, exportPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := analyze(ctx, opts.RootOptions, exportPath, formatter, newLogger(opts.RootOptions, cmd))
	if err != nil {
		return err
	}

	st := report.Aggregate(a.Result, opts.Top)
	return formatter.Emit(st, a.RunID, func(w io.Writer) error {
		tw := report.NewTextWriter(w)
		if err := tw.Stats(st); err != nil {
			return err
		}
		if opts.PerPlayer {
			return tw.Players(st.PerPlayer)
		}
		return nil
	})
}
