package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/report"
)

// ProgramsOptions holds flags for the programs command.
type ProgramsOptions struct {
	*RootOptions
	Player string
}

// NewProgramsCommand creates the programs command.
func NewProgramsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProgramsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "programs <export.csv>",
		Short: "Show a player's programs and their classification",
		Long: `Show the programs one player deployed: stock programs per unit type,
every unique program with its classification flags, artifacts whose program
could not be loaded, and how the player's second program differs from the
first.

Examples:
  apiary programs export.csv --player alice
  apiary programs export.csv --player alice --programs ./programs --baselines ./default_programs`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrograms(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Player, "player", "", "player to report (required)")
	_ = cmd.MarkFlagRequired("player")

	return cmd
}

func runPrograms(opts *ProgramsOptions, exportPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := analyze(ctx, opts.RootOptions, exportPath, formatter, newLogger(opts.RootOptions, cmd))
	if err != nil {
		return err
	}

	table, err := report.PlayerPrograms(a.Result, opts.Player)
	if errors.Is(err, report.ErrUnknownPlayer) {
		return fail(formatter, ExitCommandError, ErrCodeUnknown, "unknown player: "+opts.Player, err)
	}
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeGeneric, "failed to build program table", err)
	}

	return formatter.Emit(table, a.RunID, func(w io.Writer) error {
		return report.NewTextWriter(w).Programs(table)
	})
}
