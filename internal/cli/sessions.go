package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/report"
	"github.com/roach88/apiary/internal/session"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Player string // only list this player's sessions
}

// PlayerSessions is one player's entry in the JSON output.
type PlayerSessions struct {
	Player   string             `json:"player"`
	Sessions []*session.Session `json:"sessions"`
	Skipped  session.Skipped    `json:"skipped"`
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions <export.csv>",
		Short: "List reconstructed play sessions",
		Long: `Reconstruct and list the play sessions of every player in a telemetry export.

A session is a contiguous run of records on one level. Each line shows its
level, waves, tries, time range, tradition, unit types and averages.

Examples:
  apiary sessions export.csv
  apiary sessions export.csv --player alice
  apiary sessions export.csv --format json --export runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Player, "player", "", "only list this player")

	return cmd
}

func runSessions(opts *SessionsOptions, exportPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := analyze(ctx, opts.RootOptions, exportPath, formatter, newLogger(opts.RootOptions, cmd))
	if err != nil {
		return err
	}

	players := a.Result.Players
	if opts.Player != "" {
		p, ok := a.Result.Player(opts.Player)
		if !ok {
			return fail(formatter, ExitCommandError, ErrCodeUnknown, "unknown player: "+opts.Player, nil)
		}
		players = []*pipeline.PlayerResult{p}
	}

	out := make([]PlayerSessions, 0, len(players))
	for _, p := range players {
		out = append(out, PlayerSessions{Player: p.Player, Sessions: p.Sessions, Skipped: p.Skipped})
	}
	return formatter.Emit(out, a.RunID, func(w io.Writer) error {
		tw := report.NewTextWriter(w)
		for _, p := range out {
			if err := tw.Sessions(p.Player, p.Sessions); err != nil {
				return err
			}
		}
		return nil
	})
}
