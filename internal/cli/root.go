package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Config    string // CUE configuration file
	Programs  string // overrides programs_dir
	Baselines string // overrides baselines_dir
	Players   string // overrides players_file
	Export    string // SQLite database receiving the run
	Metrics   string // run counters destination, "-" for stderr
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the apiary CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "apiary",
		Short: "Telemetry session and drone program analysis",
		Long: `Reconstruct play sessions from game telemetry exports and classify how
players changed the behavior programs of their units.

Analysis commands read a CSV telemetry export, load each deployed program
from the programs directory and compare it with the stock program of its
unit type from the baselines directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.Config, "config", "c", "", "CUE configuration file")
	pf.StringVar(&opts.Programs, "programs", "", "player programs directory (overrides config)")
	pf.StringVar(&opts.Baselines, "baselines", "", "stock programs directory (overrides config)")
	pf.StringVar(&opts.Players, "players", "", "player selection file (overrides config)")
	pf.StringVar(&opts.Export, "export", "", "export the run to this SQLite database")
	pf.StringVar(&opts.Metrics, "metrics", "", `write run counters to this file ("-" for stderr)`)

	// Add subcommands
	cmd.AddCommand(NewSessionsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewProgramsCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
