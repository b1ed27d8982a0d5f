package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/config"
	"github.com/roach88/apiary/internal/graphml"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/report"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <baseline.graphml> <program.graphml>",
		Short: "Explain how a program differs from its stock program",
		Long: `Compare one program document with a baseline and list the added, missing
and changed nodes and edges together with the classification flags.

The marker and module dictionaries of --config are used for classification.

Examples:
  apiary inspect default_programs/1.6/Stapler.graphml programs/alice/art-1.graphml
  apiary inspect base.graphml mine.graphml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runInspect(opts *RootOptions, baselinePath, programPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}

	baseline, err := readProgram(formatter, baselinePath)
	if err != nil {
		return err
	}
	program, err := readProgram(formatter, programPath)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Comparing %s (%d nodes) with %s (%d nodes)",
		programPath, len(program.Nodes), baselinePath, len(baseline.Nodes))

	ins, err := report.Inspect(cfg.Classifier(oracle.NewStructural()), baseline, program)
	if err != nil {
		return fail(formatter, ExitFailure, ErrCodeProgram, "comparison failed", err)
	}

	return formatter.Emit(ins, "", func(w io.Writer) error {
		return report.NewTextWriter(w).Inspection(ins)
	})
}

func readProgram(f *OutputFormatter, path string) (*ir.Graph, error) {
	g, err := graphml.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("program not found: %s", path), err)
	}
	if err != nil {
		return nil, fail(f, ExitCommandError, ErrCodeProgram, fmt.Sprintf("unreadable program: %s", path), err)
	}
	return g, nil
}
