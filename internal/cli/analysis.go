package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/config"
	"github.com/roach88/apiary/internal/graphml"
	"github.com/roach88/apiary/internal/ingest"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/store"
	"github.com/roach88/apiary/internal/telemetry"
)

// analysis is one export run through the pipeline.
type analysis struct {
	Config     *config.Config
	Classifier *classify.Classifier
	Batch      *ingest.Batch
	Result     *pipeline.Result
	// RunID is set when the result was exported with --export.
	RunID string
}

// newFormatter builds the output formatter of a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger returns the diagnostic logger of a command. Logs always go to
// stderr so JSON output stays parseable.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// commandContext returns the command context, cancelled on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// fail reports an error in the configured format and returns it with its exit
// code.
func fail(f *OutputFormatter, exitCode int, errCode, message string, err error) error {
	details := any(nil)
	if err != nil {
		details = err.Error()
	}
	_ = f.Error(errCode, message, details)
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s", errCode, message), err)
}

// loadConfig reads the configuration and applies path flags over it.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	for _, kv := range []struct {
		dst *string
		val string
	}{
		{&cfg.ProgramsDir, opts.Programs},
		{&cfg.BaselinesDir, opts.Baselines},
		{&cfg.PlayersFile, opts.Players},
	} {
		if kv.val != "" {
			*kv.dst = kv.val
		}
	}
	return cfg, nil
}

// analyze reads an export, reconstructs sessions, classifies programs and,
// when requested, exports the result and dumps the run counters.
func analyze(ctx context.Context, opts *RootOptions, exportPath string, f *OutputFormatter, logger *slog.Logger) (*analysis, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		var ce *config.Error
		if errors.As(err, &ce) {
			return nil, fail(f, ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fail(f, ExitCommandError, ErrCodeNotFound, "configuration file not found", err)
		}
		return nil, fail(f, ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}

	inOpts := cfg.IngestOptions()
	if cfg.PlayersFile != "" {
		filter, err := ingest.LoadPlayerFilter(cfg.PlayersFile)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fail(f, ExitCommandError, ErrCodeNotFound, "player list not found", err)
			}
			return nil, fail(f, ExitCommandError, ErrCodeConfig, "invalid player list", err)
		}
		f.VerboseLog("Selecting %d player(s) from %s", filter.Len(), cfg.PlayersFile)
		inOpts.Filter = filter
	}

	logger.Info("reading telemetry export", "path", exportPath)
	batch, err := ingest.NewReader(inOpts, logger).ReadFile(exportPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("telemetry export not found: %s", exportPath), err)
		}
		if telemetry.IsInputError(err) {
			return nil, fail(f, ExitFailure, ErrCodeInput, "telemetry export rejected", err)
		}
		return nil, fail(f, ExitCommandError, ErrCodeGeneric, "failed to read telemetry export", err)
	}

	cls := cfg.Classifier(oracle.NewStructural())
	reg := registry.New(
		graphml.DirLoader{Root: cfg.ProgramsDir},
		graphml.DirLoader{Root: cfg.BaselinesDir},
		cfg.VersionRules,
	)
	promReg := prometheus.NewRegistry()
	p := pipeline.New(reg, cls, cfg.PipelineOptions(), pipeline.NewMetrics(promReg), logger)

	res, err := p.Run(ctx, batch.Players)
	if err != nil {
		if telemetry.IsInputError(err) {
			return nil, fail(f, ExitFailure, ErrCodeInput, "telemetry export rejected", err)
		}
		return nil, fail(f, ExitFailure, ErrCodeGeneric, "analysis failed", err)
	}

	a := &analysis{Config: cfg, Classifier: cls, Batch: batch, Result: res}

	if opts.Export != "" {
		runID, err := exportRun(ctx, opts.Export, exportPath, res)
		if err != nil {
			return nil, fail(f, ExitCommandError, ErrCodeWriteFailed, "failed to export run", err)
		}
		logger.Info("run exported", "db", opts.Export, "run_id", runID)
		a.RunID = runID
	}

	if opts.Metrics != "" {
		if err := dumpMetrics(promReg, opts.Metrics, f.GetErrWriter()); err != nil {
			return nil, fail(f, ExitCommandError, ErrCodeWriteFailed, "failed to write metrics", err)
		}
	}
	return a, nil
}

// exportRun writes res to the SQLite database at dbPath as a new run.
func exportRun(ctx context.Context, dbPath, source string, res *pipeline.Result) (string, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run := store.NewRun(source, time.Now().UTC())
	if err := st.WriteRun(ctx, run, res); err != nil {
		return "", err
	}
	return run.ID, nil
}

// dumpMetrics writes the gathered counters in the Prometheus text format to
// path, or to stderr when path is "-".
func dumpMetrics(g prometheus.Gatherer, path string, stderr io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	w := stderr
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
