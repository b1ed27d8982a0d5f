package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/session"
	"github.com/roach88/apiary/internal/store"
	"github.com/roach88/apiary/internal/telemetry"
	"github.com/roach88/apiary/internal/testutil"
)

// Default record values.
const (
	DefaultPlayer  = "player"
	DefaultVersion = "1.6.2"

	clockStart = 1000
	clockStep  = 10
)

// scenarioRunTime stamps every scenario export so exports are reproducible.
var scenarioRunTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs scenarios with a deterministic clock against a fresh
// in-memory export.
type Harness struct {
	logger  *slog.Logger
	metrics *pipeline.Metrics
}

// New creates a harness. A nil logger discards pipeline logs.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{
		logger:  logger,
		metrics: pipeline.NewMetrics(prometheus.NewRegistry()),
	}
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(context.Background(), scenario)
}

// Run executes a scenario and returns the result.
//
// An error is returned when the scenario cannot be executed at all: bad
// records, a failing run that was not expected, or an export failure.
// Failed assertions are reported in the result instead.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	records, err := BuildRecords(scenario.Records)
	if err != nil {
		return nil, err
	}
	p, err := h.pipeline(scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	run, err := p.Run(ctx, records)
	if scenario.ExpectError != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected error containing %q, run succeeded", scenario.ExpectError))
		case !strings.Contains(err.Error(), scenario.ExpectError):
			result.AddError(fmt.Sprintf("expected error containing %q, got %q", scenario.ExpectError, err.Error()))
		}
		result.Run = run
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run scenario %s: %w", scenario.Name, err)
	}
	result.Run = run

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	exported := store.Run{ID: RunID(scenario), StartedAt: scenarioRunTime, Source: scenario.Name}
	if err := st.WriteRun(ctx, exported, run); err != nil {
		return nil, fmt.Errorf("export scenario %s: %w", scenario.Name, err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{Store: st, Ctx: ctx, RunID: exported.ID}) {
		result.AddError(msg)
	}
	return result, nil
}

// RunID is the run id a scenario is exported under.
func RunID(scenario *Scenario) string {
	return "scenario:" + scenario.Name
}

func (h *Harness) pipeline(scenario *Scenario) (*pipeline.Pipeline, error) {
	src := &registry.MemorySource{
		Artifacts: scenario.Artifacts,
		Baselines: scenario.Baselines,
		Broken:    make(map[string]bool, len(scenario.Broken)),
	}
	if src.Artifacts == nil {
		src.Artifacts = map[string]*ir.Graph{}
	}
	for _, id := range scenario.Broken {
		src.Broken[id] = true
	}

	resave, err := pipeline.ParseResavePolicy(scenario.Options.ResavePolicy)
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		// One worker keeps log output in player order.
		Workers: 1,
		Session: session.Options{
			MaxSessionLength: scenario.Options.MaxSessionHours * 3600,
			BuggyVersions:    scenario.Options.BuggyVersions,
		},
		Resave: resave,
	}
	reg := registry.New(src, src, registry.DefaultVersionRules)
	cls := classify.New(oracle.NewStructural())
	return pipeline.New(reg, cls, opts, h.metrics, h.logger), nil
}

// BuildRecords turns record steps into per-player records, filling in
// defaults from a deterministic clock.
func BuildRecords(steps []RecordStep) (map[string][]telemetry.Record, error) {
	clock := testutil.NewDeterministicClock(clockStart, clockStep)
	out := make(map[string][]telemetry.Record)
	var waited float64

	for i, step := range steps {
		kind, err := telemetry.ParseKind(step.Kind)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		seq, ts := clock.Next()
		waited += step.Wait

		rec := telemetry.Record{
			ID:                step.ID,
			Player:            step.Player,
			Timestamp:         step.Timestamp,
			CreationIndex:     step.CreationIndex,
			MetricsID:         step.MetricsID,
			AppVersion:        step.Version,
			Kind:              kind,
			Level:             step.Level,
			Wave:              step.Wave,
			Try:               step.Try,
			UnitType:          step.Unit,
			Tradition:         step.Tradition,
			ManualActivations: step.Manual,
			Duration:          step.Duration,
		}
		if rec.Player == "" {
			rec.Player = DefaultPlayer
		}
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("%s-%03d", rec.Player, seq)
		}
		if rec.Timestamp == 0 {
			rec.Timestamp = ts + waited
		}
		if rec.CreationIndex == 0 {
			rec.CreationIndex = seq
		}
		if rec.MetricsID == 0 {
			rec.MetricsID = seq * 10
		}
		if rec.AppVersion == "" {
			rec.AppVersion = DefaultVersion
		}
		if step.Artifact != "" {
			rec.Artifact = &telemetry.ArtifactRef{
				ID:                 step.Artifact,
				Checksum:           "cs-" + step.Artifact,
				Damage:             step.Damage,
				EnemiesDestroyed:   step.Enemies,
				ProgramActivations: step.Activations,
			}
		}
		if step.Damage != 0 {
			rec.Metrics = map[string]float64{telemetry.MetricDroneDamage: step.Damage}
		}
		out[rec.Player] = append(out[rec.Player], rec)
	}
	return out, nil
}
