package harness

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/session"
)

// Snapshot renders a run as canonical JSON for golden comparison.
//
// Program hashes and classification flags are left out: hashes change with
// any graph edit and flags are checked by program assertions. Floats are
// written as their shortest decimal strings since canonical JSON has no
// float form.
func Snapshot(name string, run *pipeline.Result) ([]byte, error) {
	players := make(ir.Array, 0, len(run.Players))
	for _, p := range run.Players {
		players = append(players, playerSnapshot(p))
	}
	obj := ir.Object{
		"scenario_name": ir.String(name),
		"skipped": ir.Object{
			"missing_wave": ir.Int(run.Skipped.MissingWave),
			"unknown":      ir.Int(run.Skipped.Unknown),
			"orphaned":     ir.Int(run.Skipped.Orphaned),
		},
		"players":         players,
		"unique_programs": ir.Int(len(run.Programs)),
		"broken_programs": ir.Int(run.BrokenPrograms()),
		"named_programs":  ir.Int(run.NamedPrograms),
	}
	return ir.MarshalCanonical(obj)
}

func playerSnapshot(p *pipeline.PlayerResult) ir.Object {
	sessions := make(ir.Array, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		sessions = append(sessions, sessionSnapshot(s))
	}
	programs := make(ir.Array, 0, len(p.Programs))
	for _, u := range p.Programs {
		programs = append(programs, ir.Object{
			"artifact_id": ir.String(u.ArtifactID),
			"unit_type":   ir.String(u.UnitType),
			"default":     ir.Bool(u.Default),
			"resave":      ir.Bool(u.Resave),
		})
	}
	unresolved := make(ir.Array, 0, len(p.Unresolved))
	for _, u := range p.Unresolved {
		unresolved = append(unresolved, ir.Object{
			"artifact_id": ir.String(u.ArtifactID),
			"reason":      ir.String(u.Reason),
		})
	}
	return ir.Object{
		"player":     ir.String(p.Player),
		"sessions":   sessions,
		"programs":   programs,
		"unresolved": unresolved,
	}
}

func sessionSnapshot(s *session.Session) ir.Object {
	waves := make(ir.Array, 0, len(s.WaveTries))
	for _, w := range s.Waves() {
		waves = append(waves, ir.Int(w))
	}
	return ir.Object{
		"level":                   ir.String(s.Level.String()),
		"start_wave":              ir.Int(s.StartWave),
		"current_wave":            ir.Int(s.CurrentWave),
		"waves":                   waves,
		"tries":                   ir.Int(s.Tries),
		"total_units":             ir.Int(s.TotalUnits),
		"total_programmed":        ir.Int(s.TotalProgrammed),
		"tradition":               ir.String(s.Tradition),
		"unit_types":              ir.Strings(s.UnitTypes),
		"artifacts":               ir.Strings(s.ArtifactIDs()),
		"versions":                ir.Strings(s.Versions),
		"records":                 ir.Int(s.Records),
		"saves":                   ir.Int(s.Saves),
		"first_program_wave":      ir.Int(s.FirstProgramWave),
		"start_ts":                decimal(s.StartTimestamp),
		"finish_ts":               decimal(s.FinishTimestamp),
		"avg_units_per_try":       decimal(s.AvgUnitsPerTry),
		"avg_programmed_fraction": decimal(s.AvgProgrammedFraction),
		"avg_damage_per_unit":     decimal(s.AvgDamagePerUnit),
		"avg_game_duration":       decimal(s.AvgGameDuration),
	}
}

func decimal(f float64) ir.String {
	return ir.String(strconv.FormatFloat(f, 'f', -1, 64))
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	if result.Run == nil {
		return fmt.Errorf("scenario %s has no run to snapshot", scenarioName)
	}
	data, err := Snapshot(scenarioName, result.Run)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
