package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/telemetry"
)

// Scenario defines a reconstruction scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Options Options `yaml:"options,omitempty"`

	// Baselines maps version tag -> unit type -> stock program.
	Baselines map[string]map[string]*ir.Graph `yaml:"baselines,omitempty"`

	// Artifacts maps artifact id -> player program.
	Artifacts map[string]*ir.Graph `yaml:"artifacts,omitempty"`

	// Broken lists artifact ids whose document exists but cannot be read.
	Broken []string `yaml:"broken,omitempty"`

	// Records are the input, in the order the clock hands out defaults.
	Records []RecordStep `yaml:"records"`

	// Assertions validate the result.
	Assertions []Assertion `yaml:"assertions"`

	// ExpectError, when set, requires the run to fail with an error whose
	// message contains it.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Options configures the run.
type Options struct {
	MaxSessionHours float64  `yaml:"max_session_hours,omitempty"`
	BuggyVersions   []string `yaml:"buggy_versions,omitempty"`
	ResavePolicy    string   `yaml:"resave_policy,omitempty"`
}

// RecordStep is one activity record. Zero ordering fields are filled in
// by the harness clock.
type RecordStep struct {
	ID            string          `yaml:"id,omitempty"`
	Player        string          `yaml:"player,omitempty"`
	Timestamp     float64         `yaml:"ts,omitempty"`
	Wait          float64         `yaml:"wait,omitempty"`
	CreationIndex int64           `yaml:"cindex,omitempty"`
	MetricsID     int64           `yaml:"metrics_id,omitempty"`
	Version       string          `yaml:"version,omitempty"`
	Kind          string          `yaml:"kind"`
	Level         telemetry.Level `yaml:"level,omitempty"`
	Wave          int             `yaml:"wave,omitempty"`
	Try           int             `yaml:"try,omitempty"`
	Unit          string          `yaml:"unit,omitempty"`
	Tradition     string          `yaml:"tradition,omitempty"`
	Artifact      string          `yaml:"artifact,omitempty"`
	Damage        float64         `yaml:"damage,omitempty"`
	Enemies       int             `yaml:"enemies,omitempty"`
	Activations   int             `yaml:"activations,omitempty"`
	Manual        int             `yaml:"manual,omitempty"`
	Duration      float64         `yaml:"duration,omitempty"`
}

// Assertion validates the result of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Player scopes session_count, session and unresolved.
	Player string `yaml:"player,omitempty"`

	// Index selects a session of Player (used by session).
	Index int `yaml:"index,omitempty"`

	// Count is the expected number (session_count, program_count).
	Count int `yaml:"count,omitempty"`

	// Artifact selects a program (program, unresolved).
	Artifact string `yaml:"artifact,omitempty"`

	// Reason is the expected unresolved reason.
	Reason string `yaml:"reason,omitempty"`

	// Broken, when set, is the expected broken state of a program.
	Broken *bool `yaml:"broken,omitempty"`

	// Table and Where select one row of the export (final_state).
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values. Subset match: only the
	// listed fields are compared.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertSessionCount = "session_count"
	AssertSession      = "session"
	AssertSkipped      = "skipped"
	AssertProgram      = "program"
	AssertProgramCount = "program_count"
	AssertUnresolved   = "unresolved"
	AssertFinalState   = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Records) == 0 {
		return fmt.Errorf("records is required (at least one record)")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions is required (at least one assertion) unless expect_error is set")
	}
	if _, err := pipeline.ParseResavePolicy(s.Options.ResavePolicy); err != nil {
		return fmt.Errorf("options: %w", err)
	}

	for tag, units := range s.Baselines {
		for unit, g := range units {
			if err := validateGraph(g); err != nil {
				return fmt.Errorf("baselines[%s][%s]: %w", tag, unit, err)
			}
		}
	}
	for id, g := range s.Artifacts {
		if err := validateGraph(g); err != nil {
			return fmt.Errorf("artifacts[%s]: %w", id, err)
		}
	}

	for i, r := range s.Records {
		if r.Kind == "" {
			return fmt.Errorf("records[%d]: kind is required", i)
		}
		if _, err := telemetry.ParseKind(r.Kind); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		if r.Wait < 0 {
			return fmt.Errorf("records[%d]: wait must be non-negative", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateGraph(g *ir.Graph) error {
	if g == nil {
		return fmt.Errorf("graph is required")
	}
	return g.Validate()
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSessionCount, AssertProgramCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSession:
		if a.Player == "" {
			return fmt.Errorf("assertions[%d]: player is required for session", index)
		}
		if a.Index < 0 {
			return fmt.Errorf("assertions[%d]: index must be non-negative for session", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for session", index)
		}
	case AssertSkipped:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for skipped", index)
		}
	case AssertProgram:
		if a.Artifact == "" {
			return fmt.Errorf("assertions[%d]: artifact is required for program", index)
		}
		if len(a.Expect) == 0 && a.Broken == nil {
			return fmt.Errorf("assertions[%d]: expect or broken is required for program", index)
		}
	case AssertUnresolved:
		if a.Player == "" || a.Artifact == "" {
			return fmt.Errorf("assertions[%d]: player and artifact are required for unresolved", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
