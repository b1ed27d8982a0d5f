package config

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/caarlos0/env/v11"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ingest"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/session"
	"github.com/roach88/apiary/internal/telemetry"
)

//go:embed schema.cue
var schemaSource string

// Config is the analysis configuration.
type Config struct {
	Workers          int     `json:"workers"`
	ProgramsDir      string  `json:"programs_dir"`
	BaselinesDir     string  `json:"baselines_dir"`
	PlayersFile      string  `json:"players_file"`
	Delimiter        string  `json:"delimiter"`
	FinalLevelPolicy string  `json:"final_level_policy"`
	ResavePolicy     string  `json:"resave_policy"`
	MaxSessionHours  float64 `json:"max_session_hours"`

	BuggyVersions []string              `json:"buggy_versions"`
	VersionRules  registry.VersionRules `json:"version_rules"`

	// Markers and Modules replace the built-in dictionaries when set.
	Markers []classify.Category `json:"markers"`
	Modules []classify.Category `json:"modules"`
	Names   classify.NameRules  `json:"names"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProgramsDir:      "programs",
		BaselinesDir:     "default_programs",
		Delimiter:        ",",
		FinalLevelPolicy: string(telemetry.LevelPolicyReject),
		ResavePolicy:     string(pipeline.ResaveCollapse),
		MaxSessionHours:  session.DefaultMaxSessionLength / 3600,
		BuggyVersions:    slices.Clone(session.DefaultBuggyVersions),
		VersionRules:     slices.Clone(registry.DefaultVersionRules),
		Names:            classify.DefaultNameRules,
	}
}

// envOverrides are the settings the environment may override. Unset
// variables leave the field empty.
type envOverrides struct {
	Workers          int    `env:"APIARY_WORKERS"`
	ProgramsDir      string `env:"APIARY_PROGRAMS_DIR"`
	BaselinesDir     string `env:"APIARY_BASELINES_DIR"`
	PlayersFile      string `env:"APIARY_PLAYERS_FILE"`
	FinalLevelPolicy string `env:"APIARY_FINAL_LEVEL_POLICY"`
	ResavePolicy     string `env:"APIARY_RESAVE_POLICY"`
}

// Error is a configuration error with its source position when known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// formatCUEError reports the first CUE error with its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	var pos token.Pos
	if ps := errors.Positions(first); len(ps) > 0 {
		pos = ps[0]
	}
	return &Error{Message: first.Error(), Pos: pos}
}

// Load reads the configuration file at path, then applies environment
// overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(cfg, data, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes CUE source over the defaults without consulting the
// environment.
func Parse(data []byte, filename string) (*Config, error) {
	cfg := Default()
	if err := decode(cfg, data, filename); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(cfg *Config, data []byte, filename string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return formatCUEError(err)
	}
	u := def.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	if err := u.Decode(cfg); err != nil {
		return formatCUEError(err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	for _, kv := range []struct {
		dst *string
		val string
	}{
		{&c.ProgramsDir, o.ProgramsDir},
		{&c.BaselinesDir, o.BaselinesDir},
		{&c.PlayersFile, o.PlayersFile},
		{&c.FinalLevelPolicy, o.FinalLevelPolicy},
		{&c.ResavePolicy, o.ResavePolicy},
	} {
		if kv.val != "" {
			*kv.dst = kv.val
		}
	}
	return nil
}

// Validate checks values the schema cannot see, including environment
// overrides.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return &Error{Message: fmt.Sprintf("workers: must be non-negative, got %d", c.Workers)}
	}
	switch telemetry.LevelPolicy(c.FinalLevelPolicy) {
	case telemetry.LevelPolicyReject, telemetry.LevelPolicyClamp:
	default:
		return &Error{Message: fmt.Sprintf("final_level_policy: unknown policy %q", c.FinalLevelPolicy)}
	}
	if _, err := pipeline.ParseResavePolicy(c.ResavePolicy); err != nil {
		return &Error{Message: "resave_policy: " + err.Error()}
	}
	if len([]rune(c.Delimiter)) != 1 {
		return &Error{Message: fmt.Sprintf("delimiter: want a single character, got %q", c.Delimiter)}
	}
	return nil
}

// SessionOptions returns the reconstruction options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		MaxSessionLength: c.MaxSessionHours * 3600,
		BuggyVersions:    slices.Clone(c.BuggyVersions),
	}
}

// PipelineOptions returns the run options.
func (c *Config) PipelineOptions() pipeline.Options {
	resave, _ := pipeline.ParseResavePolicy(c.ResavePolicy)
	return pipeline.Options{
		Workers: c.Workers,
		Session: c.SessionOptions(),
		Resave:  resave,
	}
}

// IngestOptions returns the export reader options. The player filter is
// loaded separately.
func (c *Config) IngestOptions() ingest.Options {
	return ingest.Options{
		Comma:       []rune(c.Delimiter)[0],
		LevelPolicy: telemetry.LevelPolicy(c.FinalLevelPolicy),
	}
}

// Classifier builds a classifier over o with the configured dictionaries.
func (c *Config) Classifier(o oracle.Oracle) *classify.Classifier {
	cls := classify.New(o)
	if len(c.Markers) > 0 {
		cls.Markers = classify.NewKeywordMatcher(c.Markers...)
	}
	if len(c.Modules) > 0 {
		cls.Modules = classify.NewKeywordMatcher(c.Modules...)
	}
	cls.Names = c.Names
	return cls
}
