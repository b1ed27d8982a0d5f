package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/telemetry"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts := cfg.PipelineOptions()
	assert.Equal(t, pipeline.ResaveCollapse, opts.Resave)
	assert.Equal(t, 6*3600.0, opts.Session.MaxSessionLength)
	assert.Equal(t, []string{"1.5.3"}, opts.Session.BuggyVersions)

	in := cfg.IngestOptions()
	assert.Equal(t, ',', in.Comma)
	assert.Equal(t, telemetry.LevelPolicyReject, in.LevelPolicy)
	assert.Equal(t, "1.6", cfg.VersionRules.Tag("1.7.1"))
}

func TestParse(t *testing.T) {
	src := `
workers:            4
delimiter:          ";"
final_level_policy: "clamp"
resave_policy:      "distinct"
max_session_hours:  2
version_rules: [{prefix: "2.0", tag: "2.0"}]
markers: [{name: "beep", patterns: ["Пищалка", "Beeper"]}]
names: {default: "State", basic: ["Scan"]}
`
	cfg, err := Parse([]byte(src), "apiary.cue")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, ';', cfg.IngestOptions().Comma)
	assert.Equal(t, telemetry.LevelPolicyClamp, cfg.IngestOptions().LevelPolicy)
	assert.Equal(t, pipeline.ResaveDistinct, cfg.PipelineOptions().Resave)
	assert.Equal(t, 7200.0, cfg.SessionOptions().MaxSessionLength)
	assert.Equal(t, registry.VersionRules{{Prefix: "2.0", Tag: "2.0"}}, cfg.VersionRules)
	// Untouched fields keep their defaults.
	assert.Equal(t, "programs", cfg.ProgramsDir)
	assert.Equal(t, []string{"1.5.3"}, cfg.BuggyVersions)

	cls := cfg.Classifier(oracle.NewStructural())
	assert.Equal(t, []string{"beep"}, cls.Markers.Categories())
	assert.Len(t, cls.Modules.Categories(), len(classify.DefaultModules))
	assert.Equal(t, classify.NameRules{Default: "State", Basic: []string{"Scan"}}, cls.Names)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown field", `wrokers: 3`},
		{"negative workers", `workers: -1`},
		{"unknown policy", `final_level_policy: "ignore"`},
		{"bad delimiter", `delimiter: "|"`},
		{"empty category name", `modules: [{name: "", patterns: []}]`},
		{"syntax", `workers: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "apiary.cue")
			require.Error(t, err)
			var ce *Error
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestParse_ErrorNamesField(t *testing.T) {
	_, err := Parse([]byte("workers: 2\nresave_policy: \"merge\"\n"), "apiary.cue")
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "resave_policy")
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apiary.cue")
	require.NoError(t, os.WriteFile(path, []byte(`programs_dir: "from-file"
workers: 2
`), 0o644))

	t.Setenv("APIARY_WORKERS", "9")
	t.Setenv("APIARY_BASELINES_DIR", "/srv/baselines")
	t.Setenv("APIARY_RESAVE_POLICY", "distinct")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)
	assert.Equal(t, "from-file", cfg.ProgramsDir)
	assert.Equal(t, "/srv/baselines", cfg.BaselinesDir)
	assert.Equal(t, "distinct", cfg.ResavePolicy)
}

func TestLoad_EnvErrors(t *testing.T) {
	t.Run("unparsable", func(t *testing.T) {
		t.Setenv("APIARY_WORKERS", "lots")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse env:")
	})
	t.Run("invalid policy", func(t *testing.T) {
		t.Setenv("APIARY_FINAL_LEVEL_POLICY", "ignore")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "final_level_policy")
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
