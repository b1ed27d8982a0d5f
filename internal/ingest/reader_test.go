package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/apiary/internal/telemetry"
)

const header = "id,created_at,player,app_version,context,metrics_id,metrics_key,metrics_value,artefact,checksum\n"

// export is a small two-player export: alice deploys a programmed Stapler on
// Level 1, picks a tradition and finishes the wave; bob only opens the
// editor.
const export = header +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,creation_index,1,art-1,ck-1\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,wave,0,,\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,last_wave,4,,\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,drone_damage,2.5,,\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,drone_damage,1.5,,\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,enemies_destroyed,3,,\n" +
	"a1,2023-03-01 12:00:00.250000+03,alice,1.6.2,Level_1_Stapler,11,program_activation,7,,\n" +
	"a2,2023-03-01 12:00:05+03,alice,1.6.2,Level_1_Beekeeper,12,creation_index,2,,\n" +
	"a2,2023-03-01 12:00:05+03,alice,1.6.2,Level_1_Beekeeper,12,wave,0,,\n" +
	"a3,2023-03-01 12:01:00+03,alice,1.6.2,Итоги волны 1,13,creation_index,3,,\n" +
	"a3,2023-03-01 12:01:00+03,alice,1.6.2,Итоги волны 1,13,level,1,,\n" +
	"a3,2023-03-01 12:01:00+03,alice,1.6.2,Итоги волны 1,13,wave,0,,\n" +
	"a3,2023-03-01 12:01:00+03,alice,1.6.2,Итоги волны 1,13,try,2,,\n" +
	"b1,2023-03-01 13:00:00+03,bob,1.7.0,Оpening_editor,21,creation_index,1,,\n" +
	"b2,2023-03-01 13:00:30+03,bob,1.7.0,Closing_editor,22,creation_index,2,,\n" +
	"b2,2023-03-01 13:00:30+03,bob,1.7.0,Closing_editor,22,editing_time,30,,\n" +
	"b3,2023-03-01 13:00:30+03,bob,1.7.0,Closing_editor,,editing_time,30,,\n" +
	"b4,yesterday,bob,1.7.0,Closing_editor,23,editing_time,30,,\n"

func read(t *testing.T, data string, opts Options) *Batch {
	t.Helper()
	b, err := NewReader(opts, nil).Read(strings.NewReader(data))
	require.NoError(t, err)
	return b
}

func TestRead_Export(t *testing.T) {
	b := read(t, export, Options{})

	assert.Equal(t, Stats{Lines: 19, Rows: 16, EmptyMetrics: 1, BadDates: 1, Activities: 5}, b.Stats)
	require.Len(t, b.Players, 2)

	alice := b.Players["alice"]
	require.Len(t, alice, 3)

	unit := alice[0]
	assert.Equal(t, "a1", unit.ID)
	assert.Equal(t, telemetry.KindUnitEvent, unit.Kind)
	assert.Equal(t, telemetry.Level1, unit.Level)
	assert.Equal(t, "Stapler", unit.UnitType)
	assert.Equal(t, 1, unit.Wave, "first wave metric wins and is one-based")
	assert.Equal(t, int64(1), unit.CreationIndex)
	assert.Equal(t, int64(11), unit.MetricsID)
	assert.Equal(t, "1.6.2", unit.AppVersion)
	// 2023-03-01 09:00:00.25 UTC
	assert.InDelta(t, 1677661200.25, unit.Timestamp, 1e-6)
	require.NotNil(t, unit.Artifact)
	assert.Equal(t, telemetry.ArtifactRef{
		ID:                 "art-1",
		Checksum:           "ck-1",
		Damage:             4,
		EnemiesDestroyed:   3,
		ProgramActivations: 7,
	}, *unit.Artifact)
	v, ok := unit.Metric(telemetry.MetricDroneDamage)
	require.True(t, ok)
	assert.Equal(t, 1.5, v, "the metrics map keeps the last value of a key")

	trad := alice[1]
	assert.Equal(t, telemetry.KindTraditionEvent, trad.Kind)
	assert.Equal(t, "Beekeeper", trad.Tradition)

	final := alice[2]
	assert.Equal(t, telemetry.KindFinalResult, final.Kind)
	assert.Equal(t, telemetry.Level1, final.Level)
	assert.Equal(t, 2, final.Try)
	assert.Equal(t, 1, final.Wave)

	bob := b.Players["bob"]
	require.Len(t, bob, 2)
	assert.Equal(t, telemetry.KindStartEdit, bob[0].Kind)
	assert.Equal(t, telemetry.KindFinishEdit, bob[1].Kind)
	assert.Equal(t, 30.0, bob[1].Duration)
}

func TestRead_MissingCreationIndexSortsFirst(t *testing.T) {
	data := header +
		"b1,2023-03-01 13:00:00+03,bob,1.7.0,Оpening_editor,21,creation_index,1,,\n" +
		"b2,2023-03-01 13:00:30+03,bob,1.7.0,Closing_editor,22,editing_time,30,,\n"
	bob := read(t, data, Options{}).Players["bob"]
	require.Len(t, bob, 2)
	assert.Equal(t, "b2", bob[0].ID)
	assert.Equal(t, int64(0), bob[0].CreationIndex)
	assert.Equal(t, 30.0, bob[0].Duration)
	assert.Equal(t, "b1", bob[1].ID)
}

func TestRead_RecordsAreSorted(t *testing.T) {
	data := header +
		"x2,2023-03-01 12:00:10+03,p,1.6.2,Level_2_Smoker,2,wave,1,,\n" +
		"x1,2023-03-01 12:00:00+03,p,1.6.2,Level_2_Smoker,1,wave,1,,\n"
	b := read(t, data, Options{})
	recs := b.Players["p"]
	require.Len(t, recs, 2)
	assert.Equal(t, "x1", recs[0].ID)
	assert.Equal(t, 2, recs[0].Wave)
	assert.True(t, telemetry.IsSorted(recs))
}

func TestRead_PolygonContexts(t *testing.T) {
	data := header +
		"p1,2023-03-01 12:00:00+03,p,1.6.2,Polygon_Autoborder,1,wave,0,,\n" +
		"p2,2023-03-01 12:00:01+03,p,1.6.2,Polygon_Smoker,2,wave,0,,\n" +
		"p3,2023-03-01 12:00:02+03,p,1.6.2,Polygon_Start_Generator,3,wave,0,,\n" +
		"p4,2023-03-01 12:00:03+03,p,1.6.2,Polygon_Start_Programmer,4,wave,0,,\n" +
		"p5,2023-03-01 12:00:04+03,p,1.6.2,Polygon_wave_results,5,wave,0,,\n"
	recs := read(t, data, Options{}).Players["p"]
	require.Len(t, recs, 5)

	for i, unit := range []string{"Autoborder", "Smoker", "Generator"} {
		assert.Equal(t, telemetry.KindUnitEvent, recs[i].Kind)
		assert.Equal(t, telemetry.LevelPolygon, recs[i].Level)
		assert.Equal(t, unit, recs[i].UnitType)
	}
	assert.Equal(t, telemetry.KindTraditionEvent, recs[3].Kind)
	assert.Equal(t, "Programmer", recs[3].Tradition)
	assert.Equal(t, telemetry.KindPolygonResult, recs[4].Kind)
}

func TestRead_SideChannelContexts(t *testing.T) {
	cases := map[string]telemetry.Kind{
		"Start_placement":  telemetry.KindStartPlacement,
		"Finish_placement": telemetry.KindFinishPlacement,
		"Launch_game":      telemetry.KindStartGame,
		"Closing_game":     telemetry.KindFinishGame,
		"Оpening_editor":   telemetry.KindStartEdit,
		"Opening_editor":   telemetry.KindStartEdit,
		"Closing_editor":   telemetry.KindFinishEdit,
		"Save_program":     telemetry.KindSaveProgram,
	}
	for context, want := range cases {
		t.Run(context, func(t *testing.T) {
			got, err := parseContext(context)
			require.NoError(t, err)
			assert.Equal(t, want, got.kind)
		})
	}
}

func TestRead_FatalErrors(t *testing.T) {
	tests := []struct {
		name string
		row  string
		code telemetry.InputErrorCode
	}{
		{"unknown context", "r,2023-03-01 12:00:00+03,p,1.6.2,Dancing,1,wave,0,,", telemetry.ErrCodeBadContext},
		{"bad stat level", "r,2023-03-01 12:00:00+03,p,1.6.2,Level_9_Stapler,1,wave,0,,", telemetry.ErrCodeBadLevel},
		{"bad stat origin", "r,2023-03-01 12:00:00+03,p,1.6.2,Level_1_Tank,1,wave,0,,", telemetry.ErrCodeBadContext},
		{"malformed level context", "r,2023-03-01 12:00:00+03,p,1.6.2,Level_1,1,wave,0,,", telemetry.ErrCodeBadContext},
		{"final level out of range", "r,2023-03-01 12:00:00+03,p,1.6.2,Итоги волны 1,1,level,7,,", telemetry.ErrCodeBadLevel},
		{"bad metrics id", "r,2023-03-01 12:00:00+03,p,1.6.2,Launch_game,x,wave,0,,", telemetry.ErrCodeBadRow},
		{"bad value", "r,2023-03-01 12:00:00+03,p,1.6.2,Launch_game,1,wave,many,,", telemetry.ErrCodeBadMetric},
		{"short row", "r,2023-03-01 12:00:00+03,p,1.6.2,Launch_game,1,wave,0", telemetry.ErrCodeBadRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(Options{}, nil).Read(strings.NewReader(header + tt.row + "\n"))
			require.Error(t, err)
			var ie *telemetry.InputError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.code, ie.Code)
			assert.Equal(t, 2, ie.Line)
		})
	}
}

func TestRead_FinalLevelClampPolicy(t *testing.T) {
	data := header + "r,2023-03-01 12:00:00+03,p,1.6.2,Итоги волны 1,1,level,7,,\n"
	recs := read(t, data, Options{LevelPolicy: telemetry.LevelPolicyClamp}).Players["p"]
	require.Len(t, recs, 1)
	assert.Equal(t, telemetry.LevelPolygon, recs[0].Level)
}

func TestRead_Semicolons(t *testing.T) {
	data := strings.ReplaceAll(header, ",", ";") +
		"r;2023-03-01 12:00:00+03;p;1.6.2;Launch_game;1;creation_index;4;;\n"
	recs := read(t, data, Options{Comma: ';'}).Players["p"]
	require.Len(t, recs, 1)
	assert.Equal(t, int64(4), recs[0].CreationIndex)
}

func TestRead_PlayerFilter(t *testing.T) {
	f := NewPlayerFilter()
	f.Add("ALICE")
	b := read(t, export, Options{Filter: f})
	assert.Len(t, b.Players, 1)
	assert.Contains(t, b.Players, "alice")
	assert.Equal(t, 2, b.Stats.Filtered)
}

func TestRead_PlayerFilterWindows(t *testing.T) {
	from, err := ParseDate("2023-03-01 12:00:00")
	require.NoError(t, err)
	to, err := ParseDate("2023-03-01 12:00:30")
	require.NoError(t, err)

	f := NewPlayerFilter()
	f.Add("alice", Window{From: from, To: to})
	b := read(t, export, Options{Filter: f})

	require.Len(t, b.Players, 1)
	recs := b.Players["alice:1677661200"]
	require.Len(t, recs, 2, "the wave result at 12:01 falls outside the window")
	assert.Equal(t, "alice:1677661200", recs[0].Player)
}

func TestLoadPlayerFilter(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "players.txt")
	require.NoError(t, os.WriteFile(text, []byte("Alice\n\nbob,2023-03-01 00:00:00,2023-03-02 00:00:00\n"), 0o644))
	f, err := LoadPlayerFilter(text)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	_, ok := f.Match("alice", 0)
	assert.True(t, ok)
	key, ok := f.Match("Bob", 1677661200)
	assert.True(t, ok)
	assert.Equal(t, "Bob:1677618000", key)
	_, ok = f.Match("bob", 0)
	assert.False(t, ok)

	yml := filepath.Join(dir, "players.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(`players:
  - id: carol
  - id: dave
    windows:
      - from: "2023-03-01 00:00:00"
        to: "2023-03-01 23:59:59"
`), 0o644))
	f, err = LoadPlayerFilter(yml)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	_, ok = f.Match("CAROL", 5)
	assert.True(t, ok)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("players:\n  - name: x\n"), 0o644))
	_, err = LoadPlayerFilter(bad)
	assert.Error(t, err, "unknown fields are rejected")
}

func TestParseExportDate(t *testing.T) {
	ts, err := parseExportDate("2023-03-01 12:00:00+03")
	require.NoError(t, err)
	assert.Equal(t, 1677661200.0, ts)

	_, err = parseExportDate("2023-03-01 12:00:00")
	assert.Error(t, err)
	_, err = parseExportDate("01.03.2023+03")
	assert.Error(t, err)
}
