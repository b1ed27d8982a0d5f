package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/telemetry"
	tu "github.com/roach88/apiary/internal/testutil"
)

// runFixture: alice deploys a stock Stapler, an extended one and a missing
// artifact in one session; bob plays two sessions with plain Smokers.
func runFixture(t *testing.T) *pipeline.Result {
	t.Helper()
	stock := tu.DefaultProgram("Stapler")
	src := &registry.MemorySource{
		Artifacts: map[string]*ir.Graph{
			"stock": tu.DefaultProgram("my stapler"),
			"ext":   tu.From(stock).State("extra", "Состояние").Build(),
		},
		Baselines: map[string]map[string]*ir.Graph{"1.6": {"Stapler": stock}},
	}
	reg := registry.New(src, src, registry.DefaultVersionRules)
	p := pipeline.New(reg, classify.New(oracle.NewStructural()), pipeline.Options{Workers: 2}, nil, nil)

	alice := tu.NewStream("alice")
	bob := tu.NewStream("bob")
	res, err := p.Run(context.Background(), map[string][]telemetry.Record{
		"alice": {
			alice.Tradition(telemetry.Level1, 1, "Engineers"),
			alice.Programmed(telemetry.Level1, 1, "Stapler", "stock", 3),
			alice.Programmed(telemetry.Level1, 1, "Stapler", "ext", 5),
			alice.Programmed(telemetry.Level1, 1, "Stapler", "gone", 1),
			alice.Final(telemetry.Level1, 1, 1),
		},
		"bob": {
			bob.Unit(telemetry.Level2, 2, "Smoker"),
			bob.Final(telemetry.Level2, 2, 1),
			bob.Unit(telemetry.Level3, 1, "Smoker"),
		},
	})
	require.NoError(t, err)
	return res
}

func countOf(counts []Count, name string) int {
	for _, c := range counts {
		if c.Name == name {
			return c.Count
		}
	}
	return -1
}

func TestAggregate(t *testing.T) {
	st := Aggregate(runFixture(t), 5)

	assert.Equal(t, 2, st.Players)
	assert.Equal(t, 3, st.Sessions)
	assert.Equal(t, []Count{
		{"Start", 0}, {"1", 1}, {"2", 1}, {"3", 1}, {"Infinity", 0}, {"Polygon", 0},
	}, st.Levels)
	assert.Equal(t, []Count{{"Engineers", 1}, {UnknownTradition, 2}}, st.Traditions)
	assert.Equal(t, []Count{{"Smoker", 2}, {"Stapler", 1}}, st.UnitTypes)
	assert.Equal(t, 3, st.Waves)
	assert.Equal(t, 5, st.Units)
	assert.Equal(t, 1, st.ProgrammedUnits)
	assert.Equal(t, 1, st.DefaultUnits)
	assert.Equal(t, 1, st.BrokenUnits)
	assert.Equal(t, 1, st.UniquePrograms)
	assert.Equal(t, 0, st.BrokenPrograms)

	assert.Equal(t, 1, countOf(st.Flags, classify.KeyNewNodes))
	assert.Equal(t, 1, countOf(st.Flags, classify.KeyDetachedNodes))
	assert.Equal(t, -1, countOf(st.Flags, classify.KeyMissingNodes))

	require.Len(t, st.Popular, 1)
	assert.Equal(t, "ext", st.Popular[0].ArtifactID)
	assert.Equal(t, 1, st.Popular[0].Usage)

	require.Len(t, st.PerPlayer, 2)
	a := st.PerPlayer[0]
	assert.Equal(t, "alice", a.Player)
	assert.Equal(t, telemetry.Level1, a.MaxLevel)
	assert.InDelta(t, 100.0/3, a.ProgrammedPercent, 1e-9)
	assert.Equal(t, 1, a.UniquePrograms)
	b := st.PerPlayer[1]
	assert.Equal(t, telemetry.Level3, b.MaxLevel)
	assert.Equal(t, 0.0, b.ProgrammedPercent)
}

func TestAggregate_TopBoundsPopular(t *testing.T) {
	st := Aggregate(runFixture(t), 0)
	assert.Empty(t, st.Popular)
}

func TestAggregate_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(Aggregate(runFixture(t), 1))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "programmed_units")
	assert.Contains(t, m, "per_player")
	assert.Contains(t, m, "skipped")
}

func TestPlayerPrograms(t *testing.T) {
	res := runFixture(t)
	pt, err := PlayerPrograms(res, "alice")
	require.NoError(t, err)

	assert.Equal(t, []DefaultRow{{UnitType: "Stapler", Uses: 1, Damage: 3}}, pt.Defaults)
	require.Len(t, pt.Programs, 1)
	row := pt.Programs[0]
	assert.Equal(t, "ext", row.ArtifactID)
	assert.Equal(t, 1, row.Uses)
	assert.Equal(t, 5.0, row.Damage)
	assert.True(t, row.Flags.Bool(classify.KeyExtendedDefault))
	require.Len(t, pt.Unresolved, 1)
	assert.Equal(t, "gone", pt.Unresolved[0].ArtifactID)
	assert.Nil(t, pt.Progression)

	bob, err := PlayerPrograms(res, "bob")
	require.NoError(t, err)
	assert.Empty(t, bob.Defaults)
	assert.Empty(t, bob.Programs)
}

func TestPlayerPrograms_UnknownPlayer(t *testing.T) {
	_, err := PlayerPrograms(runFixture(t), "carol")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestInspect(t *testing.T) {
	base := tu.DefaultProgram("Stapler")
	cand := tu.From(base).
		State("fix", "Починка", tu.Do("entry", "СпособностьПочинка.Починить()")).
		Edge("e-fix", "attack", "fix", tu.On("Самодиагностика.Повреждение")).
		Retitle("scan", "Поиск").
		RemoveEdge("e-lost").
		Build()

	ins, err := Inspect(classify.New(oracle.NewStructural()), base, cand)
	require.NoError(t, err)

	require.Len(t, ins.NewNodes, 1)
	assert.Equal(t, "fix", ins.NewNodes[0].ID)
	assert.Equal(t, "Починка", ins.NewNodes[0].Title)
	require.Len(t, ins.NewEdges, 1)
	assert.Equal(t, "attack", ins.NewEdges[0].Source)
	require.Len(t, ins.MissingEdges, 1)
	assert.Equal(t, "e-lost", ins.MissingEdges[0].ID)
	// Both endpoints of the removed edge change too.
	var scan *NodeChange
	for i, c := range ins.ChangedNodes {
		if c.Baseline.ID == "scan" {
			scan = &ins.ChangedNodes[i]
		}
	}
	require.NotNil(t, scan)
	assert.Equal(t, "Скан", scan.Baseline.Title)
	assert.Equal(t, "Поиск", scan.Candidate.Title)
	assert.Contains(t, scan.Diff, "title")
	assert.Contains(t, scan.Diff, "edges")
	assert.False(t, ins.Unchanged())
	assert.True(t, ins.Flags.Bool(classify.KeyNewNodes))
	assert.True(t, ins.Flags.Bool(classify.KeyMissingEdges))
}

func TestInspect_Identical(t *testing.T) {
	base := tu.DefaultProgram("Stapler")
	ins, err := Inspect(classify.New(oracle.NewStructural()), base, tu.Clone(base))
	require.NoError(t, err)
	assert.True(t, ins.Unchanged())
	assert.True(t, ins.Flags.Bool(classify.KeyIsomorphicToDefault))
}

func TestTextWriter_Stats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextWriter(&buf).Stats(Aggregate(runFixture(t), 3)))
	out := buf.String()

	assert.Contains(t, out, "Players: 2\n")
	assert.Contains(t, out, "Sessions: 3\n")
	assert.Contains(t, out, "       1: 1\n")
	assert.Contains(t, out, "  Engineers: 1\n")
	assert.Contains(t, out, "Units used with new programs: 1\n")
	assert.Contains(t, out, "Unique unit diagrams: 1 (1 with names, 0 broken)\n")
	assert.Contains(t, out, "  new nodes: 1\n")
	// Not a terminal: no escape sequences.
	assert.NotContains(t, out, "\x1b[")
}

func TestTextWriter_SessionsAndPlayers(t *testing.T) {
	res := runFixture(t)
	alice, _ := res.Player("alice")

	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	require.NoError(t, w.Sessions("alice", alice.Sessions))
	require.NoError(t, w.Players(Aggregate(res, 0).PerPlayer))
	out := buf.String()

	assert.Contains(t, out, "alice:\n")
	assert.Contains(t, out, "versions: (1.6.2), level: 1, last wave: 1")
	assert.Contains(t, out, "tradition: Engineers, unit types: (Stapler), uniq progs: 3")
	assert.Contains(t, out, "Player bob - sessions 2, max level 3")
}

func TestTextWriter_ProgramsAndInspection(t *testing.T) {
	res := runFixture(t)
	pt, err := PlayerPrograms(res, "alice")
	require.NoError(t, err)

	base := tu.DefaultProgram("Stapler")
	ins, err := Inspect(classify.New(oracle.NewStructural()), base, tu.From(base).RemoveEdge("e-lost").Build())
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewTextWriter(&buf)
	require.NoError(t, w.Programs(pt))
	require.NoError(t, w.Inspection(ins))
	out := buf.String()

	assert.Contains(t, out, "Default programs (1):\nStapler:     1  3.00     0\n")
	assert.Contains(t, out, "Unique programs (1):")
	assert.Contains(t, out, "Unresolved artifacts (1):\nStapler gone: not_found\n")
	assert.Contains(t, out, "- edge e-lost: attack -> scan АнализаторЦели.ЦельПотеряна/\n")
}
