package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/testutil"
)

func compare(t *testing.T, baseline, candidate *ir.Graph) *DiffResult {
	t.Helper()
	res, err := NewStructural().Compare(baseline, candidate)
	require.NoError(t, err)
	require.NoError(t, res.Validate(baseline, candidate))
	return res
}

func TestStructural_Identical(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	res := compare(t, g, testutil.Clone(g))

	assert.True(t, res.Relation.Identical())
	assert.True(t, res.Relation.Equal())
	assert.True(t, res.Relation.Isomorphic())
	assert.Empty(t, res.NewNodes)
	assert.Empty(t, res.MissingNodes)
	assert.Empty(t, res.NewEdges)
	assert.Empty(t, res.MissingEdges)
	assert.Empty(t, res.ChangedNodes())
	assert.Empty(t, res.ChangedEdges())
	assert.Len(t, res.MatchedNodes, 3)
	assert.Len(t, res.MatchedEdges, 3)
}

func TestStructural_NameIgnored(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	renamed := testutil.From(g).Build()
	renamed.Name = "my program"

	res := compare(t, g, renamed)
	assert.True(t, res.Relation.Identical())
}

func TestStructural_ReidentifiedNodesAreEqual(t *testing.T) {
	base := testutil.NewGraph("g").
		Initial("init").
		State("a", "Скан").
		Edge("e1", "init", "a", nil).
		Build()
	cand := testutil.NewGraph("g").
		Initial("init").
		State("a2", "Скан").
		Edge("e9", "init", "a2", nil).
		Build()

	res := compare(t, base, cand)
	assert.True(t, res.Relation.Isomorphic())
	assert.True(t, res.Relation.Equal())
	assert.False(t, res.Relation.Identical())
	require.Len(t, res.ChangedNodes(), 1)
	assert.Equal(t, NodePair{Baseline: "a", Candidate: "a2", Diff: NodeIDDiffers}, res.ChangedNodes()[0])
	require.Len(t, res.ChangedEdges(), 1)
	assert.Equal(t, EdgeIDDiffers, res.ChangedEdges()[0].Diff)
}

func TestStructural_NewIsolatedNode(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).State("extra", "").Build()

	res := compare(t, g, cand)
	assert.Equal(t, []string{"extra"}, res.NewNodes)
	assert.Empty(t, res.MissingNodes)
	assert.Empty(t, res.NewEdges)
	assert.True(t, res.Relation.DiffStates())
	assert.False(t, res.Relation.DiffEdges())
	assert.False(t, res.Relation.Isomorphic())
	assert.Empty(t, res.ChangedNodes())
}

func TestStructural_TitleAndActions(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		Retitle("scan", "Поиск").
		SetActions("attack", testutil.Do("entry", "ОружиеЦелевое.АтаковатьЦель()\nДиод.Включить()")).
		Build()

	res := compare(t, g, cand)
	assert.True(t, res.Relation.Isomorphic())
	assert.False(t, res.Relation.Equal())

	changed := map[string]NodeDiff{}
	for _, p := range res.ChangedNodes() {
		changed[p.Candidate] = p.Diff
	}
	assert.Equal(t, NodeTitleDiffers, changed["scan"])
	assert.Equal(t, NodeActionsDiffer, changed["attack"])
	assert.True(t, changed["scan"].TitleDiffers())
	assert.True(t, changed["attack"].ActionsDiffer())
}

func TestStructural_RemovedNode(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).RemoveNode("attack").Build()

	res := compare(t, g, cand)
	assert.Equal(t, []string{"attack"}, res.MissingNodes)
	assert.ElementsMatch(t, []string{"e-found", "e-lost"}, res.MissingEdges)
	assert.True(t, res.Relation.DiffStates())
	assert.True(t, res.Relation.DiffEdges())

	for _, p := range res.MatchedNodes {
		if p.Candidate == "scan" {
			assert.True(t, p.Diff.Has(NodeEdgesDiffer))
		}
	}
}

func TestStructural_NewEdgeToNewNode(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		State("move", "Отступление", testutil.Do("entry", "МодульДвижения.ДвигатьсяОтЦели()")).
		Edge("e-move", "attack", "move", testutil.On("Таймер.Истек")).
		Build()

	res := compare(t, g, cand)
	assert.Equal(t, []string{"move"}, res.NewNodes)
	assert.Equal(t, []string{"e-move"}, res.NewEdges)
	for _, p := range res.MatchedNodes {
		if p.Candidate == "attack" {
			assert.Equal(t, NodeEdgesDiffer, p.Diff)
		}
	}
}

func TestStructural_EdgeActionChange(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.Clone(g)
	cand.Edges[1].Action = testutil.On("Таймер.Истек")

	res := compare(t, g, cand)
	require.Len(t, res.ChangedEdges(), 1)
	assert.Equal(t, EdgePair{Baseline: "e-found", Candidate: "e-found", Diff: EdgeActionDiffers}, res.ChangedEdges()[0])
	assert.True(t, res.Relation.Isomorphic())
	assert.False(t, res.Relation.Equal())
}

func TestStructural_InitialMoved(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).RemoveNode("init").Build()

	res := compare(t, g, cand)
	assert.True(t, res.Relation.DiffInitial())
	assert.False(t, res.Relation.Isomorphic())
}

func TestStructural_Deterministic(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		State("x", "").
		State("y", "Бой").
		Edge("e-x", "scan", "x", nil).
		Build()

	first := compare(t, g, cand)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, compare(t, g, cand))
	}
}

func TestStructural_MalformedGraph(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	bad := testutil.From(g).Edge("dangling", "scan", "nowhere", nil).Build()

	_, err := NewStructural().Compare(g, bad)
	require.Error(t, err)
	assert.True(t, IsGraphError(err))
	assert.Contains(t, err.Error(), "candidate")
	assert.Contains(t, err.Error(), "unknown target")

	_, err = NewStructural().Compare(nil, g)
	assert.True(t, IsGraphError(err))
}

func TestDiffResult_ValidateRejectsOverlap(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	res := compare(t, g, testutil.Clone(g))

	res.NewNodes = append(res.NewNodes, "scan")
	err := res.Validate(g, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reported twice")

	res = compare(t, g, testutil.Clone(g))
	res.MatchedEdges = res.MatchedEdges[1:]
	err = res.Validate(g, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reported")

	res = compare(t, g, testutil.Clone(g))
	res.MissingNodes = []string{"ghost"}
	err = res.Validate(g, g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in graph")
}

func TestBitsetStrings(t *testing.T) {
	assert.Equal(t, "identical, equal, isomorphic", (RelIdentical | RelEqual | RelIsomorphic).String())
	assert.Equal(t, "title, actions", (NodeTitleDiffers | NodeActionsDiffer).String())
	assert.Equal(t, "action", EdgeActionDiffers.String())
	assert.Equal(t, "", Relation(0).String())
	assert.False(t, Relation(0).Has(0))
}
