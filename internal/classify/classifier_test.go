package classify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/testutil"
)

var denseKeys = []string{
	KeyIsomorphicToDefault, KeyExtendedDefault, KeyNewNodes, KeySingleNewNode,
	KeyEmptyNewNodes, KeySingleEmptyNewNode, KeyNewNodesWithDefaultName,
	KeySingleNewNodeWithDefaultName, KeyNewNodesWithEmptyName,
	KeyDefaultStateNames, KeyEmptyNames, KeyNontrivialNames, KeyMissingNodes,
	KeyDetachedNodes, KeyNewNodesAndEdgesLinked, KeyDiffNames, KeySingleDiffName,
	KeyDiffActions, KeySingleDiffAction, KeyDiffEdges, KeySingleDiffEdge,
	KeyNewEdges, KeySingleNewEdge, KeyMissingEdges, KeyDiffActionsArgs,
	KeyDiffActionsOrder, KeyDiffActionsNum, KeyDebugActions, KeyRepairActions,
	KeyOverdriveActions, KeyMovefromActions,
}

func classify(t *testing.T, baseline, candidate *ir.Graph) Flags {
	t.Helper()
	f, err := Classify(baseline, candidate, oracle.NewStructural())
	require.NoError(t, err)
	for _, k := range denseKeys {
		assert.True(t, f.Has(k), "dense key %q missing", k)
	}
	return f
}

func TestClassify_SameGraph(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	f := classify(t, g, testutil.Clone(g))

	assert.True(t, f.Bool(KeyIsomorphicToDefault))
	for _, k := range denseKeys {
		if k == KeyIsomorphicToDefault {
			continue
		}
		assert.Zero(t, f.Count(k), "key %q", k)
	}
	assert.Equal(t, len(denseKeys), f.Len())
}

func TestClassify_IsolatedEmptyNode(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).State("n1", "").Build()
	f := classify(t, g, cand)

	assert.True(t, f.Bool(KeyNewNodes))
	assert.True(t, f.Bool(KeySingleNewNode))
	assert.Equal(t, 1, f.Count(KeyEmptyNames))
	assert.True(t, f.Bool(KeyDetachedNodes))
	assert.True(t, f.Bool(KeyExtendedDefault))
	assert.False(t, f.Bool(KeyIsomorphicToDefault))
	assert.True(t, f.Bool(KeyEmptyNewNodes))
	assert.True(t, f.Bool(KeySingleEmptyNewNode))
	assert.True(t, f.Bool(KeyNewNodesWithEmptyName))
	assert.False(t, f.Bool(KeyNewNodesAndEdgesLinked))
	assert.False(t, f.Bool(KeyNewEdges))
	assert.False(t, f.Bool(KeyMissingNodes))
	assert.False(t, f.Bool(KeyNontrivialNames))
}

func TestClassify_RepairNodeReachedByNavigationEvent(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		State("fix", "Починка", testutil.Do("entry", "ЧинитьСебя()")).
		Edge("e-fix", "attack", "fix", testutil.On("МодульДвижения.ЦельДостигнута")).
		Build()
	f := classify(t, g, cand)

	assert.True(t, f.Bool(KeyRepairActions))
	assert.True(t, f.Bool(EventKey("navi")))
	assert.True(t, f.Bool(KeyNewNodesAndEdgesLinked))
	assert.True(t, f.Bool(KeySingleNewEdge))
	assert.True(t, f.Bool(KeyNontrivialNames))
	assert.False(t, f.Bool(KeyDetachedNodes))
	assert.False(t, f.Bool(KeyEmptyNewNodes))
	assert.True(t, f.Bool(KeyExtendedDefault))
	assert.False(t, f.Bool(KeyDebugActions))

	// The attack state gained an edge, so its actions are scanned too.
	assert.True(t, f.Bool(ModuleKey("weapon")))
	assert.False(t, f.Has(ModuleKey("scaner")))
	assert.False(t, f.Has(EventKey("timer")))
}

func TestClassify_OrderOnlyActionChange(t *testing.T) {
	base := testutil.NewGraph("g").
		Initial("init").
		State("s", "Скан", testutil.Do("entry", "Сенсор.Найти()\nТаймер.Старт(2)")).
		Edge("e", "init", "s", nil).
		Build()
	cand := testutil.From(base).
		SetActions("s", testutil.Do("entry", "Таймер.Старт(2)\nСенсор.Найти()")).
		Build()
	f := classify(t, base, cand)

	assert.True(t, f.Bool(KeyDiffActions))
	assert.True(t, f.Bool(KeySingleDiffAction))
	assert.True(t, f.Bool(KeyDiffActionsOrder))
	assert.False(t, f.Bool(KeyDiffActionsArgs))
	assert.False(t, f.Bool(KeyDiffActionsNum))
	assert.True(t, f.Bool(KeyExtendedDefault))
	assert.True(t, f.Bool(KeyIsomorphicToDefault))
	assert.True(t, f.Bool(ModuleKey("timer")))
}

type stubOracle struct {
	diff *oracle.DiffResult
	err  error
}

func (s stubOracle) Compare(_, _ *ir.Graph) (*oracle.DiffResult, error) { return s.diff, s.err }

type stubComparator oracle.ActionDiff

func (s stubComparator) CompareActions(_, _ []ir.Action) oracle.ActionDiff {
	return oracle.ActionDiff(s)
}

func TestClassify_ComparatorBitsAreORed(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	diff := &oracle.DiffResult{
		Relation: oracle.RelIsomorphic,
		MatchedNodes: []oracle.NodePair{
			{Baseline: "scan", Candidate: "scan", Diff: oracle.NodeActionsDiffer},
			{Baseline: "attack", Candidate: "attack", Diff: oracle.NodeActionsDiffer},
		},
	}

	c := New(stubOracle{diff: diff})
	c.Actions = stubComparator(oracle.ActionOrder)
	f, err := c.Classify(g, g)
	require.NoError(t, err)
	assert.True(t, f.Bool(KeyDiffActionsOrder))
	assert.False(t, f.Bool(KeyDiffActionsArgs))
	assert.False(t, f.Bool(KeyDiffActionsNum))
	assert.True(t, f.Bool(KeyDiffActions))
	assert.False(t, f.Bool(KeySingleDiffAction))

	c.Actions = stubComparator(oracle.ActionArguments | oracle.ActionCount)
	f, err = c.Classify(g, g)
	require.NoError(t, err)
	assert.True(t, f.Bool(KeyDiffActionsArgs))
	assert.True(t, f.Bool(KeyDiffActionsNum))
	assert.False(t, f.Bool(KeyDiffActionsOrder))
}

func TestClassify_OracleErrorPropagates(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	boom := &oracle.GraphError{Side: "candidate", Graph: "x", Err: errors.New("duplicate element id")}

	_, err := Classify(g, g, stubOracle{err: boom})
	require.Error(t, err)
	assert.True(t, oracle.IsGraphError(err))

	bad := testutil.From(g).Edge("dangling", "scan", "nowhere", nil).Build()
	_, err = Classify(g, bad, oracle.NewStructural())
	assert.True(t, oracle.IsGraphError(err))
}

func TestClassify_Naming(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		Retitle("scan", "Состояние").
		State("a", "Состояние").
		State("b", "Бой").
		State("c", "  ").
		Initial("init2").
		Edge("e-a", "attack", "a", nil).
		Build()
	f := classify(t, g, cand)

	// scan (renamed) and a carry the default name; c is blank; b is basic;
	// the new initial pseudostate is not a state and is ignored.
	assert.Equal(t, 2, f.Count(KeyDefaultStateNames))
	assert.Equal(t, 1, f.Count(KeyEmptyNames))
	assert.False(t, f.Bool(KeyNontrivialNames))
	assert.True(t, f.Bool(KeyNewNodesWithDefaultName))
	assert.False(t, f.Bool(KeySingleNewNodeWithDefaultName))
	assert.True(t, f.Bool(KeyNewNodesWithEmptyName))
	assert.True(t, f.Bool(KeyDiffNames))
	assert.True(t, f.Bool(KeySingleDiffName))
	assert.False(t, f.Bool(KeyDetachedNodes))
}

func TestClassify_MissingNodesAreNotExtension(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).RemoveEdge("e-lost").State("x", "Новое").Build()
	f := classify(t, g, cand)

	assert.True(t, f.Bool(KeyMissingEdges))
	assert.False(t, f.Bool(KeyMissingNodes))
	assert.False(t, f.Bool(KeyExtendedDefault))
	assert.False(t, f.Bool(KeyDetachedNodes))
}

func TestClassify_MarkerFallbackToTransitions(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.Clone(g)
	cand.Edges[2].Action = &ir.Action{Trigger: "АнализаторЦели.ЦельПотеряна", Behavior: "Диод.Включить(красный)"}
	cand = testutil.From(cand).State("x", "Бой", testutil.Do("entry", "СпособностьНаМаксимум()")).Build()
	f := classify(t, g, cand)

	assert.True(t, f.Bool(KeyOverdriveActions))
	assert.True(t, f.Bool(KeyDebugActions))
	assert.True(t, f.Bool(KeyDiffEdges))
	assert.True(t, f.Bool(KeySingleDiffEdge))
	assert.True(t, f.Bool(ModuleKey("overdr")))
	// Edge behaviors never produce module keys.
	assert.False(t, f.Has(ModuleKey("diod")))
}

func TestClassify_Deterministic(t *testing.T) {
	g := testutil.DefaultProgram("Stapler")
	cand := testutil.From(g).
		State("fix", "", testutil.Do("entry", "ЧинитьСебя()\nДиод.Мигать()")).
		Edge("e-fix", "scan", "fix", testutil.On("Таймер.Истек")).
		Build()
	first := classify(t, g, cand)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Map(), classify(t, g, cand).Map())
	}
}

func TestFlags_Immutable(t *testing.T) {
	src := map[string]int{"a": 1}
	f := NewFlags(src)
	src["a"] = 0
	assert.True(t, f.Bool("a"))

	m := f.Map()
	m["a"] = 5
	assert.Equal(t, 1, f.Count("a"))
	assert.Equal(t, []string{"a"}, f.Keys())

	b, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, err = Flags{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
