package classify

import (
	"fmt"

	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
)

// Classifier computes Flags for (baseline, candidate) pairs. A Classifier is
// read-only after construction and safe for concurrent use.
type Classifier struct {
	Oracle  oracle.Oracle
	Actions oracle.ActionComparator
	Markers Matcher
	Modules Matcher
	Names   NameRules
}

// New returns a classifier over o with the default dictionaries.
func New(o oracle.Oracle) *Classifier {
	return &Classifier{
		Oracle:  o,
		Actions: oracle.StatementComparator{},
		Markers: NewKeywordMatcher(DefaultMarkers...),
		Modules: NewKeywordMatcher(DefaultModules...),
		Names:   DefaultNameRules,
	}
}

// Classify compares candidate with baseline using o and the default
// dictionaries.
func Classify(baseline, candidate *ir.Graph, o oracle.Oracle) (Flags, error) {
	return New(o).Classify(baseline, candidate)
}

// Classify invokes the oracle once and derives the flags from its result.
// Oracle errors are returned wrapped; the caller decides what a failed
// program means.
func (c *Classifier) Classify(baseline, candidate *ir.Graph) (Flags, error) {
	diff, err := c.Oracle.Compare(baseline, candidate)
	if err != nil {
		return Flags{}, fmt.Errorf("classify %q: %w", candidate.Name, err)
	}
	return c.FromDiff(baseline, candidate, diff), nil
}

// FromDiff derives the flags from an existing diff of the two graphs.
func (c *Classifier) FromDiff(baseline, candidate *ir.Graph, diff *oracle.DiffResult) Flags {
	m := make(map[string]int, 40)
	c.structural(m, baseline, candidate, diff)
	c.naming(m, candidate, diff)
	c.keywords(m, candidate, diff)
	return Flags{m: m}
}

func (c *Classifier) structural(m map[string]int, baseline, candidate *ir.Graph, diff *oracle.DiffResult) {
	newNodes := len(diff.NewNodes)
	newEdges := len(diff.NewEdges)
	missing := len(diff.MissingNodes) > 0 || len(diff.MissingEdges) > 0

	var diffNames, diffActions int
	var actionBits oracle.ActionDiff
	for _, p := range diff.MatchedNodes {
		if p.Diff.TitleDiffers() {
			diffNames++
		}
		if !p.Diff.ActionsDiffer() {
			continue
		}
		diffActions++
		bn, okB := baseline.Node(p.Baseline)
		cn, okC := candidate.Node(p.Candidate)
		if okB && okC && c.Actions != nil {
			actionBits |= c.Actions.CompareActions(bn.Actions, cn.Actions)
		}
	}
	diffEdges := len(diff.ChangedEdges())

	newSet := idSet(diff.NewNodes)
	linked := 0
	for _, id := range diff.NewEdges {
		e, ok := candidate.Edge(id)
		if ok && (newSet[e.Source] || newSet[e.Target]) {
			linked++
		}
	}

	emptyNew := 0
	for _, id := range diff.NewNodes {
		n, ok := candidate.Node(id)
		if ok && n.Type.IsState() && !hasBehavior(n.Actions) {
			emptyNew++
		}
	}

	m[KeyIsomorphicToDefault] = b2i(diff.Relation.Isomorphic())
	m[KeyExtendedDefault] = b2i((newNodes > 0 || newEdges > 0 || diffActions > 0) && !missing)
	m[KeyNewNodes] = b2i(newNodes > 0)
	m[KeySingleNewNode] = b2i(newNodes == 1)
	m[KeyEmptyNewNodes] = b2i(emptyNew > 0)
	m[KeySingleEmptyNewNode] = b2i(emptyNew == 1)
	m[KeyMissingNodes] = b2i(len(diff.MissingNodes) > 0)
	m[KeyDetachedNodes] = b2i(newNodes > 0 && !missing && newEdges == 0)
	m[KeyNewNodesAndEdgesLinked] = b2i(linked > 0)
	m[KeyDiffNames] = b2i(diffNames > 0)
	m[KeySingleDiffName] = b2i(diffNames == 1)
	m[KeyDiffActions] = b2i(diffActions > 0)
	m[KeySingleDiffAction] = b2i(diffActions == 1)
	m[KeyDiffEdges] = b2i(diffEdges > 0)
	m[KeySingleDiffEdge] = b2i(diffEdges == 1)
	m[KeyNewEdges] = b2i(newEdges > 0)
	m[KeySingleNewEdge] = b2i(newEdges == 1)
	m[KeyMissingEdges] = b2i(len(diff.MissingEdges) > 0)
	m[KeyDiffActionsArgs] = b2i(actionBits.Has(oracle.ActionArguments))
	m[KeyDiffActionsOrder] = b2i(actionBits.Has(oracle.ActionOrder))
	m[KeyDiffActionsNum] = b2i(actionBits.Has(oracle.ActionCount))
}

// naming classifies the display names of new states and of renamed states.
func (c *Classifier) naming(m map[string]int, candidate *ir.Graph, diff *oracle.DiffResult) {
	var defaults, empties, nontrivial int
	var newDefaults, newEmpties int

	count := func(id string, isNew bool) {
		n, ok := candidate.Node(id)
		if !ok || !n.Type.IsState() {
			return
		}
		switch c.Names.Classify(n.Title) {
		case NameDefault:
			defaults++
			if isNew {
				newDefaults++
			}
		case NameEmpty:
			empties++
			if isNew {
				newEmpties++
			}
		case NameNontrivial:
			nontrivial++
		}
	}
	for _, id := range diff.NewNodes {
		count(id, true)
	}
	for _, p := range diff.MatchedNodes {
		if p.Diff.TitleDiffers() {
			count(p.Candidate, false)
		}
	}

	m[KeyDefaultStateNames] = defaults
	m[KeyEmptyNames] = empties
	m[KeyNontrivialNames] = b2i(nontrivial > 0)
	m[KeyNewNodesWithDefaultName] = b2i(newDefaults > 0)
	m[KeySingleNewNodeWithDefaultName] = b2i(len(diff.NewNodes) == 1 && newDefaults > 0)
	m[KeyNewNodesWithEmptyName] = b2i(newEmpties > 0)
}

// keywords scans action behaviors of new and changed states for markers and
// modules, and the triggers of edges into new states for module events.
func (c *Classifier) keywords(m map[string]int, candidate *ir.Graph, diff *oracle.DiffResult) {
	var scanned []*ir.Node
	seen := make(map[string]bool)
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if n, ok := candidate.Node(id); ok && n.Type.IsState() {
			scanned = append(scanned, n)
		}
	}
	for _, id := range diff.NewNodes {
		add(id)
	}
	for _, p := range diff.MatchedNodes {
		if p.Diff != 0 {
			add(p.Candidate)
		}
	}

	markers := make(map[string]bool)
	for _, n := range scanned {
		for _, a := range n.Actions {
			if !a.HasBehavior() {
				continue
			}
			if c.Markers != nil {
				for _, cat := range c.Markers.Match(a.Behavior) {
					markers[cat] = true
				}
			}
			if c.Modules != nil {
				for _, mod := range c.Modules.Match(a.Behavior) {
					m[ModuleKey(mod)] = 1
				}
			}
		}
	}

	if c.Markers != nil {
		categories := c.Markers.Categories()
		// Markers not found in states fall back to every transition.
		if len(markers) < len(categories) {
			for _, e := range candidate.Edges {
				if e.Action == nil || !e.Action.HasBehavior() {
					continue
				}
				for _, cat := range c.Markers.Match(e.Action.Behavior) {
					markers[cat] = true
				}
			}
		}
		for _, cat := range categories {
			m[MarkerKey(cat)] = b2i(markers[cat])
		}
	}

	if c.Modules == nil {
		return
	}
	newSet := idSet(diff.NewNodes)
	for _, id := range diff.NewEdges {
		e, ok := candidate.Edge(id)
		if !ok || !newSet[e.Target] || e.Action == nil || e.Action.Trigger == "" {
			continue
		}
		for _, mod := range c.Modules.Match(e.Action.Trigger) {
			m[EventKey(mod)] = 1
		}
	}
}

func idSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func hasBehavior(actions []ir.Action) bool {
	for _, a := range actions {
		if a.HasBehavior() {
			return true
		}
	}
	return false
}
