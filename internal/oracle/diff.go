package oracle

import (
	"fmt"
	"strings"

	"github.com/roach88/apiary/internal/ir"
)

// Relation is the overall relation between a baseline and a candidate graph.
type Relation uint8

const (
	RelIdentical Relation = 1 << iota
	RelEqual
	RelIsomorphic
	RelDiffStates
	RelDiffInitial
	RelDiffEdges
)

var relationNames = []string{"identical", "equal", "isomorphic", "diff states", "diff initial", "diff edges"}

// Has reports whether all bits of f are set.
func (r Relation) Has(f Relation) bool { return f != 0 && r&f == f }

func (r Relation) Identical() bool   { return r.Has(RelIdentical) }
func (r Relation) Equal() bool       { return r.Has(RelEqual) }
func (r Relation) Isomorphic() bool  { return r.Has(RelIsomorphic) }
func (r Relation) DiffStates() bool  { return r.Has(RelDiffStates) }
func (r Relation) DiffInitial() bool { return r.Has(RelDiffInitial) }
func (r Relation) DiffEdges() bool   { return r.Has(RelDiffEdges) }

func (r Relation) String() string { return bitNames(uint8(r), relationNames) }

// NodeDiff describes how a matched node pair differs.
type NodeDiff uint8

const (
	NodeIDDiffers NodeDiff = 1 << iota
	NodeTypeDiffers
	NodeTitleDiffers
	NodeActionsDiffer
	NodeSMLinkDiffers
	NodeChildrenDiffer
	NodeEdgesDiffer
)

var nodeDiffNames = []string{"id", "type", "title", "actions", "sm link", "children", "edges"}

// Has reports whether all bits of f are set.
func (d NodeDiff) Has(f NodeDiff) bool { return f != 0 && d&f == f }

func (d NodeDiff) TitleDiffers() bool  { return d.Has(NodeTitleDiffers) }
func (d NodeDiff) ActionsDiffer() bool { return d.Has(NodeActionsDiffer) }
func (d NodeDiff) TypeDiffers() bool   { return d.Has(NodeTypeDiffers) }

func (d NodeDiff) String() string { return bitNames(uint8(d), nodeDiffNames) }

// EdgeDiff describes how a matched edge pair differs.
type EdgeDiff uint8

const (
	EdgeIDDiffers EdgeDiff = 1 << iota
	EdgeActionDiffers
)

var edgeDiffNames = []string{"id", "action"}

// Has reports whether all bits of f are set.
func (d EdgeDiff) Has(f EdgeDiff) bool { return f != 0 && d&f == f }

func (d EdgeDiff) ActionDiffers() bool { return d.Has(EdgeActionDiffers) }

func (d EdgeDiff) String() string { return bitNames(uint8(d), edgeDiffNames) }

func bitNames(v uint8, names []string) string {
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// NodePair is a baseline node matched to a candidate node.
type NodePair struct {
	Baseline  string
	Candidate string
	Diff      NodeDiff
}

// EdgePair is a baseline edge matched to a candidate edge.
type EdgePair struct {
	Baseline  string
	Candidate string
	Diff      EdgeDiff
}

// DiffResult is the structural comparison of a baseline and a candidate.
// Node and edge ids of each side partition into matched and new (candidate)
// or matched and missing (baseline), with no overlap.
type DiffResult struct {
	Relation     Relation
	MatchedNodes []NodePair
	NewNodes     []string
	MissingNodes []string
	MatchedEdges []EdgePair
	NewEdges     []string
	MissingEdges []string
}

// ChangedNodes returns the matched pairs whose Diff is non-zero.
func (d *DiffResult) ChangedNodes() []NodePair {
	var out []NodePair
	for _, p := range d.MatchedNodes {
		if p.Diff != 0 {
			out = append(out, p)
		}
	}
	return out
}

// ChangedEdges returns the matched edge pairs whose Diff is non-zero.
func (d *DiffResult) ChangedEdges() []EdgePair {
	var out []EdgePair
	for _, p := range d.MatchedEdges {
		if p.Diff != 0 {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the partition invariant against the two compared graphs.
func (d *DiffResult) Validate(baseline, candidate *ir.Graph) error {
	var bNodes, cNodes, bEdges, cEdges []string
	for _, n := range baseline.Nodes {
		bNodes = append(bNodes, n.ID)
	}
	for _, n := range candidate.Nodes {
		cNodes = append(cNodes, n.ID)
	}
	for _, e := range baseline.Edges {
		bEdges = append(bEdges, e.ID)
	}
	for _, e := range candidate.Edges {
		cEdges = append(cEdges, e.ID)
	}

	var bMatched, cMatched []string
	for _, p := range d.MatchedNodes {
		bMatched = append(bMatched, p.Baseline)
		cMatched = append(cMatched, p.Candidate)
	}
	if err := checkPartition("baseline nodes", bNodes, bMatched, d.MissingNodes); err != nil {
		return err
	}
	if err := checkPartition("candidate nodes", cNodes, cMatched, d.NewNodes); err != nil {
		return err
	}

	bMatched, cMatched = nil, nil
	for _, p := range d.MatchedEdges {
		bMatched = append(bMatched, p.Baseline)
		cMatched = append(cMatched, p.Candidate)
	}
	if err := checkPartition("baseline edges", bEdges, bMatched, d.MissingEdges); err != nil {
		return err
	}
	return checkPartition("candidate edges", cEdges, cMatched, d.NewEdges)
}

// checkPartition verifies that matched and rest cover all ids exactly once.
func checkPartition(what string, all, matched, rest []string) error {
	want := make(map[string]int, len(all))
	for _, id := range all {
		want[id] = 0
	}
	for _, group := range [][]string{matched, rest} {
		for _, id := range group {
			n, ok := want[id]
			if !ok {
				return fmt.Errorf("%s: id %q not in graph", what, id)
			}
			if n > 0 {
				return fmt.Errorf("%s: id %q reported twice", what, id)
			}
			want[id] = 1
		}
	}
	for _, id := range all {
		if want[id] == 0 {
			return fmt.Errorf("%s: id %q not reported", what, id)
		}
	}
	return nil
}
