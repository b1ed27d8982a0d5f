package oracle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/apiary/internal/ir"
)

// Oracle compares a baseline graph with a candidate graph.
type Oracle interface {
	Compare(baseline, candidate *ir.Graph) (*DiffResult, error)
}

// GraphError reports a malformed graph passed to an oracle.
type GraphError struct {
	Side  string // "baseline" or "candidate"
	Graph string
	Err   error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("malformed %s graph %q: %v", e.Side, e.Graph, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// IsGraphError reports whether err is or wraps a *GraphError.
func IsGraphError(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge)
}

// Structural matches vertices by id, then by type and title, and transitions
// by their mapped endpoints. It never fails on well-formed input.
type Structural struct{}

// NewStructural returns the default structural oracle.
func NewStructural() *Structural { return &Structural{} }

// Compare implements Oracle.
func (o *Structural) Compare(baseline, candidate *ir.Graph) (*DiffResult, error) {
	if baseline == nil || candidate == nil {
		return nil, &GraphError{Side: "input", Err: errors.New("nil graph")}
	}
	if err := baseline.Validate(); err != nil {
		return nil, &GraphError{Side: "baseline", Graph: baseline.Name, Err: err}
	}
	if err := candidate.Validate(); err != nil {
		return nil, &GraphError{Side: "candidate", Graph: candidate.Name, Err: err}
	}

	m := newMatching(baseline, candidate)
	m.matchNodes()
	m.matchEdges()
	return m.result(), nil
}

type matching struct {
	b, c *ir.Graph

	// candidate id -> baseline id
	nodes map[string]string
	edges map[string]string
	// baseline id -> candidate id
	nodesBack map[string]string
	edgesBack map[string]string

	res DiffResult
}

func newMatching(b, c *ir.Graph) *matching {
	return &matching{
		b:         b,
		c:         c,
		nodes:     make(map[string]string),
		edges:     make(map[string]string),
		nodesBack: make(map[string]string),
		edgesBack: make(map[string]string),
	}
}

func (m *matching) pairNodes(bID, cID string) {
	m.nodes[cID] = bID
	m.nodesBack[bID] = cID
}

func (m *matching) matchNodes() {
	for _, cn := range m.c.Nodes {
		if _, ok := m.b.Node(cn.ID); ok {
			m.pairNodes(cn.ID, cn.ID)
		}
	}
	// Second pass: unmatched vertices with the same type and title.
	for _, cn := range m.c.Nodes {
		if _, ok := m.nodes[cn.ID]; ok {
			continue
		}
		for _, bn := range m.b.Nodes {
			if _, taken := m.nodesBack[bn.ID]; taken {
				continue
			}
			if bn.Type == cn.Type && bn.Title == cn.Title {
				m.pairNodes(bn.ID, cn.ID)
				break
			}
		}
	}
}

func (m *matching) matchEdges() {
	for _, ce := range m.c.Edges {
		src, okS := m.nodes[ce.Source]
		tgt, okT := m.nodes[ce.Target]
		if !okS || !okT {
			continue
		}
		if bID := m.pickEdge(ce, src, tgt); bID != "" {
			m.edges[ce.ID] = bID
			m.edgesBack[bID] = ce.ID
		}
	}
}

// pickEdge chooses among unmatched baseline edges with the mapped endpoints,
// preferring the same id, then the same action, then document order.
func (m *matching) pickEdge(ce ir.Edge, src, tgt string) string {
	var fallback, sameAction string
	for _, be := range m.b.Edges {
		if be.Source != src || be.Target != tgt {
			continue
		}
		if _, taken := m.edgesBack[be.ID]; taken {
			continue
		}
		if be.ID == ce.ID {
			return be.ID
		}
		if sameAction == "" && equalEdgeAction(be.Action, ce.Action) {
			sameAction = be.ID
		}
		if fallback == "" {
			fallback = be.ID
		}
	}
	if sameAction != "" {
		return sameAction
	}
	return fallback
}

func (m *matching) result() *DiffResult {
	res := &m.res

	// Edges first: node EdgesDiffer depends on them.
	touched := make(map[string]bool) // candidate node ids
	for _, ce := range m.c.Edges {
		bID, ok := m.edges[ce.ID]
		if !ok {
			res.NewEdges = append(res.NewEdges, ce.ID)
			touched[ce.Source] = true
			touched[ce.Target] = true
			continue
		}
		be, _ := m.b.Edge(bID)
		var d EdgeDiff
		if be.ID != ce.ID {
			d |= EdgeIDDiffers
		}
		if !equalEdgeAction(be.Action, ce.Action) {
			d |= EdgeActionDiffers
			touched[ce.Source] = true
			touched[ce.Target] = true
		}
		res.MatchedEdges = append(res.MatchedEdges, EdgePair{Baseline: be.ID, Candidate: ce.ID, Diff: d})
	}
	for _, be := range m.b.Edges {
		if _, ok := m.edgesBack[be.ID]; ok {
			continue
		}
		res.MissingEdges = append(res.MissingEdges, be.ID)
		if c, ok := m.nodesBack[be.Source]; ok {
			touched[c] = true
		}
		if c, ok := m.nodesBack[be.Target]; ok {
			touched[c] = true
		}
	}

	for _, cn := range m.c.Nodes {
		bID, ok := m.nodes[cn.ID]
		if !ok {
			res.NewNodes = append(res.NewNodes, cn.ID)
			continue
		}
		bn, _ := m.b.Node(bID)
		d := m.nodeDiff(bn, &cn)
		if touched[cn.ID] {
			d |= NodeEdgesDiffer
		}
		res.MatchedNodes = append(res.MatchedNodes, NodePair{Baseline: bn.ID, Candidate: cn.ID, Diff: d})
	}
	for _, bn := range m.b.Nodes {
		if _, ok := m.nodesBack[bn.ID]; !ok {
			res.MissingNodes = append(res.MissingNodes, bn.ID)
		}
	}

	res.Relation = m.relation()
	return res
}

func (m *matching) nodeDiff(bn, cn *ir.Node) NodeDiff {
	var d NodeDiff
	if bn.ID != cn.ID {
		d |= NodeIDDiffers
	}
	if bn.Type != cn.Type {
		d |= NodeTypeDiffers
	}
	if bn.Title != cn.Title {
		d |= NodeTitleDiffers
	}
	if !equalActions(bn.Actions, cn.Actions) {
		d |= NodeActionsDiffer
	}
	if bn.Link != cn.Link {
		d |= NodeSMLinkDiffers
	}

	// Children are compared through the node mapping.
	bChildren := m.b.Children(bn.ID)
	var mapped []string
	for _, c := range m.c.Children(cn.ID) {
		if b, ok := m.nodes[c]; ok {
			mapped = append(mapped, b)
		} else {
			mapped = append(mapped, "\x00new:"+c)
		}
	}
	slices.Sort(bChildren)
	slices.Sort(mapped)
	if !slices.Equal(bChildren, mapped) {
		d |= NodeChildrenDiffer
	}
	return d
}

func (m *matching) relation() Relation {
	res := &m.res
	var rel Relation

	nodesSame := len(res.NewNodes) == 0 && len(res.MissingNodes) == 0
	edgesSame := len(res.NewEdges) == 0 && len(res.MissingEdges) == 0
	if !nodesSame {
		rel |= RelDiffStates
	}
	if !edgesSame {
		rel |= RelDiffEdges
	}

	bInit, bOK := m.b.Initial()
	cInit, cOK := m.c.Initial()
	switch {
	case bOK != cOK:
		rel |= RelDiffInitial
	case bOK && m.nodes[cInit] != bInit:
		rel |= RelDiffInitial
	}

	if nodesSame && edgesSame && rel&RelDiffInitial == 0 {
		rel |= RelIsomorphic
		contentSame, idsSame := true, true
		for _, p := range res.MatchedNodes {
			if p.Diff&^NodeIDDiffers != 0 {
				contentSame = false
			}
			if p.Diff.Has(NodeIDDiffers) {
				idsSame = false
			}
		}
		for _, p := range res.MatchedEdges {
			if p.Diff&^EdgeIDDiffers != 0 {
				contentSame = false
			}
			if p.Diff.Has(EdgeIDDiffers) {
				idsSame = false
			}
		}
		if contentSame {
			rel |= RelEqual
			if idsSame {
				rel |= RelIdentical
			}
		}
	}
	return rel
}
