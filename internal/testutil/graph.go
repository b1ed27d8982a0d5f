package testutil

import (
	"slices"

	"github.com/roach88/apiary/internal/ir"
)

// GraphBuilder assembles program graphs for tests.
//
// Builders are not safe for concurrent use. Build returns a deep copy, so one
// builder can produce a baseline and be extended into a candidate.
type GraphBuilder struct {
	g ir.Graph
}

// NewGraph starts an empty graph with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: ir.Graph{Name: name}}
}

// From starts a builder from a copy of an existing graph.
func From(g *ir.Graph) *GraphBuilder {
	return &GraphBuilder{g: *Clone(g)}
}

// Initial adds a top-level initial pseudostate.
func (b *GraphBuilder) Initial(id string) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, ir.Node{ID: id, Type: ir.NodeInitial})
	return b
}

// State adds a top-level simple state.
func (b *GraphBuilder) State(id, title string, actions ...ir.Action) *GraphBuilder {
	b.g.Nodes = append(b.g.Nodes, ir.Node{ID: id, Type: ir.NodeSimpleState, Title: title, Actions: actions})
	return b
}

// Child adds a simple state nested under parent. The parent is promoted to a
// composite state.
func (b *GraphBuilder) Child(parent, id, title string, actions ...ir.Action) *GraphBuilder {
	for i := range b.g.Nodes {
		if b.g.Nodes[i].ID == parent && b.g.Nodes[i].Type == ir.NodeSimpleState {
			b.g.Nodes[i].Type = ir.NodeCompositeState
		}
	}
	b.g.Nodes = append(b.g.Nodes, ir.Node{ID: id, Type: ir.NodeSimpleState, Parent: parent, Title: title, Actions: actions})
	return b
}

// Edge adds a transition. action may be nil.
func (b *GraphBuilder) Edge(id, source, target string, action *ir.Action) *GraphBuilder {
	b.g.Edges = append(b.g.Edges, ir.Edge{ID: id, Source: source, Target: target, Action: action})
	return b
}

// Retitle changes the title of an existing node.
func (b *GraphBuilder) Retitle(id, title string) *GraphBuilder {
	for i := range b.g.Nodes {
		if b.g.Nodes[i].ID == id {
			b.g.Nodes[i].Title = title
		}
	}
	return b
}

// SetActions replaces the actions of an existing node.
func (b *GraphBuilder) SetActions(id string, actions ...ir.Action) *GraphBuilder {
	for i := range b.g.Nodes {
		if b.g.Nodes[i].ID == id {
			b.g.Nodes[i].Actions = actions
		}
	}
	return b
}

// RemoveNode drops a node and every edge touching it.
func (b *GraphBuilder) RemoveNode(id string) *GraphBuilder {
	b.g.Nodes = slices.DeleteFunc(b.g.Nodes, func(n ir.Node) bool { return n.ID == id })
	b.g.Edges = slices.DeleteFunc(b.g.Edges, func(e ir.Edge) bool { return e.Source == id || e.Target == id })
	return b
}

// RemoveEdge drops one edge.
func (b *GraphBuilder) RemoveEdge(id string) *GraphBuilder {
	b.g.Edges = slices.DeleteFunc(b.g.Edges, func(e ir.Edge) bool { return e.ID == id })
	return b
}

// Build returns a deep copy of the graph built so far.
func (b *GraphBuilder) Build() *ir.Graph {
	return Clone(&b.g)
}

// Clone deep-copies a graph.
func Clone(g *ir.Graph) *ir.Graph {
	out := &ir.Graph{Name: g.Name}
	out.Nodes = make([]ir.Node, len(g.Nodes))
	for i, n := range g.Nodes {
		n.Actions = slices.Clone(n.Actions)
		out.Nodes[i] = n
	}
	out.Edges = make([]ir.Edge, len(g.Edges))
	for i, e := range g.Edges {
		if e.Action != nil {
			a := *e.Action
			e.Action = &a
		}
		out.Edges[i] = e
	}
	return out
}

// Do builds a state action with the given trigger and behavior.
func Do(trigger, behavior string) ir.Action {
	return ir.Action{Trigger: trigger, Behavior: behavior}
}

// On builds a transition action with only a trigger.
func On(trigger string) *ir.Action {
	return &ir.Action{Trigger: trigger}
}

// DefaultProgram is a small baseline shaped like the stock unit programs:
// an initial pseudostate leading to a scan state that alternates with an
// attack state.
func DefaultProgram(name string) *ir.Graph {
	return NewGraph(name).
		Initial("init").
		State("scan", "Скан", Do("entry", "Сенсор.ПоискВрагаПоДистанции(Ближайший)")).
		State("attack", "Атака", Do("entry", "ОружиеЦелевое.АтаковатьЦель()")).
		Edge("e-init", "init", "scan", nil).
		Edge("e-found", "scan", "attack", On("Сенсор.ЦельПолучена")).
		Edge("e-lost", "attack", "scan", On("АнализаторЦели.ЦельПотеряна")).
		Build()
}
