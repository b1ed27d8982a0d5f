package ir

import (
	"fmt"
	"strings"
)

// NodeType distinguishes graph vertices.
type NodeType int

const (
	NodeSimpleState NodeType = iota
	NodeCompositeState
	NodeInitial
	NodeFinal
	NodeChoice
	NodeTerminate
)

var nodeTypeNames = []string{"state", "composite", "initial", "final", "choice", "terminate"}

func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("node(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// ParseNodeType is the inverse of NodeType.String.
func ParseNodeType(s string) (NodeType, error) {
	for i, name := range nodeTypeNames {
		if name == s {
			return NodeType(i), nil
		}
	}
	return NodeSimpleState, fmt.Errorf("unknown node type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return nil, fmt.Errorf("invalid node type %d", int(t))
	}
	return []byte(nodeTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(b []byte) error {
	v, err := ParseNodeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// IsState reports whether the vertex is a (simple or composite) state, the
// only kind that carries a display name and actions.
func (t NodeType) IsState() bool {
	return t == NodeSimpleState || t == NodeCompositeState
}

// Action is one trigger[guard]/behavior entry of a state or transition.
type Action struct {
	Trigger  string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Guard    string `json:"guard,omitempty" yaml:"guard,omitempty"`
	Behavior string `json:"behavior,omitempty" yaml:"behavior,omitempty"`
}

// HasBehavior reports whether the action has a non-empty behavior body.
func (a Action) HasBehavior() bool {
	return strings.TrimSpace(a.Behavior) != ""
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Trigger)
	if a.Guard != "" {
		b.WriteString("[" + a.Guard + "]")
	}
	b.WriteString("/")
	if a.Behavior != "" {
		b.WriteString("\n" + a.Behavior)
	}
	return b.String()
}

// Node is a vertex of a program graph.
type Node struct {
	ID      string   `json:"id" yaml:"id"`
	Type    NodeType `json:"type" yaml:"type"`
	Parent  string   `json:"parent,omitempty" yaml:"parent,omitempty"`
	Title   string   `json:"title,omitempty" yaml:"title,omitempty"`
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
	// Link references another state machine (submachine states).
	Link string `json:"link,omitempty" yaml:"link,omitempty"`
}

// Edge is a transition between two vertices. Action is nil for transitions
// without trigger or behavior.
type Edge struct {
	ID     string  `json:"id" yaml:"id"`
	Source string  `json:"source" yaml:"source"`
	Target string  `json:"target" yaml:"target"`
	Action *Action `json:"action,omitempty" yaml:"action,omitempty"`
}

// Graph is a state-machine-shaped behavior graph for one drone unit.
// Graphs are immutable after construction and safe to share across
// goroutines.
type Graph struct {
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Node returns the vertex with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Edge returns the transition with the given id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	for i := range g.Edges {
		if g.Edges[i].ID == id {
			return &g.Edges[i], true
		}
	}
	return nil, false
}

// Children returns the ids of the direct children of a vertex, in document
// order. An empty parent returns the top-level vertices.
func (g *Graph) Children(parent string) []string {
	var ids []string
	for _, n := range g.Nodes {
		if n.Parent == parent {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Initial returns the top-level initial pseudostate id, if any.
func (g *Graph) Initial() (string, bool) {
	for _, n := range g.Nodes {
		if n.Type == NodeInitial && n.Parent == "" {
			return n.ID, true
		}
	}
	return "", false
}

// Validate checks referential integrity: unique ids, parents and edge
// endpoints that exist.
func (g *Graph) Validate() error {
	seen := make(map[string]bool, len(g.Nodes)+len(g.Edges))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("graph %q: node without id", g.Name)
		}
		if seen[n.ID] {
			return fmt.Errorf("graph %q: duplicate element id %q", g.Name, n.ID)
		}
		seen[n.ID] = true
	}
	for _, n := range g.Nodes {
		if n.Parent != "" {
			if _, ok := g.Node(n.Parent); !ok {
				return fmt.Errorf("graph %q: node %q has unknown parent %q", g.Name, n.ID, n.Parent)
			}
		}
	}
	for _, e := range g.Edges {
		if e.ID == "" {
			return fmt.Errorf("graph %q: edge without id", g.Name)
		}
		if seen[e.ID] {
			return fmt.Errorf("graph %q: duplicate element id %q", g.Name, e.ID)
		}
		seen[e.ID] = true
		if _, ok := g.Node(e.Source); !ok {
			return fmt.Errorf("graph %q: edge %q has unknown source %q", g.Name, e.ID, e.Source)
		}
		if _, ok := g.Node(e.Target); !ok {
			return fmt.Errorf("graph %q: edge %q has unknown target %q", g.Name, e.ID, e.Target)
		}
	}
	return nil
}

// Canonical returns the graph as a canonical Object. The graph name is only
// included when withName is set; content identity ignores it because players
// rename programs freely.
func (g *Graph) Canonical(withName bool) Object {
	nodes := make(Array, len(g.Nodes))
	for i, n := range g.Nodes {
		obj := Object{
			"id":      String(n.ID),
			"type":    String(n.Type.String()),
			"actions": canonicalActions(n.Actions),
		}
		if n.Parent != "" {
			obj["parent"] = String(n.Parent)
		}
		if n.Title != "" {
			obj["title"] = String(n.Title)
		}
		if n.Link != "" {
			obj["link"] = String(n.Link)
		}
		nodes[i] = obj
	}
	edges := make(Array, len(g.Edges))
	for i, e := range g.Edges {
		obj := Object{
			"id":     String(e.ID),
			"source": String(e.Source),
			"target": String(e.Target),
		}
		if e.Action != nil {
			obj["action"] = canonicalAction(*e.Action)
		}
		edges[i] = obj
	}
	out := Object{"nodes": nodes, "edges": edges}
	if withName {
		out["name"] = String(g.Name)
	}
	return out
}

func canonicalActions(actions []Action) Array {
	arr := make(Array, len(actions))
	for i, a := range actions {
		arr[i] = canonicalAction(a)
	}
	return arr
}

func canonicalAction(a Action) Object {
	return Object{
		"trigger":  String(a.Trigger),
		"guard":    String(a.Guard),
		"behavior": String(a.Behavior),
	}
}
