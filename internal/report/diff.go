package report

import (
	"fmt"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
)

// NodeInfo describes one vertex.
type NodeInfo struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Title   string   `json:"title,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// EdgeInfo describes one transition.
type EdgeInfo struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Action string `json:"action,omitempty"`
}

// NodeChange is a matched vertex pair that differs.
type NodeChange struct {
	Baseline  NodeInfo `json:"baseline"`
	Candidate NodeInfo `json:"candidate"`
	Diff      string   `json:"diff"`
}

// EdgeChange is a matched transition pair that differs.
type EdgeChange struct {
	Baseline  EdgeInfo `json:"baseline"`
	Candidate EdgeInfo `json:"candidate"`
	Diff      string   `json:"diff"`
}

// Inspection explains how a program differs from its baseline.
type Inspection struct {
	Baseline     string         `json:"baseline"`
	Candidate    string         `json:"candidate"`
	Relation     string         `json:"relation"`
	NewNodes     []NodeInfo     `json:"new_nodes"`
	MissingNodes []NodeInfo     `json:"missing_nodes"`
	ChangedNodes []NodeChange   `json:"changed_nodes"`
	NewEdges     []EdgeInfo     `json:"new_edges"`
	MissingEdges []EdgeInfo     `json:"missing_edges"`
	ChangedEdges []EdgeChange   `json:"changed_edges"`
	Flags        classify.Flags `json:"flags"`
}

// Inspect compares candidate with baseline through the classifier's oracle.
func Inspect(cls *classify.Classifier, baseline, candidate *ir.Graph) (*Inspection, error) {
	diff, err := cls.Oracle.Compare(baseline, candidate)
	if err != nil {
		return nil, fmt.Errorf("inspect %q: %w", candidate.Name, err)
	}
	ins := &Inspection{
		Baseline:  baseline.Name,
		Candidate: candidate.Name,
		Relation:  diff.Relation.String(),
		Flags:     cls.FromDiff(baseline, candidate, diff),
	}
	for _, id := range diff.NewNodes {
		ins.NewNodes = append(ins.NewNodes, nodeInfo(candidate, id))
	}
	for _, id := range diff.MissingNodes {
		ins.MissingNodes = append(ins.MissingNodes, nodeInfo(baseline, id))
	}
	for _, p := range diff.ChangedNodes() {
		ins.ChangedNodes = append(ins.ChangedNodes, NodeChange{
			Baseline:  nodeInfo(baseline, p.Baseline),
			Candidate: nodeInfo(candidate, p.Candidate),
			Diff:      p.Diff.String(),
		})
	}
	for _, id := range diff.NewEdges {
		ins.NewEdges = append(ins.NewEdges, edgeInfo(candidate, id))
	}
	for _, id := range diff.MissingEdges {
		ins.MissingEdges = append(ins.MissingEdges, edgeInfo(baseline, id))
	}
	for _, p := range diff.ChangedEdges() {
		ins.ChangedEdges = append(ins.ChangedEdges, EdgeChange{
			Baseline:  edgeInfo(baseline, p.Baseline),
			Candidate: edgeInfo(candidate, p.Candidate),
			Diff:      p.Diff.String(),
		})
	}
	return ins, nil
}

// Unchanged reports whether the diff found nothing to show.
func (ins *Inspection) Unchanged() bool {
	return len(ins.NewNodes)+len(ins.MissingNodes)+len(ins.ChangedNodes)+
		len(ins.NewEdges)+len(ins.MissingEdges)+len(ins.ChangedEdges) == 0
}

func nodeInfo(g *ir.Graph, id string) NodeInfo {
	n, ok := g.Node(id)
	if !ok {
		return NodeInfo{ID: id}
	}
	info := NodeInfo{ID: n.ID, Type: n.Type.String(), Title: n.Title}
	for _, a := range n.Actions {
		info.Actions = append(info.Actions, a.String())
	}
	return info
}

func edgeInfo(g *ir.Graph, id string) EdgeInfo {
	e, ok := g.Edge(id)
	if !ok {
		return EdgeInfo{ID: id}
	}
	info := EdgeInfo{ID: e.ID, Source: e.Source, Target: e.Target}
	if e.Action != nil {
		info.Action = e.Action.String()
	}
	return info
}
