package graphml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/apiary/internal/ir"
)

// MaxFileSize bounds how much of a program file is read.
const MaxFileSize = 8 << 20

// ErrMalformed marks files that are not a readable state machine document.
var ErrMalformed = errors.New("malformed program document")

type document struct {
	XMLName xml.Name `xml:"graphml"`
	Keys    []key    `xml:"key"`
	Graphs  []graph  `xml:"graph"`
}

type key struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
}

type graph struct {
	ID    string `xml:"id,attr"`
	Data  []data `xml:"data"`
	Nodes []node `xml:"node"`
	Edges []edge `xml:"edge"`
}

type node struct {
	ID     string  `xml:"id,attr"`
	Data   []data  `xml:"data"`
	Graphs []graph `xml:"graph"`
}

type edge struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
	Data   []data `xml:"data"`
}

type data struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// Attribute names, resolved through the document's <key> declarations. The
// Cyberiada key ids (dName, dData, ...) are accepted directly as well.
const (
	attrName         = "name"
	attrData         = "data"
	attrVertex       = "vertex"
	attrNote         = "note"
	attrStateMachine = "stateMachine"
)

var wellKnownKeys = map[string]string{
	"dName":         attrName,
	"dData":         attrData,
	"dVertex":       attrVertex,
	"dNote":         attrNote,
	"dStateMachine": attrStateMachine,
}

// metaNodeName is the name of the metadata vertex of CyberiadaML 1.0 files.
const metaNodeName = "CGML_META"

// ReadFile decodes the program graph stored at path.
func ReadFile(path string) (*ir.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode reads one CyberiadaML document. The first state machine of the
// document is returned; its name becomes the graph name.
func Decode(r io.Reader) (*ir.Graph, error) {
	var doc document
	if err := xml.NewDecoder(io.LimitReader(r, MaxFileSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Graphs) == 0 {
		return nil, fmt.Errorf("%w: no graph element", ErrMalformed)
	}

	d := &decoder{keys: make(map[string]string)}
	for k, v := range wellKnownKeys {
		d.keys[k] = v
	}
	for _, k := range doc.Keys {
		if k.ID != "" && k.Name != "" {
			d.keys[k.ID] = k.Name
		}
	}

	root := doc.Graphs[0]
	// CyberiadaML 1.0 wraps the machine in a state machine vertex.
	for _, n := range root.Nodes {
		if d.has(n.Data, attrStateMachine) {
			d.g.Name = strings.TrimSpace(d.value(n.Data, attrName))
			if len(n.Graphs) == 0 {
				return &d.g, nil
			}
			root = n.Graphs[0]
			break
		}
	}
	if d.g.Name == "" {
		d.g.Name = strings.TrimSpace(d.value(root.Data, attrName))
	}

	if err := d.walk(root, ""); err != nil {
		return nil, err
	}
	if err := d.g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &d.g, nil
}

type decoder struct {
	keys    map[string]string
	g       ir.Graph
	skipped map[string]bool
	edgeSeq int
}

func (d *decoder) attr(k string) string {
	if name, ok := d.keys[k]; ok {
		return name
	}
	return k
}

func (d *decoder) has(items []data, attr string) bool {
	for _, it := range items {
		if d.attr(it.Key) == attr {
			return true
		}
	}
	return false
}

func (d *decoder) value(items []data, attr string) string {
	for _, it := range items {
		if d.attr(it.Key) == attr {
			return it.Value
		}
	}
	return ""
}

func (d *decoder) walk(g graph, parent string) error {
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: vertex without id", ErrMalformed)
		}
		if d.has(n.Data, attrNote) || strings.TrimSpace(d.value(n.Data, attrName)) == metaNodeName {
			if d.skipped == nil {
				d.skipped = make(map[string]bool)
			}
			d.skipped[n.ID] = true
			continue
		}

		out := ir.Node{ID: n.ID, Parent: parent}
		if vertex := strings.TrimSpace(d.value(n.Data, attrVertex)); vertex != "" {
			t, err := vertexType(vertex)
			if err != nil {
				return fmt.Errorf("%w: vertex %q: %v", ErrMalformed, n.ID, err)
			}
			out.Type = t
		} else {
			out.Type = ir.NodeSimpleState
			if len(n.Graphs) > 0 && len(n.Graphs[0].Nodes) > 0 {
				out.Type = ir.NodeCompositeState
			}
			out.Title = strings.TrimSpace(d.value(n.Data, attrName))
			out.Actions = ParseActions(d.value(n.Data, attrData))
		}
		d.g.Nodes = append(d.g.Nodes, out)

		for _, sub := range n.Graphs {
			if err := d.walk(sub, n.ID); err != nil {
				return err
			}
		}
	}

	for _, e := range g.Edges {
		if d.skipped[e.Source] || d.skipped[e.Target] {
			continue
		}
		out := ir.Edge{ID: e.ID, Source: e.Source, Target: e.Target}
		if out.ID == "" {
			out.ID = fmt.Sprintf("%s->%s#%d", e.Source, e.Target, d.edgeSeq)
		}
		d.edgeSeq++
		if actions := ParseActions(d.value(e.Data, attrData)); len(actions) > 0 {
			a := actions[0]
			out.Action = &a
		}
		d.g.Edges = append(d.g.Edges, out)
	}
	return nil
}

func vertexType(s string) (ir.NodeType, error) {
	switch s {
	case "initial":
		return ir.NodeInitial, nil
	case "final":
		return ir.NodeFinal, nil
	case "choice":
		return ir.NodeChoice, nil
	case "terminate":
		return ir.NodeTerminate, nil
	}
	return ir.NodeSimpleState, fmt.Errorf("unknown vertex kind %q", s)
}
