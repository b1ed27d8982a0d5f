package registry

import (
	"fmt"

	"github.com/roach88/apiary/internal/graphml"
	"github.com/roach88/apiary/internal/ir"
)

// ArtifactSource reads player programs.
type ArtifactSource interface {
	LoadArtifact(player, artifactID string) (*ir.Graph, error)
}

// BaselineSource reads stock programs.
type BaselineSource interface {
	LoadBaseline(unitType, tag string) (*ir.Graph, error)
}

var (
	_ ArtifactSource = graphml.DirLoader{}
	_ BaselineSource = graphml.DirLoader{}
)

// MemorySource serves graphs from memory. Artifacts are keyed by artifact id
// alone; baselines by tag and unit type. Broken holds artifact ids whose
// document is unreadable.
type MemorySource struct {
	Artifacts map[string]*ir.Graph
	Baselines map[string]map[string]*ir.Graph
	Broken    map[string]bool
}

// LoadArtifact implements ArtifactSource.
func (m *MemorySource) LoadArtifact(_ string, artifactID string) (*ir.Graph, error) {
	if m.Broken[artifactID] {
		return nil, fmt.Errorf("%w: artifact %s", graphml.ErrMalformed, artifactID)
	}
	g, ok := m.Artifacts[artifactID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", graphml.ErrNotFound, artifactID)
	}
	return g, nil
}

// LoadBaseline implements BaselineSource.
func (m *MemorySource) LoadBaseline(unitType, tag string) (*ir.Graph, error) {
	g, ok := m.Baselines[tag][unitType]
	if !ok {
		return nil, fmt.Errorf("%w: baseline %s/%s", graphml.ErrNotFound, tag, unitType)
	}
	return g, nil
}
