package graphml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/apiary/internal/ir"
)

// Ext is the file extension of program documents.
const Ext = ".graphml"

// ErrNotFound is returned when no document exists for an artifact.
var ErrNotFound = errors.New("program document not found")

// DirLoader reads player programs laid out as <Root>/<player>/<artifact>.graphml
// and baselines as <Root>/[<tag>/]<unit>.graphml.
type DirLoader struct {
	Root string
}

// LoadArtifact reads the program an artifact points at. With an empty player
// every player directory is searched in name order, mirroring exports where
// the artifact owner is unknown.
func (l DirLoader) LoadArtifact(player, artifactID string) (*ir.Graph, error) {
	if artifactID == "" || filepath.Base(artifactID) != artifactID {
		return nil, fmt.Errorf("invalid artifact id %q", artifactID)
	}
	if player != "" {
		return l.read(filepath.Join(l.Root, player, artifactID+Ext))
	}

	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, artifactID)
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		g, err := l.read(filepath.Join(l.Root, e.Name(), artifactID+Ext))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return g, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, artifactID)
}

// LoadBaseline reads the stock program of a unit type for a version tag. An
// empty tag reads from the root directory.
func (l DirLoader) LoadBaseline(unitType, tag string) (*ir.Graph, error) {
	return l.read(filepath.Join(l.Root, tag, unitType+Ext))
}

// Tags lists the version subdirectories that hold baselines, sorted.
func (l DirLoader) Tags() ([]string, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, e := range entries {
		if e.IsDir() {
			tags = append(tags, e.Name())
		}
	}
	slices.Sort(tags)
	return tags, nil
}

func (l DirLoader) read(path string) (*ir.Graph, error) {
	g, err := ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return g, err
}
