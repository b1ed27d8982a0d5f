package registry

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/apiary/internal/graphml"
	"github.com/roach88/apiary/internal/ir"
)

var (
	// ErrNotFound: the artifact has no program document.
	ErrNotFound = errors.New("artifact not found")
	// ErrBrokenProgram: the program document exists but cannot be read.
	ErrBrokenProgram = errors.New("broken program")
	// ErrNoBaseline: no stock program exists for the unit type.
	ErrNoBaseline = errors.New("no baseline program")
)

// Observation describes where a program graph was seen.
type Observation struct {
	Player     string
	ArtifactID string
	UnitType   string
	AppVersion string
	Timestamp  float64
}

// UniqueProgram is the representative of a content-hash class of programs.
// Values returned by the Registry are snapshots.
type UniqueProgram struct {
	Hash       string
	Graph      *ir.Graph
	UnitType   string
	VersionTag string
	ArtifactID string
	Player     string
	FirstSeen  float64
	Usage      int
	Artifacts  []string
	Players    []string
}

type programEntry struct {
	UniqueProgram
	artifacts map[string]bool
	players   map[string]bool
}

func (e *programEntry) snapshot() UniqueProgram {
	p := e.UniqueProgram
	p.Artifacts = slices.Sorted(maps.Keys(e.artifacts))
	p.Players = slices.Sorted(maps.Keys(e.players))
	return p
}

type baselineKey struct {
	unit, tag string
}

type baselineEntry struct {
	graph *ir.Graph
	hash  string
	err   error
}

type artifactEntry struct {
	graph *ir.Graph
	err   error
}

// Registry is the program graph registry of one run.
type Registry struct {
	artifacts ArtifactSource
	baselines BaselineSource
	rules     VersionRules

	mu            sync.RWMutex
	baselineCache map[baselineKey]baselineEntry
	artifactCache map[string]artifactEntry
	programs      map[string]*programEntry
	named         map[string]bool
	defaults      map[string]string // baseline hash -> unit type
}

// New creates a registry over the given sources.
func New(artifacts ArtifactSource, baselines BaselineSource, rules VersionRules) *Registry {
	return &Registry{
		artifacts:     artifacts,
		baselines:     baselines,
		rules:         rules,
		baselineCache: make(map[baselineKey]baselineEntry),
		artifactCache: make(map[string]artifactEntry),
		programs:      make(map[string]*programEntry),
		named:         make(map[string]bool),
		defaults:      make(map[string]string),
	}
}

// VersionTag returns the baseline tag for a client version.
func (r *Registry) VersionTag(appVersion string) string {
	return r.rules.Tag(appVersion)
}

// LoadBaseline returns the stock program of a unit type for a version tag.
// A tag without its own baseline falls back to the default tag.
func (r *Registry) LoadBaseline(unitType, tag string) (*ir.Graph, error) {
	g, _, err := r.baseline(unitType, tag)
	if err != nil && tag != "" && errors.Is(err, ErrNoBaseline) {
		g, _, err = r.baseline(unitType, "")
	}
	return g, err
}

// BaselineHash is LoadBaseline returning the baseline's content hash.
func (r *Registry) BaselineHash(unitType, tag string) (string, error) {
	_, h, err := r.baseline(unitType, tag)
	if err != nil && tag != "" && errors.Is(err, ErrNoBaseline) {
		_, h, err = r.baseline(unitType, "")
	}
	return h, err
}

func (r *Registry) baseline(unitType, tag string) (*ir.Graph, string, error) {
	k := baselineKey{unit: unitType, tag: tag}
	r.mu.RLock()
	e, ok := r.baselineCache[k]
	r.mu.RUnlock()
	if ok {
		return e.graph, e.hash, e.err
	}

	e = r.loadBaseline(unitType, tag)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.baselineCache[k]; ok {
		return prev.graph, prev.hash, prev.err
	}
	r.baselineCache[k] = e
	if e.err == nil {
		if _, seen := r.defaults[e.hash]; !seen {
			r.defaults[e.hash] = unitType
		}
	}
	return e.graph, e.hash, e.err
}

func (r *Registry) loadBaseline(unitType, tag string) baselineEntry {
	if r.baselines == nil {
		return baselineEntry{err: fmt.Errorf("%w: %s", ErrNoBaseline, unitType)}
	}
	g, err := r.baselines.LoadBaseline(unitType, tag)
	if err != nil {
		if errors.Is(err, graphml.ErrNotFound) {
			return baselineEntry{err: fmt.Errorf("%w: %s (tag %q)", ErrNoBaseline, unitType, tag)}
		}
		return baselineEntry{err: fmt.Errorf("baseline %s (tag %q): %w", unitType, tag, err)}
	}
	h, err := ir.ProgramHash(g)
	if err != nil {
		return baselineEntry{err: fmt.Errorf("baseline %s: %w", unitType, err)}
	}
	return baselineEntry{graph: g, hash: h}
}

// IsDefault reports whether hash is the hash of a loaded baseline, and for
// which unit type.
func (r *Registry) IsDefault(hash string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.defaults[hash]
	return u, ok
}

// ResolveArtifact returns the program an artifact points at. Missing
// documents yield ErrNotFound, unreadable ones ErrBrokenProgram. Results,
// including failures, are cached.
func (r *Registry) ResolveArtifact(player, artifactID string) (*ir.Graph, error) {
	k := player + "/" + artifactID
	r.mu.RLock()
	e, ok := r.artifactCache[k]
	r.mu.RUnlock()
	if ok {
		return e.graph, e.err
	}

	if r.artifacts == nil {
		e.err = fmt.Errorf("%w: %s", ErrNotFound, artifactID)
	} else {
		g, err := r.artifacts.LoadArtifact(player, artifactID)
		switch {
		case err == nil:
			e.graph = g
		case errors.Is(err, graphml.ErrNotFound):
			e.err = fmt.Errorf("%w: %s", ErrNotFound, artifactID)
		default:
			e.err = fmt.Errorf("%w: %s: %v", ErrBrokenProgram, artifactID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.artifactCache[k]; ok {
		return prev.graph, prev.err
	}
	r.artifactCache[k] = e
	return e.graph, e.err
}

// Canonicalize records an observation of a program graph and returns its
// Unique Program. The first observation of a hash is the representative.
func (r *Registry) Canonicalize(g *ir.Graph, obs Observation) (UniqueProgram, error) {
	h, err := ir.ProgramHash(g)
	if err != nil {
		return UniqueProgram{}, fmt.Errorf("canonicalize %s: %w", obs.ArtifactID, err)
	}
	named, err := ir.NamedProgramHash(g)
	if err != nil {
		return UniqueProgram{}, fmt.Errorf("canonicalize %s: %w", obs.ArtifactID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[named] = true
	e, ok := r.programs[h]
	if !ok {
		e = &programEntry{
			UniqueProgram: UniqueProgram{
				Hash:       h,
				Graph:      g,
				UnitType:   obs.UnitType,
				VersionTag: r.rules.Tag(obs.AppVersion),
				ArtifactID: obs.ArtifactID,
				Player:     obs.Player,
				FirstSeen:  obs.Timestamp,
			},
			artifacts: make(map[string]bool),
			players:   make(map[string]bool),
		}
		r.programs[h] = e
	}
	e.Usage++
	if obs.ArtifactID != "" {
		e.artifacts[obs.ArtifactID] = true
	}
	if obs.Player != "" {
		e.players[obs.Player] = true
	}
	return e.snapshot(), nil
}

// Program returns the Unique Program with the given hash.
func (r *Registry) Program(hash string) (UniqueProgram, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.programs[hash]
	if !ok {
		return UniqueProgram{}, false
	}
	return e.snapshot(), true
}

// Programs returns every Unique Program, most used first, ties by hash.
func (r *Registry) Programs() []UniqueProgram {
	r.mu.RLock()
	out := make([]UniqueProgram, 0, len(r.programs))
	for _, e := range r.programs {
		out = append(out, e.snapshot())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b UniqueProgram) int {
		if c := cmp.Compare(b.Usage, a.Usage); c != 0 {
			return c
		}
		return cmp.Compare(a.Hash, b.Hash)
	})
	return out
}

// NamedCount returns how many distinct programs were seen when graph names
// are taken into account.
func (r *Registry) NamedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.named)
}
