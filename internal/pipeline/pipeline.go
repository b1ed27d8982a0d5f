package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/session"
	"github.com/roach88/apiary/internal/telemetry"
)

// ResavePolicy decides whether a program identical to the player's previous
// program counts as a new observation.
type ResavePolicy string

const (
	// ResaveCollapse treats a consecutive identical program as a re-save of
	// the previous one: it is kept in the timeline but not counted.
	ResaveCollapse ResavePolicy = "collapse"
	// ResaveDistinct counts every deployed artifact.
	ResaveDistinct ResavePolicy = "distinct"
)

// ParseResavePolicy validates a policy name. The empty string selects
// ResaveCollapse.
func ParseResavePolicy(s string) (ResavePolicy, error) {
	switch ResavePolicy(s) {
	case "", ResaveCollapse:
		return ResaveCollapse, nil
	case ResaveDistinct:
		return ResaveDistinct, nil
	}
	return "", fmt.Errorf("unknown resave policy %q (want %q or %q)", s, ResaveCollapse, ResaveDistinct)
}

// Options configures a Pipeline.
type Options struct {
	// Workers bounds each fan-out stage. Zero or less uses GOMAXPROCS.
	Workers int
	Session session.Options
	Resave  ResavePolicy
}

// DefaultOptions returns the options used by the CLI when no config is given.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.GOMAXPROCS(0),
		Session: session.DefaultOptions(),
		Resave:  ResaveCollapse,
	}
}

// Unresolved is an artifact whose program could not be loaded.
type Unresolved struct {
	ArtifactID string `json:"artifact_id"`
	UnitType   string `json:"unit_type"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
}

// ProgramUse is one deployed artifact in a player's program timeline, in
// order of first deployment.
type ProgramUse struct {
	ArtifactID string  `json:"artifact_id"`
	UnitType   string  `json:"unit_type"`
	AppVersion string  `json:"app_version"`
	Timestamp  float64 `json:"timestamp"`
	Hash       string  `json:"hash"`
	// Default is set when the program equals its unit's stock program.
	Default bool `json:"default,omitempty"`
	// Resave is set when the use was collapsed into the previous one.
	Resave bool `json:"resave,omitempty"`
}

// Progression compares a player's first program with their second distinct
// one.
type Progression struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Flags classify.Flags `json:"flags"`
	Error string         `json:"error,omitempty"`
}

// PlayerResult is everything a run learned about one player.
type PlayerResult struct {
	Player      string             `json:"player"`
	Sessions    []*session.Session `json:"sessions"`
	Skipped     session.Skipped    `json:"skipped"`
	Programs    []ProgramUse       `json:"programs"`
	Unresolved  []Unresolved       `json:"unresolved"`
	Progression *Progression       `json:"progression,omitempty"`
}

// DefaultPrograms counts deployed artifacts that were stock programs.
func (p *PlayerResult) DefaultPrograms() int {
	n := 0
	for _, u := range p.Programs {
		if u.Default {
			n++
		}
	}
	return n
}

// BrokenArtifacts counts artifacts whose document could not be read.
func (p *PlayerResult) BrokenArtifacts() int {
	n := 0
	for _, u := range p.Unresolved {
		if u.Reason == UnresolvedBroken {
			n++
		}
	}
	return n
}

// DistinctPrograms returns the hashes of the player's non-default programs in
// order of first deployment.
func (p *PlayerResult) DistinctPrograms() []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range p.Programs {
		if u.Default || seen[u.Hash] {
			continue
		}
		seen[u.Hash] = true
		out = append(out, u.Hash)
	}
	return out
}

// ProgramResult is the classification of one unique program.
type ProgramResult struct {
	Program registry.UniqueProgram `json:"program"`
	Broken  bool                   `json:"broken"`
	Error   string                 `json:"error,omitempty"`
	Flags   classify.Flags         `json:"flags"`
	Diff    *oracle.DiffResult     `json:"-"`
}

// Result is the read-only output of a run.
type Result struct {
	// Players in ascending id order.
	Players []*PlayerResult
	// Programs, most used first.
	Programs []*ProgramResult
	Skipped  session.Skipped
	// NamedPrograms counts distinct programs when graph names are taken into
	// account.
	NamedPrograms int

	players  map[string]*PlayerResult
	programs map[string]*ProgramResult
}

// Player looks up a player's result.
func (r *Result) Player(id string) (*PlayerResult, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Program looks up a unique program by hash.
func (r *Result) Program(hash string) (*ProgramResult, bool) {
	p, ok := r.programs[hash]
	return p, ok
}

// Sessions returns every session of the run, grouped by player in player
// order.
func (r *Result) Sessions() []*session.Session {
	var out []*session.Session
	for _, p := range r.Players {
		out = append(out, p.Sessions...)
	}
	return out
}

// BrokenPrograms counts unique programs that could not be classified.
func (r *Result) BrokenPrograms() int {
	n := 0
	for _, p := range r.Programs {
		if p.Broken {
			n++
		}
	}
	return n
}

// Pipeline wires reconstruction, the program registry and the classifier.
type Pipeline struct {
	reg     *registry.Registry
	cls     *classify.Classifier
	engine  *session.Engine
	opts    Options
	metrics *Metrics
	log     *slog.Logger
}

// New creates a pipeline. A nil metrics registers fresh counters on a private
// registry; a nil logger uses slog.Default().
func New(reg *registry.Registry, cls *classify.Classifier, opts Options, metrics *Metrics, logger *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Resave == "" {
		opts.Resave = ResaveCollapse
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		reg:     reg,
		cls:     cls,
		engine:  session.New(opts.Session),
		opts:    opts,
		metrics: metrics,
		log:     logger,
	}
}

// resolved is a deployed artifact with its loaded program.
type resolved struct {
	use   ProgramUse
	graph *ir.Graph
}

type playerWork struct {
	res      *PlayerResult
	resolved []resolved
}

// Run analyzes one batch. The input map is not modified.
func (p *Pipeline) Run(ctx context.Context, players map[string][]telemetry.Record) (*Result, error) {
	ids := slices.Sorted(maps.Keys(players))
	p.log.Info("analysis starting", "players", len(ids), "workers", p.opts.Workers)

	work := make([]*playerWork, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			w, err := p.player(id, players[id])
			if err != nil {
				return err
			}
			work[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{
		players:  make(map[string]*PlayerResult, len(ids)),
		programs: make(map[string]*ProgramResult),
	}
	for _, w := range work {
		p.canonicalize(w)
		out.Players = append(out.Players, w.res)
		out.players[w.res.Player] = w.res
		out.Skipped.Add(w.res.Skipped)
	}

	if err := p.classify(ctx, out); err != nil {
		return nil, err
	}
	out.NamedPrograms = p.reg.NamedCount()

	p.log.Info("analysis finished",
		"players", len(out.Players),
		"sessions", len(out.Sessions()),
		"programs", len(out.Programs),
		"broken", out.BrokenPrograms(),
	)
	return out, nil
}

// player runs stage 1 for one player.
func (p *Pipeline) player(id string, records []telemetry.Record) (*playerWork, error) {
	rec, err := p.engine.Reconstruct(records)
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", id, err)
	}
	p.metrics.Players.Inc()
	p.metrics.Sessions.Add(float64(len(rec.Sessions)))
	p.metrics.recordSkipped(rec.Skipped.MissingWave, rec.Skipped.Unknown, rec.Skipped.Orphaned)

	w := &playerWork{res: &PlayerResult{
		Player:   id,
		Sessions: rec.Sessions,
		Skipped:  rec.Skipped,
	}}
	for _, use := range deployments(records) {
		g, err := p.reg.ResolveArtifact(id, use.ArtifactID)
		if err != nil {
			w.res.Unresolved = append(w.res.Unresolved, p.unresolved(use, err))
			continue
		}
		w.resolved = append(w.resolved, resolved{use: use, graph: g})
	}
	p.log.Debug("player reconstructed",
		"player", id,
		"sessions", len(rec.Sessions),
		"artifacts", len(w.resolved),
		"unresolved", len(w.res.Unresolved),
	)
	return w, nil
}

func (p *Pipeline) unresolved(use ProgramUse, err error) Unresolved {
	reason := UnresolvedNotFound
	if errors.Is(err, registry.ErrBrokenProgram) {
		reason = UnresolvedBroken
	}
	p.metrics.ArtifactsUnresolved.WithLabelValues(reason).Inc()
	return Unresolved{
		ArtifactID: use.ArtifactID,
		UnitType:   use.UnitType,
		Reason:     reason,
		Error:      err.Error(),
	}
}

// deployments lists the first deployment of every artifact in ordering-key
// order.
func deployments(records []telemetry.Record) []ProgramUse {
	sorted := records
	if !telemetry.IsSorted(records) {
		sorted = telemetry.Sorted(records)
	}
	var out []ProgramUse
	seen := make(map[string]bool)
	for i := range sorted {
		r := &sorted[i]
		if r.Kind != telemetry.KindUnitEvent || r.Artifact == nil || r.Artifact.ID == "" {
			continue
		}
		if seen[r.Artifact.ID] {
			continue
		}
		seen[r.Artifact.ID] = true
		out = append(out, ProgramUse{
			ArtifactID: r.Artifact.ID,
			UnitType:   r.UnitType,
			AppVersion: r.AppVersion,
			Timestamp:  r.Timestamp,
		})
	}
	return out
}

// canonicalize records a player's resolved programs in the registry. It runs
// sequentially, in player order.
func (p *Pipeline) canonicalize(w *playerWork) {
	res := w.res
	var last string
	for _, r := range w.resolved {
		use := r.use
		h, err := ir.ProgramHash(r.graph)
		if err != nil {
			res.Unresolved = append(res.Unresolved, p.unresolved(use, fmt.Errorf("%w: %v", registry.ErrBrokenProgram, err)))
			continue
		}
		use.Hash = h

		tag := p.reg.VersionTag(use.AppVersion)
		if bh, err := p.reg.BaselineHash(use.UnitType, tag); err == nil && bh == h {
			use.Default = true
			p.metrics.ProgramsDefault.Inc()
		} else if p.opts.Resave == ResaveCollapse && h == last {
			use.Resave = true
			p.metrics.ProgramsResaved.Inc()
		} else {
			_, err := p.reg.Canonicalize(r.graph, registry.Observation{
				Player:     res.Player,
				ArtifactID: use.ArtifactID,
				UnitType:   use.UnitType,
				AppVersion: use.AppVersion,
				Timestamp:  use.Timestamp,
			})
			if err != nil {
				res.Unresolved = append(res.Unresolved, p.unresolved(use, fmt.Errorf("%w: %v", registry.ErrBrokenProgram, err)))
				continue
			}
		}
		last = h
		res.Programs = append(res.Programs, use)
	}
}

// classify runs stage 2: every unique program against its baseline, and
// every player's first program against their second.
func (p *Pipeline) classify(ctx context.Context, out *Result) error {
	programs := p.reg.Programs()
	results := make([]*ProgramResult, len(programs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, up := range programs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results[i] = p.classifyProgram(up)
			return nil
		})
	}
	for _, pr := range out.Players {
		hashes := pr.DistinctPrograms()
		if len(hashes) < 2 {
			continue
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			pr.Progression = p.progression(hashes[0], hashes[1])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r.Broken {
			p.metrics.ProgramsBroken.Inc()
			p.log.Warn("program not classified", "hash", r.Program.Hash, "artifact", r.Program.ArtifactID, "error", r.Error)
		} else {
			p.metrics.ProgramsClassified.Inc()
		}
		out.Programs = append(out.Programs, r)
		out.programs[r.Program.Hash] = r
	}
	return nil
}

func (p *Pipeline) classifyProgram(up registry.UniqueProgram) *ProgramResult {
	res := &ProgramResult{Program: up}
	base, err := p.reg.LoadBaseline(up.UnitType, up.VersionTag)
	if err != nil {
		res.Broken, res.Error = true, err.Error()
		return res
	}
	diff, err := p.cls.Oracle.Compare(base, up.Graph)
	if err != nil {
		res.Broken, res.Error = true, err.Error()
		return res
	}
	res.Diff = diff
	res.Flags = p.cls.FromDiff(base, up.Graph, diff)
	return res
}

func (p *Pipeline) progression(from, to string) *Progression {
	pg := &Progression{From: from, To: to}
	a, okA := p.reg.Program(from)
	b, okB := p.reg.Program(to)
	if !okA || !okB {
		pg.Error = "program not registered"
		return pg
	}
	flags, err := p.cls.Classify(a.Graph, b.Graph)
	if err != nil {
		pg.Error = err.Error()
		return pg
	}
	pg.Flags = flags
	return pg
}
