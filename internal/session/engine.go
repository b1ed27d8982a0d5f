package session

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/apiary/internal/telemetry"
)

// DefaultMaxSessionLength is the ceiling above which a session's wall-clock
// span is not trusted as a game duration.
const DefaultMaxSessionLength = 6 * 3600.0

// DefaultBuggyVersions are client version prefixes that emit a zero
// creation index.
var DefaultBuggyVersions = []string{"1.5.3"}

// Options configures an Engine.
type Options struct {
	// MaxSessionLength in seconds; see DefaultMaxSessionLength.
	MaxSessionLength float64
	// BuggyVersions lists app version prefixes whose zero creation index
	// makes a record unorderable.
	BuggyVersions []string
}

// DefaultOptions returns the options used by the analyzer.
func DefaultOptions() Options {
	return Options{
		MaxSessionLength: DefaultMaxSessionLength,
		BuggyVersions:    slices.Clone(DefaultBuggyVersions),
	}
}

// Skipped counts tolerated gaps in the input.
type Skipped struct {
	// MissingWave counts core records without a wave.
	MissingWave int `json:"missing_wave"`
	// Unknown counts records of unknown kind.
	Unknown int `json:"unknown"`
	// Orphaned counts side-channel records seen before the first session
	// that never reached one.
	Orphaned int `json:"orphaned"`
}

// Add accumulates another set of counters.
func (s *Skipped) Add(o Skipped) {
	s.MissingWave += o.MissingWave
	s.Unknown += o.Unknown
	s.Orphaned += o.Orphaned
}

// Result is the output of one reconstruction.
type Result struct {
	Sessions []*Session
	Skipped  Skipped
}

// Engine reconstructs sessions. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine. Zero option fields take their defaults.
func New(opts Options) *Engine {
	if opts.MaxSessionLength <= 0 {
		opts.MaxSessionLength = DefaultMaxSessionLength
	}
	return &Engine{opts: opts}
}

// Reconstruct walks one player's records and returns their sessions in
// order. The input is not modified; it is re-sorted by the ordering key
// before the walk. A non-finite ordering key or an unorderable record from a
// buggy client aborts with a *telemetry.InputError.
func (e *Engine) Reconstruct(records []telemetry.Record) (*Result, error) {
	for i := range records {
		r := &records[i]
		if math.IsNaN(r.Timestamp) || math.IsInf(r.Timestamp, 0) {
			return nil, &telemetry.InputError{
				Code:     telemetry.ErrCodeBadOrdering,
				Message:  fmt.Sprintf("non-finite timestamp %v", r.Timestamp),
				RecordID: r.ID,
				Player:   r.Player,
			}
		}
		if telemetry.HasBuggyCreationIndex(r, e.opts.BuggyVersions) {
			return nil, &telemetry.InputError{
				Code:     telemetry.ErrCodeUnorderable,
				Message:  fmt.Sprintf("zero creation index from client %s", r.AppVersion),
				RecordID: r.ID,
				Player:   r.Player,
			}
		}
	}

	sorted := records
	if !telemetry.IsSorted(records) {
		sorted = telemetry.Sorted(records)
	}

	w := &walker{maxLength: e.opts.MaxSessionLength}
	for i := range sorted {
		w.step(&sorted[i])
	}
	w.close()
	w.skipped.Orphaned += w.bufferedCount()
	return &Result{Sessions: w.out, Skipped: w.skipped}, nil
}

// walker is the state of one walk.
type walker struct {
	maxLength float64

	out    []*Session
	cur    *Session
	curTry int

	// Side-channel buffers, flushed into the session open at close.
	games      []float64
	placements []float64
	edits      []float64
	saves      int

	pendingStart    float64
	hasPendingStart bool
	// orphanStart marks a pending StartGame seen while no session was open.
	orphanStart bool

	skipped Skipped
}

func (w *walker) step(r *telemetry.Record) {
	switch {
	case r.Kind.IsSideChannel():
		w.sideChannel(r)
	case r.Kind == telemetry.KindPolygonResult:
		if w.cur != nil {
			w.cur.extend(r)
		}
	case r.Kind.IsCore():
		w.core(r)
	default:
		w.skipped.Unknown++
	}
}

func (w *walker) sideChannel(r *telemetry.Record) {
	switch r.Kind {
	case telemetry.KindFinishPlacement:
		w.placements = append(w.placements, r.Duration)
	case telemetry.KindStartGame:
		w.pendingStart = r.Timestamp
		w.hasPendingStart = true
		w.orphanStart = w.cur == nil
	case telemetry.KindFinishGame:
		w.games = append(w.games, r.Duration)
		w.hasPendingStart = false
		w.orphanStart = false
	case telemetry.KindFinishEdit:
		w.edits = append(w.edits, r.Duration)
	case telemetry.KindSaveProgram:
		w.saves++
	}
	if w.cur != nil {
		w.cur.extend(r)
	}
}

func (w *walker) core(r *telemetry.Record) {
	if r.Wave <= 0 {
		w.skipped.MissingWave++
		return
	}
	if w.continues(r) {
		if _, seen := w.cur.WaveTries[r.Wave]; !seen {
			w.curTry = 1
			w.cur.WaveTries[r.Wave] = map[int]*TryStats{1: {}}
		}
		w.fold(r, false)
		return
	}
	w.close()
	w.open(r)
}

// continues is the continuation test.
func (w *walker) continues(r *telemetry.Record) bool {
	return w.cur != nil && r.Level == w.cur.Level && r.Wave >= w.cur.CurrentWave
}

func (w *walker) open(r *telemetry.Record) {
	s := newSession(r)
	if w.hasPendingStart && w.orphanStart {
		s.StartTimestamp = min(s.StartTimestamp, w.pendingStart)
		w.orphanStart = false
	}
	w.cur = s
	w.curTry = 1
	w.fold(r, true)
}

// fold adds a core record to the open session. A seeding record only fills
// the first bucket; it never advances the try.
func (w *walker) fold(r *telemetry.Record, seeding bool) {
	s := w.cur
	b := s.bucket(r.Wave, w.curTry)

	switch r.Kind {
	case telemetry.KindUnitEvent:
		b.Units++
		if r.UnitType != "" && !slices.Contains(s.UnitTypes, r.UnitType) {
			s.UnitTypes = append(s.UnitTypes, r.UnitType)
		}
		if a := r.Artifact; a != nil {
			s.Artifacts[a.ID] = ArtifactUse{
				UnitType:           r.UnitType,
				Checksum:           a.Checksum,
				Damage:             a.Damage,
				EnemiesDestroyed:   a.EnemiesDestroyed,
				ProgramActivations: a.ProgramActivations,
				Wave:               r.Wave,
				Timestamp:          r.Timestamp,
				Version:            r.AppVersion,
			}
			b.Programmed++
			if s.FirstProgramWave == 0 {
				s.FirstProgramWave = r.Wave
			}
		}
		if dmg, ok := r.Metric(telemetry.MetricDroneDamage); ok {
			b.Damage += dmg
		}
	case telemetry.KindTraditionEvent:
		if s.Tradition == "" {
			s.Tradition = r.Tradition
		}
	case telemetry.KindFinalResult:
		if !seeding && r.Try > w.curTry {
			w.curTry++
			s.bucket(r.Wave, w.curTry)
		}
	}

	// A seeding record carries its manual activations whatever its kind.
	if r.Kind == telemetry.KindUnitEvent || seeding {
		s.ManualActivations += r.ManualActivations
	}

	s.CurrentWave = r.Wave
	s.Records++
	s.extend(r)
}

// close flushes the side-channel buffers into the open session, finalizes
// it and appends it to the output.
func (w *walker) close() {
	s := w.cur
	if s == nil {
		return
	}
	s.GameDurations = append(s.GameDurations, w.games...)
	if w.hasPendingStart {
		s.GameDurations = append(s.GameDurations, max(0, s.FinishTimestamp-w.pendingStart))
		w.hasPendingStart = false
		w.orphanStart = false
	}
	s.PlacementDurations = append(s.PlacementDurations, w.placements...)
	s.EditDurations = append(s.EditDurations, w.edits...)
	s.Saves += w.saves
	w.games, w.placements, w.edits, w.saves = nil, nil, nil, 0

	s.finalize(w.maxLength)
	w.out = append(w.out, s)
	w.cur = nil
}

func (w *walker) bufferedCount() int {
	n := len(w.games) + len(w.placements) + len(w.edits) + w.saves
	if w.hasPendingStart {
		n++
	}
	return n
}
