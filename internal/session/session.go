package session

import (
	"maps"
	"slices"

	"github.com/roach88/apiary/internal/telemetry"
)

// TryStats tallies one (wave, try) bucket.
type TryStats struct {
	Units      int     `json:"units"`
	Programmed int     `json:"programmed"`
	Damage     float64 `json:"damage"`
}

// ArtifactUse is the last observation of an artifact within a session.
type ArtifactUse struct {
	UnitType           string  `json:"unit_type"`
	Checksum           string  `json:"checksum,omitempty"`
	Damage             float64 `json:"damage"`
	EnemiesDestroyed   int     `json:"enemies_destroyed"`
	ProgramActivations int     `json:"program_activations"`
	Wave               int     `json:"wave"`
	Timestamp          float64 `json:"timestamp"`
	Version            string  `json:"version"`
}

// Session is one contiguous episode of play.
type Session struct {
	Player      string          `json:"player"`
	Level       telemetry.Level `json:"level"`
	StartWave   int             `json:"start_wave"`
	CurrentWave int             `json:"current_wave"`

	// WaveTries maps wave -> try -> tallies.
	WaveTries map[int]map[int]*TryStats `json:"wave_tries"`

	Versions          []string               `json:"versions"`
	Tradition         string                 `json:"tradition,omitempty"`
	UnitTypes         []string               `json:"unit_types"`
	Artifacts         map[string]ArtifactUse `json:"artifacts"`
	ManualActivations int                    `json:"manual_activations"`
	Saves             int                    `json:"saves"`
	Records           int                    `json:"records"`

	StartTimestamp      float64 `json:"start_timestamp"`
	FinishTimestamp     float64 `json:"finish_timestamp"`
	StartMetricsID      int64   `json:"start_metrics_id"`
	FinishMetricsID     int64   `json:"finish_metrics_id"`
	StartCreationIndex  int64   `json:"start_creation_index"`
	FinishCreationIndex int64   `json:"finish_creation_index"`

	GameDurations      []float64 `json:"game_durations"`
	PlacementDurations []float64 `json:"placement_durations"`
	EditDurations      []float64 `json:"edit_durations"`

	// Derived at close.
	Tries                 int     `json:"tries"`
	TotalUnits            int     `json:"total_units"`
	TotalProgrammed       int     `json:"total_programmed"`
	AvgUnitsPerTry        float64 `json:"avg_units_per_try"`
	AvgProgrammedFraction float64 `json:"avg_programmed_fraction"`
	AvgDamagePerUnit      float64 `json:"avg_damage_per_unit"`
	AvgGameDuration       float64 `json:"avg_game_duration"`
	AvgPlacementTime      float64 `json:"avg_placement_time"`
	AvgEditTime           float64 `json:"avg_edit_time"`
	// FirstProgramWave is the earliest wave with a programmed unit, 0 if none.
	FirstProgramWave int `json:"first_program_wave"`

	versions map[string]bool
}

func newSession(r *telemetry.Record) *Session {
	return &Session{
		Player:              r.Player,
		Level:               r.Level,
		StartWave:           r.Wave,
		CurrentWave:         r.Wave,
		WaveTries:           map[int]map[int]*TryStats{r.Wave: {1: {}}},
		Artifacts:           make(map[string]ArtifactUse),
		StartTimestamp:      r.Timestamp,
		FinishTimestamp:     r.Timestamp,
		StartMetricsID:      r.MetricsID,
		FinishMetricsID:     r.MetricsID,
		StartCreationIndex:  r.CreationIndex,
		FinishCreationIndex: r.CreationIndex,
		versions:            map[string]bool{r.AppVersion: true},
	}
}

// Waves returns the waves seen in the session, ascending.
func (s *Session) Waves() []int {
	return slices.Sorted(maps.Keys(s.WaveTries))
}

// ArtifactIDs returns the artifact ids used in the session, sorted.
func (s *Session) ArtifactIDs() []string {
	return slices.Sorted(maps.Keys(s.Artifacts))
}

// Duration is the wall-clock span of the session.
func (s *Session) Duration() float64 {
	return s.FinishTimestamp - s.StartTimestamp
}

func (s *Session) bucket(wave, try int) *TryStats {
	tries, ok := s.WaveTries[wave]
	if !ok {
		tries = make(map[int]*TryStats)
		s.WaveTries[wave] = tries
	}
	b, ok := tries[try]
	if !ok {
		b = &TryStats{}
		tries[try] = b
	}
	return b
}

// extend moves the finish markers forward, never backward.
func (s *Session) extend(r *telemetry.Record) {
	s.FinishTimestamp = max(s.FinishTimestamp, r.Timestamp)
	s.FinishMetricsID = max(s.FinishMetricsID, r.MetricsID)
	s.FinishCreationIndex = max(s.FinishCreationIndex, r.CreationIndex)
	if r.AppVersion != "" {
		s.versions[r.AppVersion] = true
	}
}

// finalize computes the derived fields.
func (s *Session) finalize(maxLength float64) {
	var units, fractions, damage float64
	s.Tries, s.TotalUnits, s.TotalProgrammed = 0, 0, 0
	for _, w := range s.Waves() {
		tries := s.WaveTries[w]
		for _, t := range slices.Sorted(maps.Keys(tries)) {
			b := tries[t]
			if b.Units == 0 {
				continue
			}
			s.Tries++
			s.TotalUnits += b.Units
			s.TotalProgrammed += b.Programmed
			units += float64(b.Units)
			fractions += float64(b.Programmed) / float64(b.Units)
			damage += b.Damage / float64(b.Units)
		}
	}
	s.AvgUnitsPerTry, s.AvgProgrammedFraction, s.AvgDamagePerUnit = 0, 0, 0
	if s.Tries > 0 {
		n := float64(s.Tries)
		s.AvgUnitsPerTry = units / n
		s.AvgProgrammedFraction = fractions / n
		s.AvgDamagePerUnit = damage / n
	}

	switch {
	case len(s.GameDurations) > 0:
		s.AvgGameDuration = mean(s.GameDurations)
	case s.Duration() < maxLength:
		s.AvgGameDuration = s.Duration()
	default:
		s.AvgGameDuration = 0
	}
	s.AvgPlacementTime = mean(s.PlacementDurations)
	s.AvgEditTime = mean(s.EditDurations)

	s.Versions = slices.Sorted(maps.Keys(s.versions))
}

// mean sums in sorted order so the result does not depend on sample order.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	var sum float64
	for _, x := range sorted {
		sum += x
	}
	return sum / float64(len(sorted))
}
