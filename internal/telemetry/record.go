package telemetry

import (
	"fmt"
	"strconv"
)

// Kind identifies what an activity record reports.
type Kind int

const (
	KindUnknown Kind = iota
	KindFinalResult
	KindUnitEvent
	KindTraditionEvent
	KindStartPlacement
	KindFinishPlacement
	KindStartGame
	KindFinishGame
	KindStartEdit
	KindFinishEdit
	KindSaveProgram
	// KindPolygonResult is the polygon wave summary. It carries no wave
	// context and only extends the open session.
	KindPolygonResult
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindFinalResult:     "final",
	KindUnitEvent:       "unit",
	KindTraditionEvent:  "tradition",
	KindStartPlacement:  "start_placement",
	KindFinishPlacement: "finish_placement",
	KindStartGame:       "start_game",
	KindFinishGame:      "finish_game",
	KindStartEdit:       "start_edit",
	KindFinishEdit:      "finish_edit",
	KindSaveProgram:     "save_program",
	KindPolygonResult:   "polygon_result",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a kind name (as produced by String) back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown record kind %q", s)
}

// IsCore reports whether the kind carries level/wave context and drives the
// session continuation test.
func (k Kind) IsCore() bool {
	return k == KindFinalResult || k == KindUnitEvent || k == KindTraditionEvent
}

// IsSideChannel reports whether the kind only feeds the duration and save
// buffers.
func (k Kind) IsSideChannel() bool {
	switch k {
	case KindStartPlacement, KindFinishPlacement, KindStartGame, KindFinishGame,
		KindStartEdit, KindFinishEdit, KindSaveProgram:
		return true
	}
	return false
}

// Well-known unit types and traditions.
var (
	Units      = []string{"Autoborder", "Stapler", "Smoker", "Generator"}
	Traditions = []string{"Constructor", "Beekeeper", "Programmer"}
)

// IsUnit reports whether s names a known unit type.
func IsUnit(s string) bool {
	for _, u := range Units {
		if u == s {
			return true
		}
	}
	return false
}

// IsTradition reports whether s names a known tradition.
func IsTradition(s string) bool {
	for _, t := range Traditions {
		if t == s {
			return true
		}
	}
	return false
}

// Metric keys read from the export.
const (
	MetricCreationIndex     = "creation_index"
	MetricTry               = "try"
	MetricLevel             = "level"
	MetricWave              = "wave"
	MetricLastWave          = "last_wave"
	MetricDroneDamage       = "drone_damage"
	MetricEnemiesDestroyed  = "enemies_destroyed"
	MetricManualActivation  = "manual_activation"
	MetricProgramActivation = "program_activation"
	MetricPlacementTime     = "placement_time"
	MetricSessionTime       = "session_time"
	MetricEditingTime       = "editing_time"
)

// ArtifactRef points at the program graph a unit was deployed with.
type ArtifactRef struct {
	ID                 string
	Checksum           string
	Damage             float64
	EnemiesDestroyed   int
	ProgramActivations int
}

// Record is one normalized telemetry event.
//
// Level and Wave are meaningful only for core kinds. Wave == 0 means the
// export did not carry a wave for this event. Try == 0 means absent.
type Record struct {
	ID            string
	Player        string
	Timestamp     float64
	CreationIndex int64
	MetricsID     int64
	AppVersion    string

	Kind      Kind
	Level     Level
	Wave      int
	Try       int
	UnitType  string
	Tradition string
	Artifact  *ArtifactRef

	ManualActivations int
	Metrics           map[string]float64

	// Duration holds placement, game or edit seconds for the Finish* kinds.
	Duration float64
}

// Metric returns a named metric and whether it was present.
func (r *Record) Metric(key string) (float64, bool) {
	if r.Metrics == nil {
		return 0, false
	}
	v, ok := r.Metrics[key]
	return v, ok
}

// Key returns the record's ordering key.
func (r *Record) Key() SortKey {
	return SortKey{CreationIndex: r.CreationIndex, MetricsID: r.MetricsID, Timestamp: r.Timestamp}
}

func (r *Record) String() string {
	return fmt.Sprintf("record %s (player=%s kind=%s cindex=%d metrics=%d version=%s)",
		r.ID, r.Player, r.Kind, r.CreationIndex, r.MetricsID, r.AppVersion)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
