package telemetry

import "fmt"

// Level is an ordered game level. The zero value is LevelStart.
type Level int

const (
	LevelStart Level = iota
	Level1
	Level2
	Level3
	LevelInfinity
	LevelPolygon
)

// Levels lists every level in order.
var Levels = []Level{LevelStart, Level1, Level2, Level3, LevelInfinity, LevelPolygon}

var levelNames = []string{"Start", "1", "2", "3", "Infinity", "Polygon"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a level name from a context string to a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelStart, fmt.Errorf("unknown level %q", s)
}

// LevelPolicy decides what happens to a numeric final level outside the
// known range.
type LevelPolicy string

const (
	// LevelPolicyReject fails the batch on an out-of-range final level.
	LevelPolicyReject LevelPolicy = "reject"
	// LevelPolicyClamp clamps to the nearest known level and continues.
	LevelPolicyClamp LevelPolicy = "clamp"
)

// LevelFromIndex maps the numeric "level" metric of a final result to a Level
// using the given out-of-range policy.
func LevelFromIndex(i int, policy LevelPolicy) (Level, error) {
	if i >= 0 && i < len(Levels) {
		return Level(i), nil
	}
	if policy == LevelPolicyClamp {
		if i < 0 {
			return LevelStart, nil
		}
		return Levels[len(Levels)-1], nil
	}
	return LevelStart, fmt.Errorf("final level %d out of range [0, %d]", i, len(Levels)-1)
}

// Rank orders levels for reports: Start=0, numbered levels by number,
// Infinity=4. Polygon is outside the campaign and ranks 0.
func (l Level) Rank() int {
	switch l {
	case Level1:
		return 1
	case Level2:
		return 2
	case Level3:
		return 3
	case LevelInfinity:
		return 4
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	if l < 0 || int(l) >= len(levelNames) {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
