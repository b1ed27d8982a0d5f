package ingest

import (
	"fmt"
	"strings"

	"github.com/roach88/apiary/internal/telemetry"
)

// Context column values.
const (
	contextLevelPrefix     = "Level_"
	contextResultsPrefix   = "Итоги волны"
	contextPolygonResults  = "Polygon_wave_results"
	contextPolygonPrefix   = "Polygon_Start_"
	contextPolygonAB       = "Polygon_Autoborder"
	contextPolygonSM       = "Polygon_Smoker"
	contextStartPlacement  = "Start_placement"
	contextFinishPlacement = "Finish_placement"
	contextLaunchGame      = "Launch_game"
	contextClosingGame     = "Closing_game"
	contextClosingEditor   = "Closing_editor"
	contextSaveProgram     = "Save_program"
	// The client spells "Opening" with a Cyrillic capital O.
	contextOpeningEditor      = "Оpening_editor"
	contextOpeningEditorLatin = "Opening_editor"
)

var sideChannels = map[string]telemetry.Kind{
	contextPolygonResults:     telemetry.KindPolygonResult,
	contextStartPlacement:     telemetry.KindStartPlacement,
	contextFinishPlacement:    telemetry.KindFinishPlacement,
	contextLaunchGame:         telemetry.KindStartGame,
	contextClosingGame:        telemetry.KindFinishGame,
	contextOpeningEditor:      telemetry.KindStartEdit,
	contextOpeningEditorLatin: telemetry.KindStartEdit,
	contextClosingEditor:      telemetry.KindFinishEdit,
	contextSaveProgram:        telemetry.KindSaveProgram,
}

// activityContext is what a context string says about an activity.
type activityContext struct {
	kind      telemetry.Kind
	level     telemetry.Level
	unit      string
	tradition string
}

// parseContext maps a context column value to a kind, and for unit and
// tradition events to their level and origin.
func parseContext(s string) (activityContext, error) {
	var level, origin string
	switch {
	case strings.HasPrefix(s, contextLevelPrefix):
		parts := strings.Split(s, "_")
		if len(parts) != 3 {
			return activityContext{}, &contextError{code: telemetry.ErrCodeBadContext, msg: fmt.Sprintf("malformed level context %q", s)}
		}
		level, origin = parts[1], parts[2]
	case s == contextPolygonAB:
		level, origin = telemetry.LevelPolygon.String(), "Autoborder"
	case s == contextPolygonSM:
		level, origin = telemetry.LevelPolygon.String(), "Smoker"
	case strings.HasPrefix(s, contextPolygonPrefix):
		level, origin = telemetry.LevelPolygon.String(), strings.TrimPrefix(s, contextPolygonPrefix)
	case strings.HasPrefix(s, contextResultsPrefix):
		return activityContext{kind: telemetry.KindFinalResult}, nil
	default:
		if k, ok := sideChannels[s]; ok {
			return activityContext{kind: k}, nil
		}
		return activityContext{}, &contextError{code: telemetry.ErrCodeBadContext, msg: fmt.Sprintf("unknown context %q", s)}
	}

	lv, err := telemetry.ParseLevel(level)
	if err != nil {
		return activityContext{}, &contextError{code: telemetry.ErrCodeBadLevel, msg: fmt.Sprintf("bad stat level %q in context %q", level, s)}
	}
	switch {
	case telemetry.IsUnit(origin):
		return activityContext{kind: telemetry.KindUnitEvent, level: lv, unit: origin}, nil
	case telemetry.IsTradition(origin):
		return activityContext{kind: telemetry.KindTraditionEvent, level: lv, tradition: origin}, nil
	}
	return activityContext{}, &contextError{code: telemetry.ErrCodeBadContext, msg: fmt.Sprintf("bad stat origin %q in context %q", origin, s)}
}

// contextError carries an input error code until the reader knows the line.
type contextError struct {
	code telemetry.InputErrorCode
	msg  string
}

func (e *contextError) Error() string { return e.msg }
