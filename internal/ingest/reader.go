package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/roach88/apiary/internal/telemetry"
)

// Export columns.
const (
	colID = iota
	colCreatedAt
	colPlayer
	colAppVersion
	colContext
	colMetricsID
	colMetricsKey
	colMetricsValue
	colArtefact
	colChecksum
	numColumns
)

// Options configures a Reader.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
	// LevelPolicy handles final levels outside the known range. Empty means
	// telemetry.LevelPolicyReject.
	LevelPolicy telemetry.LevelPolicy
	// Filter, when set, keeps only the selected players.
	Filter *PlayerFilter
}

// Stats counts what the reader saw.
type Stats struct {
	Lines        int `json:"lines"`
	Rows         int `json:"rows"`
	EmptyMetrics int `json:"empty_metrics"`
	BadDates     int `json:"bad_dates"`
	Filtered     int `json:"filtered"`
	Activities   int `json:"activities"`
}

// Batch is the result of reading one export: every selected player's
// records, sorted by the ordering key.
type Batch struct {
	Players map[string][]telemetry.Record
	Stats   Stats
}

// Reader converts an export into records.
type Reader struct {
	opts Options
	log  *slog.Logger
}

// NewReader creates a reader. A nil logger uses slog.Default().
func NewReader(opts Options, logger *slog.Logger) *Reader {
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.LevelPolicy == "" {
		opts.LevelPolicy = telemetry.LevelPolicyReject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, log: logger}
}

// ReadFile reads an export file.
func (r *Reader) ReadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry export: %w", err)
	}
	defer f.Close()
	return r.Read(f)
}

type activity struct {
	rec     telemetry.Record
	typed   bool
	waveSet bool
}

// Read reads an export stream.
func (r *Reader) Read(in io.Reader) (*Batch, error) {
	cr := csv.NewReader(in)
	cr.Comma = r.opts.Comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	batch := &Batch{Players: make(map[string][]telemetry.Record)}
	acts := make(map[string]map[string]*activity)
	var order []*activity

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		batch.Stats.Lines++
		if err != nil {
			var pe *csv.ParseError
			line := batch.Stats.Lines
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &telemetry.InputError{Code: telemetry.ErrCodeBadRow, Message: err.Error(), Line: line}
		}
		line, _ := cr.FieldPos(0)

		if len(row) != numColumns {
			return nil, &telemetry.InputError{
				Code:    telemetry.ErrCodeBadRow,
				Message: fmt.Sprintf("want %d columns, got %d", numColumns, len(row)),
				Line:    line,
			}
		}
		if row[colID] == "id" {
			continue
		}
		if row[colMetricsID] == "" {
			batch.Stats.EmptyMetrics++
			continue
		}
		ts, err := parseExportDate(row[colCreatedAt])
		if err != nil {
			batch.Stats.BadDates++
			r.log.Warn("skipping row with bad date", "line", line, "date", row[colCreatedAt])
			continue
		}

		player := row[colPlayer]
		if r.opts.Filter != nil {
			key, ok := r.opts.Filter.Match(player, ts)
			if !ok {
				batch.Stats.Filtered++
				continue
			}
			player = key
		}
		batch.Stats.Rows++

		byID, ok := acts[player]
		if !ok {
			byID = make(map[string]*activity)
			acts[player] = byID
		}
		id := row[colID]
		a, ok := byID[id]
		if !ok {
			a = &activity{rec: telemetry.Record{ID: id, Player: player, Timestamp: ts}}
			byID[id] = a
			order = append(order, a)
		}
		if err := r.apply(a, row); err != nil {
			var ie *telemetry.InputError
			if errors.As(err, &ie) {
				ie.Line, ie.RecordID, ie.Player = line, id, player
			}
			return nil, err
		}
	}

	for _, a := range order {
		p := a.rec.Player
		batch.Players[p] = append(batch.Players[p], a.rec)
	}
	for p, recs := range batch.Players {
		batch.Players[p] = telemetry.Sorted(recs)
	}
	batch.Stats.Activities = len(order)

	r.log.Info("telemetry loaded",
		"lines", batch.Stats.Lines,
		"players", len(batch.Players),
		"activities", batch.Stats.Activities,
		"bad_dates", batch.Stats.BadDates,
	)
	return batch, nil
}

// apply folds one metric row into its activity.
func (r *Reader) apply(a *activity, row []string) error {
	rec := &a.rec
	metricsID, err := strconv.ParseInt(row[colMetricsID], 10, 64)
	if err != nil {
		return &telemetry.InputError{Code: telemetry.ErrCodeBadRow, Message: fmt.Sprintf("bad metrics id %q", row[colMetricsID])}
	}
	value, err := strconv.ParseFloat(row[colMetricsValue], 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return &telemetry.InputError{Code: telemetry.ErrCodeBadMetric, Message: fmt.Sprintf("bad value %q for metric %q", row[colMetricsValue], row[colMetricsKey])}
	}
	rec.AppVersion = row[colAppVersion]
	rec.MetricsID = metricsID

	if !a.typed {
		ctx, err := parseContext(row[colContext])
		if err != nil {
			var ce *contextError
			if errors.As(err, &ce) {
				return &telemetry.InputError{Code: ce.code, Message: ce.msg}
			}
			return err
		}
		rec.Kind, rec.Level, rec.UnitType, rec.Tradition = ctx.kind, ctx.level, ctx.unit, ctx.tradition
		a.typed = true
	}
	if rec.Kind == telemetry.KindUnitEvent && rec.Artifact == nil && row[colArtefact] != "" {
		rec.Artifact = &telemetry.ArtifactRef{ID: row[colArtefact], Checksum: row[colChecksum]}
	}

	key := row[colMetricsKey]
	if rec.Metrics == nil {
		rec.Metrics = make(map[string]float64)
	}
	rec.Metrics[key] = value

	switch key {
	case telemetry.MetricCreationIndex:
		rec.CreationIndex = int64(value)
	case telemetry.MetricTry:
		if rec.Kind == telemetry.KindFinalResult {
			rec.Try = int(value)
		}
	case telemetry.MetricLevel:
		if rec.Kind == telemetry.KindFinalResult {
			lv, err := telemetry.LevelFromIndex(int(value), r.opts.LevelPolicy)
			if err != nil {
				return &telemetry.InputError{Code: telemetry.ErrCodeBadLevel, Message: err.Error()}
			}
			rec.Level = lv
		}
	case telemetry.MetricWave, telemetry.MetricLastWave:
		// The export counts waves from zero.
		if !a.waveSet {
			rec.Wave = int(value) + 1
			a.waveSet = true
		}
	case telemetry.MetricDroneDamage:
		if rec.Artifact != nil {
			rec.Artifact.Damage += value
		}
	case telemetry.MetricEnemiesDestroyed:
		if rec.Artifact != nil {
			rec.Artifact.EnemiesDestroyed += int(value)
		}
	case telemetry.MetricProgramActivation:
		if rec.Artifact != nil {
			rec.Artifact.ProgramActivations += int(value)
		}
	case telemetry.MetricManualActivation:
		rec.ManualActivations = int(value)
	case telemetry.MetricPlacementTime, telemetry.MetricSessionTime, telemetry.MetricEditingTime:
		rec.Duration = value
	}
	return nil
}
