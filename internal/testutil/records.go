package testutil

import (
	"fmt"

	"github.com/roach88/apiary/internal/telemetry"
)

// RecordStream produces one player's records in order. Every record advances
// the creation index by one and the clock by Step seconds, so the stream is
// already sorted by the ordering key.
type RecordStream struct {
	Player  string
	Version string
	Step    float64

	seq int64
	ts  float64
}

// NewStream starts a stream for player at t=1000 on client 1.6.2.
func NewStream(player string) *RecordStream {
	return &RecordStream{Player: player, Version: "1.6.2", Step: 10, ts: 1000}
}

// Wait advances the clock without emitting a record.
func (s *RecordStream) Wait(seconds float64) *RecordStream {
	s.ts += seconds
	return s
}

// Now returns the timestamp the next record will carry.
func (s *RecordStream) Now() float64 {
	return s.ts + s.Step
}

func (s *RecordStream) next(kind telemetry.Kind) telemetry.Record {
	s.seq++
	s.ts += s.Step
	return telemetry.Record{
		ID:            fmt.Sprintf("%s-%03d", s.Player, s.seq),
		Player:        s.Player,
		Timestamp:     s.ts,
		CreationIndex: s.seq,
		MetricsID:     s.seq * 10,
		AppVersion:    s.Version,
		Kind:          kind,
	}
}

// Unit is an unprogrammed unit deployment.
func (s *RecordStream) Unit(level telemetry.Level, wave int, unit string) telemetry.Record {
	r := s.next(telemetry.KindUnitEvent)
	r.Level, r.Wave, r.UnitType = level, wave, unit
	return r
}

// Programmed is a unit deployment with an artifact and drone damage.
func (s *RecordStream) Programmed(level telemetry.Level, wave int, unit, artifact string, damage float64) telemetry.Record {
	r := s.Unit(level, wave, unit)
	r.Artifact = &telemetry.ArtifactRef{ID: artifact, Checksum: "cs-" + artifact, Damage: damage}
	r.Metrics = map[string]float64{telemetry.MetricDroneDamage: damage}
	return r
}

// Final is a wave result carrying the try metric.
func (s *RecordStream) Final(level telemetry.Level, wave, try int) telemetry.Record {
	r := s.next(telemetry.KindFinalResult)
	r.Level, r.Wave, r.Try = level, wave, try
	return r
}

// Tradition is a tradition choice.
func (s *RecordStream) Tradition(level telemetry.Level, wave int, tradition string) telemetry.Record {
	r := s.next(telemetry.KindTraditionEvent)
	r.Level, r.Wave, r.Tradition = level, wave, tradition
	return r
}

// Side is a side-channel record. duration applies to the Finish* kinds.
func (s *RecordStream) Side(kind telemetry.Kind, duration float64) telemetry.Record {
	r := s.next(kind)
	r.Duration = duration
	return r
}
