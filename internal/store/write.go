package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/session"
)

// Run identifies one exported analysis.
type Run struct {
	ID        string
	StartedAt time.Time
	// Source names the analyzed export, usually its path.
	Source string
}

// NewRun creates a run with a fresh UUIDv7 id. UUIDv7 ids sort by creation
// time.
func NewRun(source string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.Must(uuid.NewV7()).String(),
		StartedAt: startedAt,
		Source:    source,
	}
}

// WriteRun exports a pipeline result under run in one transaction.
// Writing the same run id twice fails on the primary key.
func (s *Store) WriteRun(ctx context.Context, run Run, res *pipeline.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	skipped, err := marshalSkipped(res.Skipped)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, source, players, sessions, programs, named_programs, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.Source,
		len(res.Players),
		len(res.Sessions()),
		len(res.Programs),
		res.NamedPrograms,
		skipped,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	for _, p := range res.Players {
		for i, sess := range p.Sessions {
			if err := writeSession(ctx, tx, run.ID, i, sess); err != nil {
				return err
			}
		}
		for i, use := range p.Programs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO program_uses
				(run_id, player, seq, artifact_id, unit_type, hash, is_default, is_resave)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, p.Player, i, use.ArtifactID, use.UnitType, use.Hash, use.Default, use.Resave)
			if err != nil {
				return fmt.Errorf("write program use %s/%s: %w", p.Player, use.ArtifactID, err)
			}
		}
		for _, u := range p.Unresolved {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO unresolved_artifacts
				(run_id, player, artifact_id, reason, error)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`, run.ID, p.Player, u.ArtifactID, u.Reason, u.Error)
			if err != nil {
				return fmt.Errorf("write unresolved %s/%s: %w", p.Player, u.ArtifactID, err)
			}
		}
	}

	for _, pr := range res.Programs {
		if err := writeProgram(ctx, tx, run.ID, pr); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func writeSession(ctx context.Context, tx *sql.Tx, runID string, seq int, s *session.Session) error {
	detail, err := marshalSession(s)
	if err != nil {
		return fmt.Errorf("write session %s#%d: %w", s.Player, seq, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions
		(run_id, player, seq, level, start_wave, current_wave, tries, total_units, total_programmed,
		 tradition, start_ts, finish_ts, avg_units_per_try, avg_programmed_fraction, avg_damage_per_unit,
		 avg_game_duration, avg_placement_time, avg_edit_time, first_program_wave, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, s.Player, seq, s.Level.String(), s.StartWave, s.CurrentWave, s.Tries, s.TotalUnits, s.TotalProgrammed,
		s.Tradition, s.StartTimestamp, s.FinishTimestamp, s.AvgUnitsPerTry, s.AvgProgrammedFraction, s.AvgDamagePerUnit,
		s.AvgGameDuration, s.AvgPlacementTime, s.AvgEditTime, s.FirstProgramWave, detail,
	)
	if err != nil {
		return fmt.Errorf("write session %s#%d: %w", s.Player, seq, err)
	}
	return nil
}

func writeProgram(ctx context.Context, tx *sql.Tx, runID string, pr *pipeline.ProgramResult) error {
	p := pr.Program
	flags, err := marshalFlags(pr.Flags)
	if err != nil {
		return fmt.Errorf("write program %s: %w", p.Hash, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO programs
		(run_id, hash, unit_type, version_tag, artifact_id, player, first_seen, usage, broken, error, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, p.Hash, p.UnitType, p.VersionTag, p.ArtifactID, p.Player, p.FirstSeen, p.Usage, pr.Broken, pr.Error, flags)
	if err != nil {
		return fmt.Errorf("write program %s: %w", p.Hash, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO program_flags (run_id, hash, flag, value) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write program flags %s: %w", p.Hash, err)
	}
	defer stmt.Close()
	// Keys are sorted, so rows go in deterministically.
	for _, k := range pr.Flags.Keys() {
		if _, err := stmt.ExecContext(ctx, runID, p.Hash, k, pr.Flags.Count(k)); err != nil {
			return fmt.Errorf("write program flag %s %q: %w", p.Hash, k, err)
		}
	}
	return nil
}
