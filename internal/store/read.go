package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/session"
)

// ErrRunNotFound is returned when a run id has no rows.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	Source        string `json:"source"`
	Players       int    `json:"players"`
	Sessions      int    `json:"sessions"`
	Programs      int    `json:"programs"`
	NamedPrograms int    `json:"named_programs"`
	Skipped       string `json:"skipped"`
}

// ListRuns returns every exported run, oldest first.
// UUIDv7 ids sort by creation time, so ordering by id is chronological.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, source, players, sessions, programs, named_programs, skipped
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Source, &r.Players, &r.Sessions, &r.Programs, &r.NamedPrograms, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run summary.
func (s *Store) ReadRun(ctx context.Context, id string) (RunSummary, error) {
	var r RunSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, source, players, sessions, programs, named_programs, skipped
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.StartedAt, &r.Source, &r.Players, &r.Sessions, &r.Programs, &r.NamedPrograms, &r.Skipped)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ReadSessions returns a player's sessions of a run in order.
func (s *Store) ReadSessions(ctx context.Context, runID, player string) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT detail FROM sessions
		WHERE run_id = ? AND player = ?
		ORDER BY seq ASC
	`, runID, player)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := unmarshalSession(detail)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// ReadProgramFlags returns the classification of one program of a run.
func (s *Store) ReadProgramFlags(ctx context.Context, runID, hash string) (classify.Flags, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT flags FROM programs WHERE run_id = ? AND hash = ?
	`, runID, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return classify.Flags{}, fmt.Errorf("program %s not in run %s", hash, runID)
	}
	if err != nil {
		return classify.Flags{}, fmt.Errorf("read program flags: %w", err)
	}
	return unmarshalFlags(data)
}

// FlagCount is how many unique programs of a run carry a flag.
type FlagCount struct {
	Flag     string `json:"flag"`
	Programs int    `json:"programs"`
}

// FlagCounts counts, per flag, the classified programs of a run where the
// flag is non-zero. Flags are returned by name.
func (s *Store) FlagCounts(ctx context.Context, runID string) ([]FlagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT flag, COUNT(*) FROM program_flags
		WHERE run_id = ? AND value != 0
		GROUP BY flag
		ORDER BY flag COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query flag counts: %w", err)
	}
	defer rows.Close()

	counts := []FlagCount{}
	for rows.Next() {
		var c FlagCount
		if err := rows.Scan(&c.Flag, &c.Programs); err != nil {
			return nil, fmt.Errorf("scan flag count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flag counts: %w", err)
	}
	return counts, nil
}
