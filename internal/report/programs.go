package report

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/pipeline"
)

// ErrUnknownPlayer is returned for a player the run did not see.
var ErrUnknownPlayer = errors.New("unknown player")

// DefaultRow tallies a player's stock programs of one unit type.
type DefaultRow struct {
	UnitType string  `json:"unit_type"`
	Uses     int     `json:"uses"`
	Damage   float64 `json:"damage"`
	Enemies  int     `json:"enemies"`
}

// ProgramRow tallies a player's uses of one unique program.
type ProgramRow struct {
	Hash       string         `json:"hash"`
	ArtifactID string         `json:"artifact_id"`
	UnitType   string         `json:"unit_type"`
	Uses       int            `json:"uses"`
	Damage     float64        `json:"damage"`
	Enemies    int            `json:"enemies"`
	Broken     bool           `json:"broken,omitempty"`
	Error      string         `json:"error,omitempty"`
	Flags      classify.Flags `json:"flags"`
}

// ProgramTable is one player's programs. Uses count sessions in which the
// program was deployed.
type ProgramTable struct {
	Player      string                `json:"player"`
	Defaults    []DefaultRow          `json:"defaults"`
	Programs    []ProgramRow          `json:"programs"`
	Unresolved  []pipeline.Unresolved `json:"unresolved"`
	Progression *pipeline.Progression `json:"progression,omitempty"`
}

// PlayerPrograms builds the program table of a player. Programs are listed
// in order of first deployment.
func PlayerPrograms(res *pipeline.Result, player string) (*ProgramTable, error) {
	p, ok := res.Player(player)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	uses := make(map[string]pipeline.ProgramUse, len(p.Programs))
	for _, u := range p.Programs {
		uses[u.ArtifactID] = u
	}

	defaults := make(map[string]*DefaultRow)
	rows := make(map[string]*ProgramRow)
	for _, s := range p.Sessions {
		for _, id := range s.ArtifactIDs() {
			u, ok := uses[id]
			if !ok {
				continue
			}
			a := s.Artifacts[id]
			if u.Default {
				d, ok := defaults[u.UnitType]
				if !ok {
					d = &DefaultRow{UnitType: u.UnitType}
					defaults[u.UnitType] = d
				}
				d.Uses++
				d.Damage += a.Damage
				d.Enemies += a.EnemiesDestroyed
				continue
			}
			r, ok := rows[u.Hash]
			if !ok {
				r = &ProgramRow{Hash: u.Hash, UnitType: u.UnitType}
				if pr, ok := res.Program(u.Hash); ok {
					r.ArtifactID = pr.Program.ArtifactID
					r.Broken, r.Error, r.Flags = pr.Broken, pr.Error, pr.Flags
				}
				rows[u.Hash] = r
			}
			r.Uses++
			r.Damage += a.Damage
			r.Enemies += a.EnemiesDestroyed
		}
	}

	t := &ProgramTable{
		Player:      p.Player,
		Defaults:    []DefaultRow{},
		Programs:    []ProgramRow{},
		Unresolved:  p.Unresolved,
		Progression: p.Progression,
	}
	for _, unit := range slices.Sorted(maps.Keys(defaults)) {
		t.Defaults = append(t.Defaults, *defaults[unit])
	}
	for _, h := range p.DistinctPrograms() {
		if r, ok := rows[h]; ok {
			t.Programs = append(t.Programs, *r)
		}
	}
	return t, nil
}
