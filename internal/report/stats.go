package report

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/session"
	"github.com/roach88/apiary/internal/telemetry"
)

// UnknownTradition labels sessions without a tradition choice.
const UnknownTradition = "Unknown"

// Count is a named tally.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PopularProgram is one of the most deployed unique programs.
type PopularProgram struct {
	Hash       string `json:"hash"`
	ArtifactID string `json:"artifact_id"`
	UnitType   string `json:"unit_type"`
	Usage      int    `json:"usage"`
	Players    int    `json:"players"`
	Broken     bool   `json:"broken,omitempty"`
}

// PlayerSummary condenses one player's sessions.
type PlayerSummary struct {
	Player   string          `json:"player"`
	Sessions int             `json:"sessions"`
	MaxLevel telemetry.Level `json:"max_level"`
	// AvgUnits is the mean over sessions of units per try.
	AvgUnits float64 `json:"avg_units"`
	// ProgrammedPercent is the share of units carrying a non-stock program.
	ProgrammedPercent float64 `json:"programmed_percent"`
	AvgDamage         float64 `json:"avg_damage"`
	UniquePrograms    int     `json:"unique_programs"`
}

// Stats are run-wide totals.
type Stats struct {
	Players  int `json:"players"`
	Sessions int `json:"sessions"`
	// Levels lists every level in order, including those never played.
	Levels     []Count `json:"levels"`
	Traditions []Count `json:"traditions"`
	UnitTypes  []Count `json:"unit_types"`
	// Waves sums the distinct waves played in each session.
	Waves int `json:"waves"`
	Units int `json:"units"`
	// ProgrammedUnits counts session artifacts whose program differs from
	// the stock program.
	ProgrammedUnits int `json:"programmed_units"`
	// BrokenUnits counts session artifacts without a readable program.
	BrokenUnits    int `json:"broken_units"`
	DefaultUnits   int `json:"default_units"`
	UniquePrograms int `json:"unique_programs"`
	NamedPrograms  int `json:"named_programs"`
	BrokenPrograms int `json:"broken_programs"`
	// Flags counts, per flag, the classified unique programs where it is
	// non-zero.
	Flags     []Count          `json:"flags"`
	Popular   []PopularProgram `json:"popular"`
	PerPlayer []PlayerSummary  `json:"per_player"`
	Skipped   session.Skipped  `json:"skipped"`
}

// Aggregate computes run statistics. top bounds the popular program list;
// zero or less lists none.
func Aggregate(res *pipeline.Result, top int) *Stats {
	st := &Stats{
		Players:        len(res.Players),
		UniquePrograms: len(res.Programs),
		NamedPrograms:  res.NamedPrograms,
		BrokenPrograms: res.BrokenPrograms(),
		Skipped:        res.Skipped,
	}

	levels := make(map[telemetry.Level]int)
	traditions := make(map[string]int)
	units := make(map[string]int)

	for _, p := range res.Players {
		ps := summarizePlayer(p)
		st.PerPlayer = append(st.PerPlayer, ps.PlayerSummary)
		st.ProgrammedUnits += ps.programmed
		st.BrokenUnits += ps.broken
		st.DefaultUnits += ps.defaults

		for _, s := range p.Sessions {
			st.Sessions++
			st.Waves += len(s.WaveTries)
			st.Units += s.TotalUnits
			levels[s.Level]++
			t := s.Tradition
			if t == "" {
				t = UnknownTradition
			}
			traditions[t]++
			for _, u := range s.UnitTypes {
				units[u]++
			}
		}
	}

	for _, l := range telemetry.Levels {
		st.Levels = append(st.Levels, Count{Name: l.String(), Count: levels[l]})
	}
	st.Traditions = sortedCounts(traditions)
	st.UnitTypes = sortedCounts(units)

	flags := make(map[string]int)
	for _, pr := range res.Programs {
		if pr.Broken {
			continue
		}
		for k, v := range pr.Flags.Map() {
			if v != 0 {
				flags[k]++
			}
		}
	}
	st.Flags = sortedCounts(flags)
	st.Popular = popular(res.Programs, top)
	return st
}

type playerTotals struct {
	PlayerSummary
	programmed, broken, defaults int
}

func summarizePlayer(p *pipeline.PlayerResult) playerTotals {
	out := playerTotals{PlayerSummary: PlayerSummary{
		Player:         p.Player,
		Sessions:       len(p.Sessions),
		UniquePrograms: len(p.DistinctPrograms()),
	}}
	uses := make(map[string]pipeline.ProgramUse, len(p.Programs))
	for _, u := range p.Programs {
		uses[u.ArtifactID] = u
	}

	var units int
	var avgUnits, avgDamage float64
	for _, s := range p.Sessions {
		if s.Level.Rank() > out.MaxLevel.Rank() {
			out.MaxLevel = s.Level
		}
		avgUnits += s.AvgUnitsPerTry
		avgDamage += s.AvgDamagePerUnit
		units += s.TotalUnits
		for _, id := range s.ArtifactIDs() {
			u, ok := uses[id]
			switch {
			case !ok:
				out.broken++
			case u.Default:
				out.defaults++
			default:
				out.programmed++
			}
		}
	}
	if n := len(p.Sessions); n > 0 {
		out.AvgUnits = avgUnits / float64(n)
		out.AvgDamage = avgDamage / float64(n)
	}
	if units > 0 {
		out.ProgrammedPercent = 100 * float64(out.programmed) / float64(units)
	}
	return out
}

func popular(programs []*pipeline.ProgramResult, top int) []PopularProgram {
	if top <= 0 {
		return nil
	}
	out := make([]PopularProgram, 0, min(top, len(programs)))
	for _, pr := range programs {
		if len(out) == top {
			break
		}
		out = append(out, PopularProgram{
			Hash:       pr.Program.Hash,
			ArtifactID: pr.Program.ArtifactID,
			UnitType:   pr.Program.UnitType,
			Usage:      pr.Program.Usage,
			Players:    len(pr.Program.Players),
			Broken:     pr.Broken,
		})
	}
	return out
}

// sortedCounts orders a tally by name.
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, Count{Name: k, Count: m[k]})
	}
	return out
}

// byCountDesc orders counts most frequent first, ties by name.
func byCountDesc(a, b Count) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
