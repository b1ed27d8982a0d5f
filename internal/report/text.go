package report

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/apiary/internal/ingest"
	"github.com/roach88/apiary/internal/session"
)

const rule = "-----------------------------------------------------------------"

// TextWriter renders reports for a terminal. Styles degrade to plain text
// when w is not a terminal.
type TextWriter struct {
	w io.Writer

	heading lipgloss.Style
	added   lipgloss.Style
	removed lipgloss.Style
	changed lipgloss.Style
	muted   lipgloss.Style
}

// NewTextWriter creates a TextWriter on w.
func NewTextWriter(w io.Writer) *TextWriter {
	r := lipgloss.NewRenderer(w)
	return &TextWriter{
		w:       w,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		added:   r.NewStyle().Foreground(lipgloss.Color("42")),
		removed: r.NewStyle().Foreground(lipgloss.Color("196")),
		changed: r.NewStyle().Foreground(lipgloss.Color("214")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (t *TextWriter) flush(b *strings.Builder) error {
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextWriter) title(b *strings.Builder, s string) {
	b.WriteString(t.heading.Render(s))
	b.WriteString("\n")
}

// Stats writes run totals.
func (t *TextWriter) Stats(st *Stats) error {
	var b strings.Builder
	t.title(&b, "Total statistics:")
	fmt.Fprintf(&b, "Players: %d\n", st.Players)
	fmt.Fprintf(&b, "Sessions: %d\n", st.Sessions)
	b.WriteString("Levels by sessions:\n")
	for _, c := range st.Levels {
		fmt.Fprintf(&b, "%8s: %d\n", c.Name, c.Count)
	}
	b.WriteString("\nTraditions by sessions:\n")
	for _, c := range st.Traditions {
		fmt.Fprintf(&b, "%11s: %d\n", c.Name, c.Count)
	}
	b.WriteString("\nUnit types by sessions:\n")
	for _, c := range st.UnitTypes {
		fmt.Fprintf(&b, "%10s: %d\n", c.Name, c.Count)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Waves: %d\n", st.Waves)
	fmt.Fprintf(&b, "Units used: %d\n", st.Units)
	fmt.Fprintf(&b, "Units used with new programs: %d\n", st.ProgrammedUnits)
	fmt.Fprintf(&b, "Units used with default programs: %d\n", st.DefaultUnits)
	fmt.Fprintf(&b, "Broken unit programs: %d\n", st.BrokenUnits)
	fmt.Fprintf(&b, "Unique unit diagrams: %d (%d with names, %d broken)\n", st.UniquePrograms, st.NamedPrograms, st.BrokenPrograms)
	fmt.Fprintf(&b, "Skipped records: %d missing wave, %d unknown, %d orphaned\n",
		st.Skipped.MissingWave, st.Skipped.Unknown, st.Skipped.Orphaned)

	if len(st.Flags) > 0 {
		b.WriteString("\n")
		t.title(&b, "Program flags:")
		flags := slices.Clone(st.Flags)
		slices.SortFunc(flags, byCountDesc)
		for _, c := range flags {
			fmt.Fprintf(&b, "  %s: %d\n", c.Name, c.Count)
		}
	}
	if len(st.Popular) > 0 {
		b.WriteString("\n")
		t.title(&b, "Popular programs:")
		for i, p := range st.Popular {
			fmt.Fprintf(&b, "%3d. %-10s %-24s uses: %4d players: %3d", i+1, p.UnitType, p.ArtifactID, p.Usage, p.Players)
			if p.Broken {
				b.WriteString(" " + t.removed.Render("[broken]"))
			}
			b.WriteString("\n")
		}
	}
	return t.flush(&b)
}

// Players writes one line per player summary.
func (t *TextWriter) Players(players []PlayerSummary) error {
	var b strings.Builder
	t.title(&b, "Players statistics:")
	for _, p := range players {
		fmt.Fprintf(&b, "Player %s - sessions %d, max level %s, avg units: %5.2f, avg prog: %5.2f%%, avg dmg: %6.1f, uniq progs: %d\n",
			p.Player, p.Sessions, p.MaxLevel, p.AvgUnits, p.ProgrammedPercent, p.AvgDamage, p.UniquePrograms)
	}
	return t.flush(&b)
}

// Sessions writes a player's sessions, one line each.
func (t *TextWriter) Sessions(player string, sessions []*session.Session) error {
	var b strings.Builder
	t.title(&b, player+":")
	for _, s := range sessions {
		fmt.Fprintf(&b, "versions: (%s), level: %s, last wave: %d, waves(tries): %d, date from: %s, to: %s, "+
			"metrics from: %d, to: %d, cindex from: %d, to: %d, activities: %d, tradition: %s, unit types: (%s), "+
			"uniq progs: %d, manual use: %d, saves: %d, avg units: %5.2f, avg prog percent: %5.2f%%, avg dmg: %6.1f, "+
			"avg g.s.: %5.2f, avg pl.s.: %5.2f, avg ed.s.: %5.2f\n",
			strings.Join(s.Versions, ", "), s.Level, s.CurrentWave, s.Tries,
			formatTime(s.StartTimestamp), formatTime(s.FinishTimestamp),
			s.StartMetricsID, s.FinishMetricsID,
			s.StartCreationIndex, s.FinishCreationIndex,
			s.Records, orUnknown(s.Tradition), strings.Join(s.UnitTypes, ", "),
			len(s.Artifacts), s.ManualActivations, s.Saves,
			s.AvgUnitsPerTry, s.AvgProgrammedFraction*100, s.AvgDamagePerUnit,
			s.AvgGameDuration, s.AvgPlacementTime, s.AvgEditTime)
	}
	return t.flush(&b)
}

// Programs writes a player's program table.
func (t *TextWriter) Programs(pt *ProgramTable) error {
	var b strings.Builder
	t.title(&b, fmt.Sprintf("Default programs (%d):", len(pt.Defaults)))
	for _, d := range pt.Defaults {
		fmt.Fprintf(&b, "%s: %5d %5.2f %5d\n", d.UnitType, d.Uses, d.Damage, d.Enemies)
	}
	b.WriteString("\n")
	t.title(&b, fmt.Sprintf("Unique programs (%d):", len(pt.Programs)))
	for _, p := range pt.Programs {
		b.WriteString(t.muted.Render(rule))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s: %5d %5.2f %5d  %s (%s)\n", p.UnitType, p.Uses, p.Damage, p.Enemies, p.ArtifactID, shortHash(p.Hash))
		if p.Broken {
			b.WriteString(t.removed.Render("not classified: "+p.Error) + "\n")
			continue
		}
		for _, k := range p.Flags.Keys() {
			if v := p.Flags.Count(k); v != 0 {
				fmt.Fprintf(&b, "  %s: %d\n", k, v)
			}
		}
	}
	if len(pt.Unresolved) > 0 {
		b.WriteString("\n")
		t.title(&b, fmt.Sprintf("Unresolved artifacts (%d):", len(pt.Unresolved)))
		for _, u := range pt.Unresolved {
			fmt.Fprintf(&b, "%s %s: %s\n", u.UnitType, u.ArtifactID, u.Reason)
		}
	}
	if pg := pt.Progression; pg != nil {
		b.WriteString("\n")
		t.title(&b, fmt.Sprintf("Progression %s -> %s:", shortHash(pg.From), shortHash(pg.To)))
		if pg.Error != "" {
			b.WriteString(t.removed.Render(pg.Error) + "\n")
		}
		for _, k := range pg.Flags.Keys() {
			if v := pg.Flags.Count(k); v != 0 {
				fmt.Fprintf(&b, "  %s: %d\n", k, v)
			}
		}
	}
	return t.flush(&b)
}

// Inspection writes a program diff: additions, removals and changes
// relative to the baseline.
func (t *TextWriter) Inspection(ins *Inspection) error {
	var b strings.Builder
	t.title(&b, fmt.Sprintf("Diff %q with the default %q:", ins.Candidate, ins.Baseline))
	fmt.Fprintf(&b, "%-20s: %s\n", "Flags", ins.Relation)
	if ins.Unchanged() {
		b.WriteString(t.muted.Render("no differences") + "\n")
	}
	for _, n := range ins.NewNodes {
		b.WriteString(t.added.Render("+ node "+describeNode(n)) + "\n")
		writeActions(&b, n.Actions)
	}
	for _, n := range ins.MissingNodes {
		b.WriteString(t.removed.Render("- node "+describeNode(n)) + "\n")
	}
	for _, c := range ins.ChangedNodes {
		b.WriteString(t.changed.Render(fmt.Sprintf("~ node %s -> %s [%s]", describeNode(c.Baseline), describeNode(c.Candidate), c.Diff)) + "\n")
		writeActions(&b, c.Candidate.Actions)
	}
	for _, e := range ins.NewEdges {
		b.WriteString(t.added.Render("+ edge "+describeEdge(e)) + "\n")
	}
	for _, e := range ins.MissingEdges {
		b.WriteString(t.removed.Render("- edge "+describeEdge(e)) + "\n")
	}
	for _, c := range ins.ChangedEdges {
		b.WriteString(t.changed.Render(fmt.Sprintf("~ edge %s -> %s [%s]", describeEdge(c.Baseline), describeEdge(c.Candidate), c.Diff)) + "\n")
	}
	b.WriteString("\n")
	for _, k := range ins.Flags.Keys() {
		if v := ins.Flags.Count(k); v != 0 {
			fmt.Fprintf(&b, "  %s: %d\n", k, v)
		}
	}
	return t.flush(&b)
}

func describeNode(n NodeInfo) string {
	if n.Title == "" {
		return fmt.Sprintf("%s (%s)", n.ID, n.Type)
	}
	return fmt.Sprintf("%s %q (%s)", n.ID, n.Title, n.Type)
}

func describeEdge(e EdgeInfo) string {
	s := fmt.Sprintf("%s: %s -> %s", e.ID, e.Source, e.Target)
	if e.Action != "" {
		s += " " + strings.ReplaceAll(e.Action, "\n", " ")
	}
	return s
}

func writeActions(b *strings.Builder, actions []string) {
	for _, a := range actions {
		for _, line := range strings.Split(a, "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
}

func formatTime(ts float64) string {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).In(ingest.ExportZone).Format(time.DateTime)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownTradition
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
