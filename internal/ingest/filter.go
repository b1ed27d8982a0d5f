package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// ExportZone is the fixed UTC offset of every timestamp in the export.
var ExportZone = time.FixedZone("UTC+3", 3*3600)

const dateLayout = "2006-01-02 15:04:05"

// ParseDate parses a "YYYY-MM-DD HH:MM:SS[.ffffff]" timestamp in ExportZone
// and returns Unix seconds.
func ParseDate(s string) (float64, error) {
	t, err := time.ParseInLocation(dateLayout, s, ExportZone)
	if err != nil {
		return 0, err
	}
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9, nil
}

// parseExportDate parses the created_at column, which carries a literal
// "+03" suffix.
func parseExportDate(s string) (float64, error) {
	trimmed, ok := strings.CutSuffix(s, "+03")
	if !ok {
		return 0, fmt.Errorf("date %q lacks the +03 offset", s)
	}
	return ParseDate(trimmed)
}

// Window is an inclusive time range in Unix seconds.
type Window struct {
	From float64
	To   float64
}

// PlayerFilter selects players, optionally within time windows. Player ids
// are matched case-insensitively. A player listed with windows is split into
// one pseudo-player per window, keyed "<player>:<window start>".
type PlayerFilter struct {
	players map[string][]Window
}

// NewPlayerFilter creates an empty filter that matches nobody.
func NewPlayerFilter() *PlayerFilter {
	return &PlayerFilter{players: make(map[string][]Window)}
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Add selects a player. Without windows the player is selected at all times.
func (f *PlayerFilter) Add(player string, windows ...Window) {
	k := fold(player)
	f.players[k] = append(f.players[k], windows...)
}

// Len returns the number of selected players.
func (f *PlayerFilter) Len() int { return len(f.players) }

// Match reports whether a row of player at ts is selected and under which
// key its records are grouped.
func (f *PlayerFilter) Match(player string, ts float64) (string, bool) {
	windows, ok := f.players[fold(player)]
	if !ok {
		return "", false
	}
	if len(windows) == 0 {
		return player, true
	}
	for _, w := range windows {
		if w.From <= ts && ts <= w.To {
			return fmt.Sprintf("%s:%d", player, int64(w.From)), true
		}
	}
	return "", false
}

type filterFile struct {
	Players []filterEntry `yaml:"players"`
}

type filterEntry struct {
	ID      string        `yaml:"id"`
	Windows []filterRange `yaml:"windows,omitempty"`
}

type filterRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// LoadPlayerFilter reads a player list. Files ending in .yaml or .yml hold
// a "players" list of {id, windows: [{from, to}]}; any other file holds one
// player per line, optionally followed by ",from,to".
func LoadPlayerFilter(path string) (*PlayerFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read player list: %w", err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return parseFilterYAML(data)
	}
	return parseFilterText(data)
}

func parseFilterYAML(data []byte) (*PlayerFilter, error) {
	var ff filterFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ff); err != nil {
		return nil, fmt.Errorf("failed to parse player list: %w", err)
	}
	f := NewPlayerFilter()
	for i, e := range ff.Players {
		if e.ID == "" {
			return nil, fmt.Errorf("players[%d]: id is required", i)
		}
		var windows []Window
		for j, r := range e.Windows {
			w, err := parseWindow(r.From, r.To)
			if err != nil {
				return nil, fmt.Errorf("players[%d].windows[%d]: %w", i, j, err)
			}
			windows = append(windows, w)
		}
		f.Add(e.ID, windows...)
	}
	return f, nil
}

func parseFilterText(data []byte) (*PlayerFilter, error) {
	f := NewPlayerFilter()
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		parts := strings.Split(text, ",")
		switch len(parts) {
		case 1:
			f.Add(parts[0])
		case 3:
			w, err := parseWindow(parts[1], parts[2])
			if err != nil {
				return nil, fmt.Errorf("player list line %d: %w", line, err)
			}
			f.Add(strings.TrimSpace(parts[0]), w)
		default:
			return nil, fmt.Errorf("player list line %d: want \"id\" or \"id,from,to\"", line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read player list: %w", err)
	}
	return f, nil
}

func parseWindow(from, to string) (Window, error) {
	a, err := ParseDate(strings.TrimSpace(from))
	if err != nil {
		return Window{}, fmt.Errorf("bad window start: %w", err)
	}
	b, err := ParseDate(strings.TrimSpace(to))
	if err != nil {
		return Window{}, fmt.Errorf("bad window end: %w", err)
	}
	if b < a {
		return Window{}, fmt.Errorf("window ends before it starts")
	}
	return Window{From: a, To: b}, nil
}
