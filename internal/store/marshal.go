package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/session"
)

// marshalFlags converts a flag set to canonical JSON TEXT.
func marshalFlags(f classify.Flags) (string, error) {
	obj := make(ir.Object, f.Len())
	for k, v := range f.Map() {
		obj[k] = ir.Int(v)
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal flags: %w", err)
	}
	return string(data), nil
}

// marshalSkipped converts skip counters to canonical JSON TEXT.
func marshalSkipped(s session.Skipped) (string, error) {
	data, err := ir.MarshalCanonical(ir.Object{
		"missing_wave": ir.Int(s.MissingWave),
		"orphaned":     ir.Int(s.Orphaned),
		"unknown":      ir.Int(s.Unknown),
	})
	if err != nil {
		return "", fmt.Errorf("marshal skipped: %w", err)
	}
	return string(data), nil
}

// marshalSession converts a session to JSON TEXT. Sessions carry floats, which
// have no canonical form, so this uses json.Encoder with HTML escaping
// disabled; map keys are sorted by encoding/json.
func marshalSession(s *session.Session) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalFlags parses a flags JSON object.
func unmarshalFlags(data string) (classify.Flags, error) {
	var m map[string]int
	if data == "" || data == "{}" {
		return classify.NewFlags(nil), nil
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return classify.Flags{}, fmt.Errorf("unmarshal flags: %w", err)
	}
	return classify.NewFlags(m), nil
}

// unmarshalSession parses a session detail column.
func unmarshalSession(data string) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}
