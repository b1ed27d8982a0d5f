package oracle

import (
	"slices"
	"strings"

	"github.com/roach88/apiary/internal/ir"
)

// ActionDiff classifies how two action lists differ.
type ActionDiff uint8

const (
	// ActionArguments: same calls in the same places, different arguments.
	ActionArguments ActionDiff = 1 << iota
	// ActionOrder: same statements, different order.
	ActionOrder
	// ActionCount: different number of statements.
	ActionCount
	// ActionContent: same count but different calls.
	ActionContent
)

var actionDiffNames = []string{"arguments", "order", "count", "content"}

// Has reports whether all bits of f are set.
func (d ActionDiff) Has(f ActionDiff) bool { return f != 0 && d&f == f }

func (d ActionDiff) String() string { return bitNames(uint8(d), actionDiffNames) }

// ActionComparator compares the action lists of a matched node pair.
type ActionComparator interface {
	CompareActions(baseline, candidate []ir.Action) ActionDiff
}

// StatementComparator compares actions statement by statement. Each behavior
// is split into statements on newlines and semicolons; a statement keeps its
// action's trigger and guard as a prefix.
type StatementComparator struct{}

// CompareActions implements ActionComparator.
func (StatementComparator) CompareActions(baseline, candidate []ir.Action) ActionDiff {
	a := statements(baseline)
	b := statements(candidate)
	if len(a) != len(b) {
		return ActionCount
	}
	if slices.Equal(a, b) {
		return 0
	}
	if sameMultiset(a, b) {
		return ActionOrder
	}

	sa := signatures(a)
	sb := signatures(b)
	if slices.Equal(sa, sb) {
		return ActionArguments
	}
	if sameMultiset(sa, sb) {
		return ActionArguments | ActionOrder
	}
	return ActionContent
}

func statements(actions []ir.Action) []string {
	var out []string
	for _, a := range actions {
		prefix := a.Trigger
		if a.Guard != "" {
			prefix += "[" + a.Guard + "]"
		}
		prefix += "/"
		parts := strings.FieldsFunc(a.Behavior, func(r rune) bool { return r == '\n' || r == ';' })
		empty := true
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			empty = false
			out = append(out, prefix+p)
		}
		if empty {
			out = append(out, prefix)
		}
	}
	return out
}

// signatures strips call arguments: "Диод.Включить(красный)" becomes
// "Диод.Включить()".
func signatures(stmts []string) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		var b strings.Builder
		depth := 0
		for _, r := range s {
			switch {
			case r == '(':
				if depth == 0 {
					b.WriteRune(r)
				}
				depth++
			case r == ')' && depth > 0:
				depth--
				if depth == 0 {
					b.WriteRune(r)
				}
			case depth == 0:
				b.WriteRune(r)
			}
		}
		out[i] = b.String()
	}
	return out
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := slices.Clone(a)
	sb := slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}

func equalActions(a, b []ir.Action) bool {
	return slices.Equal(a, b)
}

func equalEdgeAction(a, b *ir.Action) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
