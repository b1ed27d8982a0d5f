package graphml

import (
	"strings"

	"github.com/roach88/apiary/internal/ir"
)

// ParseActions splits action text into trigger[guard]/behavior entries.
// Entries are separated by blank lines. The header of an entry runs up to the
// first '/' outside square brackets; everything after it is the behavior.
// An entry without a '/' is treated as a bare behavior.
func ParseActions(text string) []ir.Action {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var actions []ir.Action
	for _, block := range splitBlocks(text) {
		actions = append(actions, parseAction(block))
	}
	return actions
}

func splitBlocks(text string) []string {
	var blocks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

func parseAction(block string) ir.Action {
	depth := 0
	for i, r := range block {
		switch r {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '\n':
			if depth == 0 {
				return ir.Action{Behavior: strings.TrimSpace(block)}
			}
		case '/':
			if depth == 0 {
				trigger, guard := splitGuard(strings.TrimSpace(block[:i]))
				return ir.Action{
					Trigger:  trigger,
					Guard:    guard,
					Behavior: trimLines(block[i+1:]),
				}
			}
		}
	}
	return ir.Action{Behavior: strings.TrimSpace(block)}
}

func splitGuard(header string) (trigger, guard string) {
	open := strings.IndexByte(header, '[')
	if open < 0 || !strings.HasSuffix(header, "]") {
		return header, ""
	}
	return strings.TrimSpace(header[:open]), strings.TrimSpace(header[open+1 : len(header)-1])
}

func trimLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
