package classify

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Dense flag keys.
const (
	KeyIsomorphicToDefault          = "isomorphic to default"
	KeyExtendedDefault              = "extended default"
	KeyNewNodes                     = "new nodes"
	KeySingleNewNode                = "single new node"
	KeyEmptyNewNodes                = "empty new nodes"
	KeySingleEmptyNewNode           = "single empty new node"
	KeyNewNodesWithDefaultName      = "new nodes with default state name"
	KeySingleNewNodeWithDefaultName = "single new node with default state name"
	KeyNewNodesWithEmptyName        = "new nodes with empty state name"
	KeyDefaultStateNames            = "default state names"
	KeyEmptyNames                   = "empty names"
	KeyNontrivialNames              = "non-trivial names"
	KeyMissingNodes                 = "missing nodes"
	KeyDetachedNodes                = "detached nodes"
	KeyNewNodesAndEdgesLinked       = "new nodes and edges linked"
	KeyDiffNames                    = "diff names"
	KeySingleDiffName               = "single diff name"
	KeyDiffActions                  = "diff actions"
	KeySingleDiffAction             = "single diff action"
	KeyDiffEdges                    = "diff edges"
	KeySingleDiffEdge               = "single diff edge"
	KeyNewEdges                     = "new edges"
	KeySingleNewEdge                = "single new edge"
	KeyMissingEdges                 = "missing edges"
	KeyDiffActionsArgs              = "diff actions args"
	KeyDiffActionsOrder             = "diff actions order"
	KeyDiffActionsNum               = "diff actions num"
	KeyDebugActions                 = "debug actions"
	KeyRepairActions                = "repair actions"
	KeyOverdriveActions             = "overdrive actions"
	KeyMovefromActions              = "movefrom actions"
)

// MarkerKey returns the dense key of an action marker category.
func MarkerKey(category string) string {
	return category + " actions"
}

// ModuleKey returns the sparse key of a module used by new or changed nodes.
func ModuleKey(module string) string {
	return fmt.Sprintf("nodes with %s module", module)
}

// EventKey returns the sparse key of a module event on an edge into a new
// node.
func EventKey(module string) string {
	return fmt.Sprintf("new nodes and edges linked with %s event", module)
}

// Flags is an immutable map of named features. Booleans are stored as 0 or
// 1, counts as counts.
type Flags struct {
	m map[string]int
}

// NewFlags copies m into a Flags value.
func NewFlags(m map[string]int) Flags {
	return Flags{m: maps.Clone(m)}
}

// Bool reports whether the key is present and non-zero.
func (f Flags) Bool(key string) bool { return f.m[key] != 0 }

// Count returns the value of the key, 0 when absent.
func (f Flags) Count(key string) int { return f.m[key] }

// Has reports whether the key is present.
func (f Flags) Has(key string) bool {
	_, ok := f.m[key]
	return ok
}

// Keys returns the present keys, sorted.
func (f Flags) Keys() []string {
	return slices.Sorted(maps.Keys(f.m))
}

// Len returns the number of present keys.
func (f Flags) Len() int { return len(f.m) }

// Map returns a copy of the underlying map.
func (f Flags) Map() map[string]int { return maps.Clone(f.m) }

// MarshalJSON encodes the flags as a JSON object.
func (f Flags) MarshalJSON() ([]byte, error) {
	if f.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.m)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
