package expressions

import (
	"encoding/json"

	"github.com/rendis/netgraph/pkg/schema"
)

// NodeScope is the environment a parameter expression sees. Document
// variables are exposed as top-level names and under "vars"; the node being
// resolved is exposed as "node" (id and type).
type NodeScope struct {
	Vars map[string]any
	Node schema.GraphNode
}

// Env builds the evaluation environment. Variables are deep-copied so an
// expression can never mutate the document.
func (s NodeScope) Env() map[string]any {
	vars := deepCopyMap(s.Vars)
	env := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		env[k] = v
	}
	env["vars"] = vars
	env["node"] = map[string]any{"id": s.Node.ID, "type": s.Node.Type}
	return env
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		// Primitives (string, float64, bool, nil, int, int64) are value types.
		return v
	}
}
