package schema

import (
	"strconv"
	"strings"
)

// Shape is a tensor shape without the batch axis, channels-last.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Elements returns the product of all dimensions (1 for a scalar shape).
func (s Shape) Elements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// FirstNonPositive returns the index of the first dimension <= 0, or -1.
func (s Shape) FirstNonPositive() int {
	for i, d := range s {
		if d <= 0 {
			return i
		}
	}
	return -1
}

// String renders the shape as "[28, 28, 1]".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Tuple renders the shape as a Python tuple literal, e.g. "(784,)" or "(28, 28, 1)".
func (s Shape) Tuple() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ShapeResult is the outcome of one layer's shape computation.
// Shape is nil if and only if Error is set.
type ShapeResult struct {
	Shape   Shape  `json:"shape,omitempty"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// ErrorScope distinguishes wiring problems from per-layer problems.
type ErrorScope string

const (
	ScopeNode  ErrorScope = "node"
	ScopeGraph ErrorScope = "graph"
)

// ShapeError is one node's failure during shape inference.
type ShapeError struct {
	NodeID  string     `json:"node_id"`
	Message string     `json:"message"`
	Code    string     `json:"code,omitempty"`
	Scope   ErrorScope `json:"scope"`
}

// WarningSource tells where a warning came from.
type WarningSource string

const (
	WarningFromLayer WarningSource = "layer"
	WarningFromLint  WarningSource = "lint"
)

// ShapeWarning is a non-fatal diagnostic attached to a successfully shaped node.
type ShapeWarning struct {
	NodeID  string        `json:"node_id"`
	Message string        `json:"message"`
	Source  WarningSource `json:"source"`
	Rule    string        `json:"rule,omitempty"`
}

// ShapeReport is the output of shape inference.
type ShapeReport struct {
	Errors     []ShapeError     `json:"errors"`
	Warnings   []ShapeWarning   `json:"warnings,omitempty"`
	NodeShapes map[string]Shape `json:"node_shapes"`
}

// ErrorFor returns the first error recorded for a node.
func (r *ShapeReport) ErrorFor(nodeID string) (ShapeError, bool) {
	for _, e := range r.Errors {
		if e.NodeID == nodeID {
			return e, true
		}
	}
	return ShapeError{}, false
}
