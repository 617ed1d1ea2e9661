package schema

import "strings"

// CodeStyle names the emission strategy used for generated source.
type CodeStyle string

const (
	StyleAuto       CodeStyle = "auto"
	StyleSequential CodeStyle = "sequential"
	StyleFunctional CodeStyle = "functional"
)

// ParseCodeStyle parses a style name. The empty string means auto.
func ParseCodeStyle(s string) (CodeStyle, error) {
	switch v := CodeStyle(strings.ToLower(strings.TrimSpace(s))); v {
	case "", StyleAuto:
		return StyleAuto, nil
	case StyleSequential, StyleFunctional:
		return v, nil
	default:
		return "", NewErrorf(ErrCodeValidation, "unknown style %q (want auto, sequential or functional)", s)
	}
}

// NodeStatus is the per-node overlay rendered on the canvas.
// Errors and warnings are reported in separate fields so they stay distinguishable.
type NodeStatus struct {
	HasShapeError     bool       `json:"has_shape_error"`
	ShapeErrorMessage string     `json:"shape_error_message,omitempty"`
	Scope             ErrorScope `json:"scope,omitempty"`
	HasWarning        bool       `json:"has_warning"`
	WarningMessage    string     `json:"warning_message,omitempty"`
	Shape             Shape      `json:"shape,omitempty"`
}

// AnalysisReport is the full result of one recomputation over a graph snapshot.
type AnalysisReport struct {
	RunID         string                `json:"run_id,omitempty"`
	DAG           *DAGResult            `json:"dag"`
	Shapes        *ShapeReport          `json:"shapes,omitempty"`
	Overlay       map[string]NodeStatus `json:"overlay"`
	Style         CodeStyle             `json:"style,omitempty"`
	Code          string                `json:"code,omitempty"`
	CodeWarnings  []string              `json:"code_warnings,omitempty"`
	CodeError     string                `json:"code_error,omitempty"`
	CodeErrorCode string                `json:"code_error_code,omitempty"` // e.g. NOT_LINEAR
}

// HasErrors reports whether the graph failed compilation or any node failed shape inference.
func (r *AnalysisReport) HasErrors() bool {
	if r.DAG == nil || !r.DAG.IsValid {
		return true
	}
	return r.Shapes != nil && len(r.Shapes.Errors) > 0
}
