package codegen

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/pkg/schema"
)

// RequiredStyle picks the emission style for a compiled graph. Functional is
// required when the graph has more than one source or sink, any fan-out, or
// any merge-capable layer; otherwise Sequential applies.
func RequiredStyle(dag *schema.DAGResult, reg *layers.Registry) schema.CodeStyle {
	if len(branchingReasons(dag, reg)) > 0 {
		return schema.StyleFunctional
	}
	return schema.StyleSequential
}

// branchingReasons lists every property that rules out Sequential emission.
func branchingReasons(dag *schema.DAGResult, reg *layers.Registry) []string {
	if dag == nil || !dag.IsValid {
		return nil
	}
	var reasons []string
	if n := len(dag.Sources()); n > 1 {
		reasons = append(reasons, fmt.Sprintf("%d source nodes", n))
	}
	if n := len(dag.Sinks()); n > 1 {
		reasons = append(reasons, fmt.Sprintf("%d sink nodes", n))
	}
	for _, n := range dag.OrderedNodes {
		if out := len(dag.EdgeMap[n.ID]); out > 1 {
			reasons = append(reasons, fmt.Sprintf("%s has %d outgoing connections", n.VarName, out))
		}
	}
	for _, n := range dag.OrderedNodes {
		if reg != nil && reg.MergeCapable(n.Type) {
			reasons = append(reasons, fmt.Sprintf("%s is a merge layer", n.VarName))
		}
	}
	return reasons
}

// linearViolation explains why the graph is not a single chain, or returns ""
// when it is.
func linearViolation(dag *schema.DAGResult) string {
	preds := dag.Predecessors()
	var problems []string
	if n := len(dag.Sources()); n != 1 {
		problems = append(problems, fmt.Sprintf("%d source nodes", n))
	}
	for _, n := range dag.OrderedNodes {
		if out := len(dag.EdgeMap[n.ID]); out > 1 {
			problems = append(problems, fmt.Sprintf("%s has %d outgoing connections", n.VarName, out))
		}
		if in := len(preds[n.ID]); in > 1 {
			problems = append(problems, fmt.Sprintf("%s has %d incoming connections", n.VarName, in))
		}
	}
	return strings.Join(problems, ", ")
}

// IsLinear reports whether the compiled graph is a single chain.
func IsLinear(dag *schema.DAGResult) bool {
	return dag != nil && dag.IsValid && linearViolation(dag) == ""
}
