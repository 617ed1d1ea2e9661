package validation

import (
	"errors"
	"fmt"

	"github.com/rendis/netgraph/internal/expressions"
	"github.com/rendis/netgraph/pkg/schema"
)

// validateSemantic performs semantic analysis on the graph document.
// Checks: unique node ids, edge endpoints exist, no self-loops, duplicate
// edges, known layer types and layer params. Unknown types, duplicate
// edges and param schema violations are warnings; the rest are errors.
func validateSemantic(doc *schema.GraphDocument, lookup LayerLookup, params *JSONSchemaValidator) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(doc.Nodes))
	for i, n := range doc.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if nodeIDs[n.ID] {
			result.AddNodeError(path+".id", n.ID, schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodeIDs[n.ID] = true

		if lookup != nil && !lookup.Known(n.Type) {
			result.AddNodeWarning(path+".type", n.ID, schema.ErrCodeUnknownLayer,
				fmt.Sprintf("unknown layer type %q", n.Type))
			continue
		}
		validateNodeParams(n, path, params, result)
	}

	seen := make(map[schema.GraphEdge]int, len(doc.Edges))
	for j, e := range doc.Edges {
		path := fmt.Sprintf("edges[%d]", j)

		if !nodeIDs[e.Source] {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Source))
		}
		if !nodeIDs[e.Target] {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", e.Target))
		}
		if e.Source == e.Target {
			result.AddNodeError(path, e.Source, schema.ErrCodeCycleDetected,
				fmt.Sprintf("node %q is connected to itself", e.Source))
			continue
		}
		if first, dup := seen[e]; dup {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("duplicate of edges[%d] (%s -> %s); it is ignored", first, e.Source, e.Target))
			continue
		}
		seen[e] = j
	}

	return result
}

// validateNodeParams checks a node's params against its layer schema.
// Params that still hold ${{ }} expressions are checked after resolution
// instead, by shape inference.
func validateNodeParams(n schema.GraphNode, path string, params *JSONSchemaValidator, result *schema.ValidationResult) {
	if params == nil || expressions.HasExpression(n.Params) {
		return
	}
	err := params.ValidateParams(n.Params, ParamSchema(n.Type))
	if err == nil {
		return
	}

	var gErr *schema.GraphError
	if errors.As(err, &gErr) && gErr.Details != nil {
		if violations, ok := gErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddNodeWarning(path+".params", n.ID, schema.ErrCodeValidation, v)
			}
			return
		}
	}
	result.AddNodeWarning(path+".params", n.ID, schema.ErrCodeValidation, err.Error())
}
