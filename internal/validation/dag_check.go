package validation

import (
	"fmt"

	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/pkg/schema"
)

// validateDAG previews graph compilation: structural errors (no source, no
// sink, cycles) become errors, and nodes that no Input layer can reach
// become warnings because shape inference will not be able to shape them.
func validateDAG(doc *schema.GraphDocument) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	dag := engine.Compile(doc.Nodes, doc.Edges)
	if !dag.IsValid {
		for _, msg := range dag.Errors {
			code := schema.ErrCodeValidation
			if msg == engine.MsgCycle {
				code = schema.ErrCodeCycleDetected
			}
			result.AddError("graph", code, msg)
		}
		return result // ordering is meaningless on an invalid graph
	}

	// Reachability: BFS from Input sources through the edge map.
	reachable := make(map[string]bool, len(dag.OrderedNodes))
	var queue []string
	for _, n := range dag.Sources() {
		if layers.ParseKind(n.Type) == layers.KindInput {
			reachable[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range dag.EdgeMap[id] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i, n := range doc.Nodes {
		if !reachable[n.ID] {
			result.AddNodeWarning(fmt.Sprintf("nodes[%d]", i), n.ID, schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from any Input layer", n.ID))
		}
	}

	return result
}
