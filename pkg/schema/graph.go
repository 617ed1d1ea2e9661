package schema

// GraphDocument is the canonical graph snapshot handed to the compiler.
// The editor owns nodes and edges; the compiler only reads them.
type GraphDocument struct {
	Nodes      []GraphNode    `json:"nodes"`
	Edges      []GraphEdge    `json:"edges"`
	Variables  map[string]any `json:"variables,omitempty"`   // values for ${{ }} param expressions
	InputShape []int          `json:"input_shape,omitempty"` // fallback shape for Input nodes without one
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GraphNode is a typed layer placed on the canvas.
type GraphNode struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`             // layer type key, e.g. "Dense", "Conv2D"
	Params map[string]any `json:"params,omitempty"` // primitive values only
}

// GraphEdge is a directed connection between two nodes.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// LayerObject is a compiled node carrying its generated variable name.
type LayerObject struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Params  map[string]any `json:"params,omitempty"`
	VarName string         `json:"var_name"`
}

// DAGResult is the output of graph compilation.
// When IsValid is false, OrderedNodes is empty and EdgeMap is nil.
type DAGResult struct {
	OrderedNodes []LayerObject       `json:"ordered_nodes"`
	EdgeMap      map[string][]string `json:"edge_map,omitempty"` // node ID → targets, edge insertion order
	IsValid      bool                `json:"is_valid"`
	Errors       []string            `json:"errors,omitempty"`
	NodeIDs      []string            `json:"node_ids,omitempty"` // every registered node ID, input order
}

// Node returns the compiled node with the given ID.
func (d *DAGResult) Node(id string) (*LayerObject, bool) {
	for i := range d.OrderedNodes {
		if d.OrderedNodes[i].ID == id {
			return &d.OrderedNodes[i], true
		}
	}
	return nil, false
}

// Predecessors maps each node ID to the IDs of its direct predecessors.
// Predecessors are listed in discovery order: the topological position of
// the source node, then the order of the edge in the source's EdgeMap entry.
func (d *DAGResult) Predecessors() map[string][]string {
	preds := make(map[string][]string, len(d.OrderedNodes))
	for _, n := range d.OrderedNodes {
		for _, target := range d.EdgeMap[n.ID] {
			preds[target] = append(preds[target], n.ID)
		}
	}
	return preds
}

// Sources returns compiled nodes with no incoming edges, in topological order.
func (d *DAGResult) Sources() []LayerObject {
	preds := d.Predecessors()
	var out []LayerObject
	for _, n := range d.OrderedNodes {
		if len(preds[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Sinks returns compiled nodes with no outgoing edges, in topological order.
func (d *DAGResult) Sinks() []LayerObject {
	var out []LayerObject
	for _, n := range d.OrderedNodes {
		if len(d.EdgeMap[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}
