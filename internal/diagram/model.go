package diagram

import "github.com/rendis/netgraph/pkg/schema"

// NodeKind classifies a diagram node by the role its layer plays.
type NodeKind string

const (
	NodeKindSource NodeKind = "source" // Input layers
	NodeKindLayer  NodeKind = "layer"
	NodeKindMerge  NodeKind = "merge" // Add, Concatenate, ...
	NodeKindOutput NodeKind = "output"
)

// Status is the analysis verdict rendered on a node.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusUnknown Status = "" // no shape was computed and nothing was reported
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single layer in the diagram.
type Node struct {
	ID      string
	Label   string // "dense_1 (Dense) [128]"
	Kind    NodeKind
	Type    string
	VarName string
	Shape   schema.Shape
	Status  *StatusOverlay
}

// StatusOverlay carries the analysis result for a node.
type StatusOverlay struct {
	Status  Status
	Message string
}

// Edge represents a connection between two layers. Label carries the
// tensor shape flowing along it, when known.
type Edge struct {
	From  string
	To    string
	Label string
}
