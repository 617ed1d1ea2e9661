package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/pkg/schema"
)

// DefaultTitle is used when no title option is given.
const DefaultTitle = "Network"

type buildConfig struct {
	title string
	reg   *layers.Registry
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithTitle sets the diagram title.
func WithTitle(title string) BuildOption {
	return func(c *buildConfig) {
		if title != "" {
			c.title = title
		}
	}
}

// WithRegistry classifies nodes with reg instead of the built-in registry.
func WithRegistry(reg *layers.Registry) BuildOption {
	return func(c *buildConfig) {
		if reg != nil {
			c.reg = reg
		}
	}
}

// Build constructs a DiagramModel from a compiled graph and, optionally, the
// analysis report of the same graph. Nodes keep the compiler's topological
// order; levels place every node one below its deepest predecessor.
func Build(dag *schema.DAGResult, report *schema.AnalysisReport, opts ...BuildOption) (*DiagramModel, error) {
	if dag == nil {
		return nil, fmt.Errorf("diagram: nil graph")
	}
	if !dag.IsValid {
		return nil, fmt.Errorf("diagram: graph is not a valid DAG: %s", strings.Join(dag.Errors, "; "))
	}

	cfg := buildConfig{title: DefaultTitle}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reg == nil {
		cfg.reg = layers.NewRegistry()
	}

	var overlay map[string]schema.NodeStatus
	if report != nil {
		overlay = report.Overlay
	}

	nodes := make([]*Node, 0, len(dag.OrderedNodes))
	index := make(map[string]*Node, len(dag.OrderedNodes))
	for _, lo := range dag.OrderedNodes {
		node := &Node{
			ID:      lo.ID,
			Kind:    nodeKind(lo.Type, cfg.reg),
			Type:    lo.Type,
			VarName: lo.VarName,
		}
		if st, ok := overlay[lo.ID]; ok {
			node.Shape = st.Shape
			node.Status = statusFrom(st)
		}
		node.Label = nodeLabel(node)
		nodes = append(nodes, node)
		index[lo.ID] = node
	}

	return &DiagramModel{
		Title:  cfg.title,
		Nodes:  nodes,
		Edges:  buildEdges(dag, index),
		Levels: buildLevels(dag),
	}, nil
}

func nodeKind(typeName string, reg *layers.Registry) NodeKind {
	switch k := layers.ParseKind(typeName); {
	case layers.SourceRole(k):
		return NodeKindSource
	case k == layers.KindOutput:
		return NodeKindOutput
	case reg.MergeCapable(typeName):
		return NodeKindMerge
	default:
		return NodeKindLayer
	}
}

// statusFrom maps an overlay entry to a diagram status. Errors win over
// warnings.
func statusFrom(st schema.NodeStatus) *StatusOverlay {
	switch {
	case st.HasShapeError:
		return &StatusOverlay{Status: StatusError, Message: st.ShapeErrorMessage}
	case st.HasWarning:
		return &StatusOverlay{Status: StatusWarning, Message: st.WarningMessage}
	case st.Shape != nil:
		return &StatusOverlay{Status: StatusOK}
	default:
		return nil
	}
}

// nodeLabel renders "var (Type) [shape]", leaving out the shape when it is
// unknown.
func nodeLabel(n *Node) string {
	name := n.VarName
	if name == "" {
		name = n.ID
	}
	label := fmt.Sprintf("%s (%s)", name, n.Type)
	if n.Shape != nil {
		label += " " + n.Shape.String()
	}
	return label
}

// shapeLabel renders a shape compactly for edge labels: 28x28x1.
func shapeLabel(s schema.Shape) string {
	if s == nil {
		return ""
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, "x")
}

// buildEdges lists connections in topological order of their source, each
// labelled with the source's output shape.
func buildEdges(dag *schema.DAGResult, index map[string]*Node) []Edge {
	var edges []Edge
	for _, lo := range dag.OrderedNodes {
		var label string
		if n := index[lo.ID]; n != nil {
			label = shapeLabel(n.Shape)
		}
		for _, to := range dag.EdgeMap[lo.ID] {
			edges = append(edges, Edge{From: lo.ID, To: to, Label: label})
		}
	}
	return edges
}

// buildLevels assigns each node the length of the longest path reaching it.
func buildLevels(dag *schema.DAGResult) [][]string {
	depth := make(map[string]int, len(dag.OrderedNodes))
	maxDepth := 0
	for _, lo := range dag.OrderedNodes {
		d := depth[lo.ID]
		for _, to := range dag.EdgeMap[lo.ID] {
			if d+1 > depth[to] {
				depth[to] = d + 1
				maxDepth = max(maxDepth, d+1)
			}
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, lo := range dag.OrderedNodes {
		levels[depth[lo.ID]] = append(levels[depth[lo.ID]], lo.ID)
	}
	if len(dag.OrderedNodes) == 0 {
		return nil
	}
	return levels
}
