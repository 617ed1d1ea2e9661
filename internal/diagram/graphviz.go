package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Format selects the graphviz output encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
	FormatDOT Format = "dot"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return RenderGraphviz(ctx, model, FormatPNG)
}

// RenderGraphviz lays out the model with dot and encodes it as format.
func RenderGraphviz(ctx context.Context, model *DiagramModel, format Format) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case FormatPNG, "":
		gvFormat = graphviz.PNG
	case FormatSVG:
		gvFormat = graphviz.SVG
	case FormatDOT:
		gvFormat = graphviz.XDOT
	default:
		return nil, fmt.Errorf("diagram: unsupported image format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s -> %s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindSource:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindOutput:
		gvNode.SetShape(cgraph.DoubleOctagonShape)
	case NodeKindMerge:
		gvNode.SetShape(cgraph.HexagonShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status Status) {
	switch status {
	case StatusOK:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case StatusWarning:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	case StatusError:
		gvNode.SetStyle(cgraph.FilledNodeStyle)
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	}
}
