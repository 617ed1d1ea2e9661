package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// statusTag returns a short ASCII indicator for a status.
func statusTag(status Status) string {
	switch status {
	case StatusOK:
		return "[OK]"
	case StatusWarning:
		return "[WARN]"
	case StatusError:
		return "[ERR]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based diagram: one row of
// boxes per level, followed by the messages of nodes that have issues.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var issues []string
	for _, node := range model.Nodes {
		if node.Status != nil && node.Status.Message != "" {
			issues = append(issues, fmt.Sprintf("  %s %s: %s", statusTag(node.Status.Status), node.ID, node.Status.Message))
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n--- issues ---\n")
		b.WriteString(strings.Join(issues, "\n"))
		b.WriteByte('\n')
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	name := node.VarName
	if name == "" {
		name = node.ID
	}
	contentLines := []string{fmt.Sprintf("%s (%s)", name, node.Type)}
	if node.Shape != nil {
		contentLines = append(contentLines, node.Shape.String())
	}
	if node.Status != nil {
		if tag := statusTag(node.Status.Status); tag != "" {
			contentLines = append(contentLines, tag)
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, utf8.RuneCountInString(line))
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := range maxHeight {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
