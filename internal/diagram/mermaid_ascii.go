package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cliTimeout bounds a mermaid-ascii invocation.
const cliTimeout = 5 * time.Second

// RenderASCIIAuto renders through the mermaid-ascii binary in binDir when it
// is installed, falling back to RenderASCII.
func RenderASCIIAuto(model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			result, err := RenderASCIIViaCLI(model, binPath)
			if err == nil {
				return result
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(model *DiagramModel, binPath string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates the Mermaid subset the mermaid-ascii CLI
// understands: bare edges between IDs, no ["label"] declarations and no
// classes. Node IDs carry the variable name, the shape and a status tag
// instead.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	displayID := make(map[string]string, len(model.Nodes))
	for _, node := range model.Nodes {
		displayID[node.ID] = cliNodeID(node)
	}
	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	connected := make(map[string]bool, len(model.Nodes))
	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s --> %s\n", resolve(edge.From), resolve(edge.To))
		connected[edge.From] = true
		connected[edge.To] = true
	}
	for _, node := range model.Nodes {
		if !connected[node.ID] {
			fmt.Fprintf(&b, "    %s\n", resolve(node.ID))
		}
	}

	return b.String()
}

// cliNodeID builds a display ID such as dense_1-128-OK.
func cliNodeID(node *Node) string {
	id := node.VarName
	if id == "" {
		id = node.ID
	}
	if node.Shape != nil {
		id += "-" + shapeLabel(node.Shape)
	}
	if node.Status != nil {
		if tag := cliStatusTag(node.Status.Status); tag != "" {
			id += "-" + tag
		}
	}
	return strings.ReplaceAll(id, " ", "-")
}

// cliStatusTag returns a compact status indicator for node IDs.
func cliStatusTag(status Status) string {
	switch status {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARN"
	case StatusError:
		return "ERR"
	default:
		return ""
	}
}
