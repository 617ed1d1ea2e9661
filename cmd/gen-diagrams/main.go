// gen-diagrams generates sample diagram and code outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/netgraph/internal/diagram"
	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/pkg/schema"
)

type sample struct {
	name string
	doc  *schema.GraphDocument
}

func node(id, typ string, params map[string]any) schema.GraphNode {
	return schema.GraphNode{ID: id, Type: typ, Params: params}
}

func edge(source, target string) schema.GraphEdge {
	return schema.GraphEdge{Source: source, Target: target}
}

func samples() []sample {
	// MLP: input → dense(2*hidden) → dropout → dense(hidden) → softmax output
	mlp := &schema.GraphDocument{
		Nodes: []schema.GraphNode{
			node("in", "Input", map[string]any{"shape": []any{784}}),
			node("h1", "Dense", map[string]any{"units": "${{ hidden * 2 }}"}),
			node("drop", "Dropout", map[string]any{"rate": 0.2}),
			node("h2", "Dense", map[string]any{"units": "${{ hidden }}"}),
			node("out", "Output", map[string]any{"units": 10, "problemType": "multiclass"}),
		},
		Edges:     []schema.GraphEdge{edge("in", "h1"), edge("h1", "drop"), edge("drop", "h2"), edge("h2", "out")},
		Variables: map[string]any{"hidden": 64},
		Metadata:  map[string]any{"name": "MNIST MLP"},
	}

	// Residual CNN: conv → conv, with a skip connection merged by Add
	cnn := &schema.GraphDocument{
		Nodes: []schema.GraphNode{
			node("in", "Input", map[string]any{"shape": []any{32, 32, 3}}),
			node("c1", "Conv2D", map[string]any{"filters": 16, "padding": "same"}),
			node("c2", "Conv2D", map[string]any{"filters": 16, "padding": "same"}),
			node("skip", "Add", nil),
			node("pool", "MaxPooling2D", nil),
			node("flat", "Flatten", nil),
			node("fc", "Dense", map[string]any{"units": 64}),
			node("out", "Output", map[string]any{"units": 10, "problemType": "multiclass"}),
		},
		Edges: []schema.GraphEdge{
			edge("in", "c1"), edge("c1", "c2"), edge("c1", "skip"), edge("c2", "skip"),
			edge("skip", "pool"), edge("pool", "flat"), edge("flat", "fc"), edge("fc", "out"),
		},
		Metadata: map[string]any{"name": "Residual CNN"},
	}
	return []sample{{"mlp", mlp}, {"residual-cnn", cnn}}
}

func main() {
	ctx := context.Background()
	pipeline := engine.NewPipeline(engine.PipelineDeps{}, engine.PipelineConfig{})

	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".netgraph", "bin")

	for _, s := range samples() {
		report, err := pipeline.Run(ctx, s.doc, schema.StyleAuto)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: analysis error: %v\n", s.name, err)
			os.Exit(1)
		}
		model, err := diagram.Build(report.DAG, report,
			diagram.WithRegistry(pipeline.Registry()),
			diagram.WithTitle(s.doc.Metadata["name"].(string)),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: build error: %v\n", s.name, err)
			os.Exit(1)
		}

		// ASCII (mermaid-ascii with hand-rolled fallback)
		ascii := diagram.RenderASCIIAuto(model, binDir)
		os.WriteFile(filepath.Join(outDir, s.name+"-ascii.txt"), []byte(ascii), 0o644)
		fmt.Printf("=== %s: ASCII ===\n%s\n", s.name, ascii)

		// Mermaid
		mermaid := diagram.RenderMermaid(model)
		os.WriteFile(filepath.Join(outDir, s.name+"-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
		fmt.Printf("=== %s: Mermaid ===\n%s\n", s.name, mermaid)

		// Keras source
		os.WriteFile(filepath.Join(outDir, s.name+".py"), []byte(report.Code), 0o644)
		fmt.Printf("=== %s: %s code ===\n%s\n", s.name, report.Style, report.Code)

		// Image (PNG)
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			fmt.Fprintf(os.Stderr, "%s: image error: %v\n", s.name, imgErr)
			continue
		}
		pngPath := filepath.Join(outDir, s.name+".png")
		os.WriteFile(pngPath, png, 0o644)
		fmt.Printf("=== %s: Image (PNG) ===\nWritten: %s (%d bytes)\n", s.name, pngPath, len(png))
	}
}
