package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/internal/lint"
	"github.com/rendis/netgraph/pkg/schema"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	linter, err := lint.New(nil, lint.DefaultRules, nil)
	require.NoError(t, err)
	return NewPipeline(PipelineDeps{Linter: linter}, PipelineConfig{DefaultInputShape: []int{784}})
}

func mlpDocument() *schema.GraphDocument {
	nodes, edges := chain(
		inputNode("in", 784),
		node("hidden", "Dense", map[string]any{"units": "${{ hidden * 2 }}"}),
		node("out", "Output", map[string]any{"units": 10}),
	)
	return &schema.GraphDocument{Nodes: nodes, Edges: edges, Variables: map[string]any{"hidden": 64}}
}

func TestPipeline_LinearGraph(t *testing.T) {
	report, err := newTestPipeline(t).Run(context.Background(), mlpDocument(), schema.StyleAuto)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.HasErrors())
	assert.Equal(t, schema.StyleSequential, report.Style)
	assert.Equal(t, schema.Shape{128}, report.Shapes.NodeShapes["hidden"])
	assert.Contains(t, report.Code, "keras.Sequential([")
	assert.Contains(t, report.Code, "layers.Dense(128, activation='relu')")
	assert.Empty(t, report.CodeError)

	require.Len(t, report.Overlay, 3)
	assert.Equal(t, schema.NodeStatus{Shape: schema.Shape{10}}, report.Overlay["out"])
}

func TestPipeline_InvalidGraph(t *testing.T) {
	doc := &schema.GraphDocument{
		Nodes: []schema.GraphNode{node("a", "Dense"), node("b", "Dense")},
		Edges: []schema.GraphEdge{edge("a", "b"), edge("b", "a")},
	}

	report, err := newTestPipeline(t).Run(context.Background(), doc, schema.StyleAuto)
	require.NoError(t, err)

	assert.True(t, report.HasErrors())
	assert.False(t, report.DAG.IsValid)
	assert.Empty(t, report.Code)
	assert.Empty(t, report.Shapes.NodeShapes)
	for _, id := range []string{"a", "b"} {
		st := report.Overlay[id]
		assert.True(t, st.HasShapeError)
		assert.Equal(t, schema.ScopeGraph, st.Scope)
		assert.Contains(t, st.ShapeErrorMessage, MsgCycle)
	}
}

func TestPipeline_ShapeErrorsStillEmitCode(t *testing.T) {
	nodes, edges := chain(inputNode("in", 28, 28, 1), node("d", "Dense"), node("out", "Output"))

	report, err := newTestPipeline(t).Run(context.Background(), &schema.GraphDocument{Nodes: nodes, Edges: edges}, schema.StyleAuto)
	require.NoError(t, err)

	assert.True(t, report.HasErrors())
	assert.NotEmpty(t, report.Code)
	assert.Contains(t, report.Code, "keras.Input(shape=(28, 28, 1))")

	d := report.Overlay["d"]
	assert.True(t, d.HasShapeError)
	assert.Equal(t, schema.ScopeNode, d.Scope)
	assert.Nil(t, d.Shape)
	assert.True(t, report.Overlay["out"].HasShapeError)
}

func TestPipeline_ExpressionFailure(t *testing.T) {
	doc := mlpDocument()
	doc.Variables = nil

	report, err := newTestPipeline(t).Run(context.Background(), doc, schema.StyleAuto)
	require.NoError(t, err)

	e, ok := report.Shapes.ErrorFor("hidden")
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExpression, e.Code)
	assert.Contains(t, e.Message, `param "units"`)
	assert.True(t, report.Overlay["out"].HasShapeError)
}

func TestPipeline_BranchingGraphUsesFunctional(t *testing.T) {
	doc := &schema.GraphDocument{
		Nodes: []schema.GraphNode{
			inputNode("a", 32), inputNode("b", 32), node("add", "Add"), node("out", "Output"),
		},
		Edges: []schema.GraphEdge{edge("a", "add"), edge("b", "add"), edge("add", "out")},
	}

	p := newTestPipeline(t)
	report, err := p.Run(context.Background(), doc, schema.StyleAuto)
	require.NoError(t, err)
	assert.Equal(t, schema.StyleFunctional, report.Style)
	assert.Contains(t, report.Code, "model = keras.Model(inputs=[input, input_1], outputs=output)")

	report, err = p.Run(context.Background(), doc, schema.StyleSequential)
	require.NoError(t, err)
	assert.Empty(t, report.Code)
	assert.Equal(t, schema.StyleSequential, report.Style)
	assert.True(t, strings.HasPrefix(report.CodeError, "not a linear path"))
	assert.Equal(t, schema.ErrCodeNotLinear, report.CodeErrorCode)
}

func TestPipeline_WarningsInOverlay(t *testing.T) {
	nodes, edges := chain(
		inputNode("in", 64),
		node("flat", "Flatten"),
		node("wide", "Dense", map[string]any{"units": 5000}),
		node("out", "Output"),
	)

	report, err := newTestPipeline(t).Run(context.Background(), &schema.GraphDocument{Nodes: nodes, Edges: edges}, schema.StyleAuto)
	require.NoError(t, err)
	assert.False(t, report.HasErrors())

	flat := report.Overlay["flat"]
	assert.True(t, flat.HasWarning)
	assert.False(t, flat.HasShapeError)
	assert.Contains(t, flat.WarningMessage, "no effect")

	wide := report.Overlay["wide"]
	assert.True(t, wide.HasWarning)
	assert.Contains(t, wide.WarningMessage, "consider a narrower layer")
	assert.NotEmpty(t, report.Code)
}

func TestPipeline_DocumentInputShapeWins(t *testing.T) {
	nodes, edges := chain(node("in", "Input"), node("out", "Output"))
	doc := &schema.GraphDocument{Nodes: nodes, Edges: edges, InputShape: []int{32}}

	report, err := newTestPipeline(t).Run(context.Background(), doc, schema.StyleAuto)
	require.NoError(t, err)
	assert.Equal(t, schema.Shape{32}, report.Shapes.NodeShapes["in"])
	assert.Contains(t, report.Code, "keras.Input(shape=(32,))")
}

func TestPipeline_InvalidInputShapeIsNotReplaced(t *testing.T) {
	nodes, edges := chain(
		node("in", "Input", map[string]any{"shape": []any{28, 0, 1}}),
		node("f", "Flatten"),
		node("out", "Output", map[string]any{"units": 10}),
	)

	report, err := newTestPipeline(t).Run(context.Background(), &schema.GraphDocument{Nodes: nodes, Edges: edges}, schema.StyleAuto)
	require.NoError(t, err)

	assert.True(t, report.HasErrors())
	assert.True(t, report.Overlay["in"].HasShapeError)
	assert.Nil(t, report.Overlay["in"].Shape)
	assert.True(t, report.Overlay["out"].HasShapeError)
	assert.NotContains(t, report.Code, "keras.Input(shape=(784,))")
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestPipeline(t).Run(ctx, mlpDocument(), schema.StyleAuto)
	assert.Nil(t, report)
	assert.Equal(t, schema.ErrCodeCancelled, schema.ErrorCode(err))
}

func TestPipeline_EmptyDocument(t *testing.T) {
	report, err := NewPipeline(PipelineDeps{}, PipelineConfig{}).Run(context.Background(), nil, schema.StyleAuto)
	require.NoError(t, err)
	assert.Equal(t, []string{MsgEmptyNetwork}, report.DAG.Errors)
	assert.Empty(t, report.Overlay)
}

func BenchmarkPipeline_Run(b *testing.B) {
	var nodes []schema.GraphNode
	nodes = append(nodes, inputNode("in", 28, 28, 1), node("flat", "Flatten"))
	for i := range 50 {
		nodes = append(nodes, node("d"+string(rune('a'+i%26))+string(rune('a'+i/26)), "Dense"))
	}
	nodes = append(nodes, node("out", "Output"))
	nodes, edges := chain(nodes...)
	doc := &schema.GraphDocument{Nodes: nodes, Edges: edges}

	p := NewPipeline(PipelineDeps{}, PipelineConfig{})
	ctx := context.Background()

	for b.Loop() {
		if _, err := p.Run(ctx, doc, schema.StyleAuto); err != nil {
			b.Fatal(err)
		}
	}
}
