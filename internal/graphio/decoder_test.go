package graphio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/internal/validation"
	"github.com/rendis/netgraph/pkg/schema"
)

const editorDoc = `{
  "nodes": [
    {"id": "in", "type": "layer", "position": {"x": 0, "y": 0}, "data": {"type": "Input", "params": {"shape": [28, 28, 1]}}},
    {"id": "c", "type": "layer", "position": {"x": 0, "y": 80}, "data": {"type": "Conv2D", "params": {"filters": 16, "kernelSize": 5}}},
    {"id": "out", "data": {"type": "Output", "params": {"units": 10, "problemType": "multiclass"}}}
  ],
  "edges": [
    {"id": "e1", "source": "in", "target": "c", "sourceHandle": "a"},
    {"id": "e2", "source": "c", "target": "out"}
  ],
  "variables": {"hidden": 64},
  "inputShape": [28, 28, 1],
  "viewport": {"zoom": 1}
}`

func newDecoder(t *testing.T, opts ...Option) *Decoder {
	t.Helper()
	d, err := NewDecoder(opts...)
	require.NoError(t, err)
	return d
}

func TestDecode_EditorDocument(t *testing.T) {
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	doc, err := newDecoder(t, WithValidator(v)).Decode(context.Background(), []byte(editorDoc))
	require.NoError(t, err)

	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, "in", doc.Nodes[0].ID)
	assert.Equal(t, "Input", doc.Nodes[0].Type, "data.type wins over the editor's node type")
	assert.Equal(t, []any{float64(28), float64(28), float64(1)}, doc.Nodes[0].Params["shape"])
	assert.Equal(t, float64(16), doc.Nodes[1].Params["filters"])
	assert.Equal(t, "Output", doc.Nodes[2].Type)

	assert.Equal(t, []schema.GraphEdge{{Source: "in", Target: "c"}, {Source: "c", Target: "out"}}, doc.Edges)
	assert.Equal(t, map[string]any{"hidden": float64(64)}, doc.Variables)
	assert.Equal(t, []int{28, 28, 1}, doc.InputShape)
}

func TestDecode_CanonicalPassesThrough(t *testing.T) {
	raw := `{
	  "nodes": [{"id": "in", "type": "Input", "params": {"shape": [784]}}, {"id": "out", "type": "Output"}],
	  "edges": [{"source": "in", "target": "out"}],
	  "input_shape": [784]
	}`
	doc, err := newDecoder(t).Decode(context.Background(), []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Input", doc.Nodes[0].Type)
	assert.Equal(t, []any{float64(784)}, doc.Nodes[0].Params["shape"])
	assert.Empty(t, doc.Nodes[1].Params)
	assert.Equal(t, []int{784}, doc.InputShape)
	assert.Nil(t, doc.Variables)
}

func TestDecode_NumericIDs(t *testing.T) {
	raw := `{"nodes": [{"id": 1, "data": {"type": "Input"}}, {"id": 2, "data": {"type": "Output"}}],
	         "edges": [{"source": 1, "target": 2}]}`
	doc, err := newDecoder(t).Decode(context.Background(), []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "1", doc.Nodes[0].ID)
	assert.Equal(t, schema.GraphEdge{Source: "1", Target: "2"}, doc.Edges[0])
}

func TestDecode_MissingCollections(t *testing.T) {
	doc, err := newDecoder(t).Decode(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Nodes)
	assert.Empty(t, doc.Edges)
}

func TestDecode_Errors(t *testing.T) {
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	d := newDecoder(t, WithValidator(v))

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"malformed", `{"nodes": [`, "malformed JSON"},
		{"array", `[1, 2]`, "must be a JSON object, got array"},
		{"nodes not iterable", `{"nodes": "abc"}`, "import query failed"},
		{"node without type", `{"nodes": [{"id": "a"}]}`, "does not match the graph schema"},
		{"nested params", `{"nodes": [{"id": "a", "data": {"type": "Dense", "params": {"units": {"v": 1}}}}]}`, "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(context.Background(), []byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeImport, schema.ErrorCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecode_ViolationsInDetails(t *testing.T) {
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	_, err = newDecoder(t, WithValidator(v)).Decode(context.Background(), []byte(`{"nodes": [{"id": "a"}], "input_shape": [0]}`))
	require.Error(t, err)
	gErr := err.(*schema.GraphError)
	violations, ok := gErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}

func TestDecode_CustomQuery(t *testing.T) {
	query := `{nodes: [.layers[] | {id: .name, type: .kind}], edges: [.links[] | {source: .[0], target: .[1]}]}`
	d := newDecoder(t, WithQuery(query))
	assert.Equal(t, query, d.Query())

	doc, err := d.Decode(context.Background(), []byte(`{
	  "layers": [{"name": "x", "kind": "Input"}, {"name": "y", "kind": "Output"}],
	  "links": [["x", "y"]]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Output", doc.Nodes[1].Type)
	assert.Equal(t, schema.GraphEdge{Source: "x", Target: "y"}, doc.Edges[0])

	_, err = d.Decode(context.Background(), []byte(`{"layers": [], "links": []}`))
	assert.NoError(t, err)
}

func TestDecode_QueryMustYieldObject(t *testing.T) {
	d := newDecoder(t, WithQuery(`.nodes`))
	_, err := d.Decode(context.Background(), []byte(`{"nodes": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must produce one object, got array")
}

func TestNewDecoder_InvalidQuery(t *testing.T) {
	_, err := NewDecoder(WithQuery(`{nodes: [`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeImport, schema.ErrorCode(err))

	d, err := NewDecoder(WithQuery(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, d.Query())
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDecoder(t, WithQuery(`{nodes: [range(100000000) | {id: tostring, type: "Dense"}]}`))
	_, err := d.Decode(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCancelled, schema.ErrorCode(err))
}
