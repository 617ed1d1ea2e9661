package lint

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/pkg/schema"
)

func chainDAG(nodes ...schema.LayerObject) *schema.DAGResult {
	dag := &schema.DAGResult{IsValid: true, EdgeMap: map[string][]string{}}
	for i, n := range nodes {
		dag.OrderedNodes = append(dag.OrderedNodes, n)
		dag.NodeIDs = append(dag.NodeIDs, n.ID)
		dag.EdgeMap[n.ID] = []string{}
		if i > 0 {
			prev := nodes[i-1].ID
			dag.EdgeMap[prev] = append(dag.EdgeMap[prev], n.ID)
		}
	}
	return dag
}

func layer(id, typ, varName string, params map[string]any) schema.LayerObject {
	return schema.LayerObject{ID: id, Type: typ, VarName: varName, Params: params}
}

func newLinter(t *testing.T, rules []Rule) *Linter {
	t.Helper()
	l, err := New(nil, rules, nil)
	require.NoError(t, err)
	return l
}

func TestLint_WideDense(t *testing.T) {
	dag := chainDAG(
		layer("in", "Input", "input", nil),
		layer("d", "Dense", "dense", map[string]any{"units": 8192}),
	)
	shapes := &schema.ShapeReport{NodeShapes: map[string]schema.Shape{
		"in": {784},
		"d":  {8192},
	}}

	warnings := newLinter(t, DefaultRules).Lint(context.Background(), dag, shapes)
	require.Len(t, warnings, 1)
	assert.Equal(t, "d", warnings[0].NodeID)
	assert.Equal(t, "wide-dense", warnings[0].Rule)
	assert.Equal(t, schema.WarningFromLint, warnings[0].Source)
	assert.Equal(t, "dense outputs [8192]; consider a narrower layer", warnings[0].Message)
}

func TestLint_HighDropout(t *testing.T) {
	dag := chainDAG(
		layer("in", "Input", "input", nil),
		layer("drop", "Dropout", "dropout", map[string]any{"rate": 0.8}),
		layer("drop2", "Dropout", "dropout_1", map[string]any{"rate": 0.2}),
	)
	shapes := &schema.ShapeReport{NodeShapes: map[string]schema.Shape{
		"in": {64}, "drop": {64}, "drop2": {64},
	}}

	warnings := newLinter(t, DefaultRules).Lint(context.Background(), dag, shapes)
	require.Len(t, warnings, 1)
	assert.Equal(t, "drop", warnings[0].NodeID)
	assert.Equal(t, "high-dropout", warnings[0].Rule)
}

func TestLint_SingleChannelMerge(t *testing.T) {
	dag := &schema.DAGResult{
		IsValid: true,
		OrderedNodes: []schema.LayerObject{
			layer("a", "Input", "input", nil),
			layer("b", "Input", "input_1", nil),
			layer("m", "Add", "add", nil),
		},
		EdgeMap: map[string][]string{"a": {"m"}, "b": {"m"}, "m": {}},
	}
	shapes := &schema.ShapeReport{NodeShapes: map[string]schema.Shape{
		"a": {8, 1}, "b": {8, 1}, "m": {8, 1},
	}}

	warnings := newLinter(t, DefaultRules).Lint(context.Background(), dag, shapes)
	require.Len(t, warnings, 1)
	assert.Equal(t, "m", warnings[0].NodeID)
	assert.Equal(t, "add merges inputs whose last axis has size 1", warnings[0].Message)
}

func TestLint_SkipsUnshapedNodes(t *testing.T) {
	dag := chainDAG(
		layer("in", "Input", "input", nil),
		layer("d", "Dense", "dense", nil),
	)
	shapes := &schema.ShapeReport{NodeShapes: map[string]schema.Shape{"in": {784}}}

	rules := []Rule{{Name: "always", When: "true", Message: "{type} {var} {shape}"}}
	warnings := newLinter(t, rules).Lint(context.Background(), dag, shapes)
	require.Len(t, warnings, 1)
	assert.Equal(t, "in", warnings[0].NodeID)
	assert.Equal(t, "Input input [784]", warnings[0].Message)
}

func TestLint_InvalidInputs(t *testing.T) {
	l := newLinter(t, DefaultRules)
	assert.Nil(t, l.Lint(context.Background(), nil, nil))
	assert.Nil(t, l.Lint(context.Background(), &schema.DAGResult{IsValid: false}, &schema.ShapeReport{}))
}

func TestLint_EvalErrorIsLoggedAndSkipped(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rules := []Rule{{Name: "out-of-range", When: "shape[5] > 1", Message: "never"}}
	l, err := New(nil, rules, logger)
	require.NoError(t, err)

	dag := chainDAG(layer("in", "Input", "input", nil))
	shapes := &schema.ShapeReport{NodeShapes: map[string]schema.Shape{"in": {784}}}

	assert.Empty(t, l.Lint(context.Background(), dag, shapes))
	assert.Contains(t, buf.String(), "lint rule skipped")
	assert.Contains(t, buf.String(), "rule=out-of-range")
}

func TestNew_RejectsBadRules(t *testing.T) {
	_, err := New(nil, []Rule{{Name: "", When: "true"}}, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	_, err = New(nil, []Rule{{Name: "broken", When: "shape[0] >"}}, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	assert.Contains(t, err.Error(), "lint rule broken")
}

func TestRules_ReturnsCopy(t *testing.T) {
	l := newLinter(t, DefaultRules)
	rules := l.Rules()
	rules[0].Name = "changed"
	assert.Equal(t, "wide-dense", l.Rules()[0].Name)
}
