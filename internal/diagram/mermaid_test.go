package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMermaid_Residual(t *testing.T) {
	output := RenderMermaid(build(t, residualGraph(), WithTitle("Residual block")))

	assert.Contains(t, output, "graph TD\n")
	assert.Contains(t, output, "%% Residual block")

	// Shapes by kind.
	assert.Contains(t, output, `in(["input (Input) [32]"])`)
	assert.Contains(t, output, `d1["dense (Dense) [32]"]`)
	assert.Contains(t, output, `sum{{"add (Add) [32]"}}`)
	assert.Contains(t, output, `out[["output (Output) [1]"]]`)

	assert.Contains(t, output, "in -->|32| sum")
	assert.Contains(t, output, "classDef ok")
	assert.Contains(t, output, "class out ok")
}

func TestRenderMermaid_ErrorClasses(t *testing.T) {
	output := RenderMermaid(build(t, brokenGraph()))

	assert.Contains(t, output, "class in ok")
	assert.Contains(t, output, "class d error")
	assert.Contains(t, output, "class out error")
	assert.Contains(t, output, "d --> out", "unknown shape leaves the edge unlabelled")
}

func TestMermaidSafeIDAndLabel(t *testing.T) {
	assert.Equal(t, "node_1_a_b", mermaidSafeID("node-1.a b"))
	assert.Equal(t, "say #quot;hi#quot; there", mermaidEscapeLabel("say \"hi\"\nthere"))
}
