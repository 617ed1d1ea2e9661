package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPNG(t *testing.T, png []byte) {
	t.Helper()
	require.Greater(t, len(png), 8, "PNG should be larger than header")
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderImage_Residual(t *testing.T) {
	png, err := RenderImage(context.Background(), build(t, residualGraph()))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImage_WithErrors(t *testing.T) {
	png, err := RenderImage(context.Background(), build(t, brokenGraph()))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderGraphviz_SVG(t *testing.T) {
	svg, err := RenderGraphviz(context.Background(), build(t, residualGraph()), FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "dense (Dense) [32]")
}

func TestRenderGraphviz_UnknownFormat(t *testing.T) {
	_, err := RenderGraphviz(context.Background(), &DiagramModel{}, Format("gif"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")
}
