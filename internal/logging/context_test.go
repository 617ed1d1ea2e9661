package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/netgraph/pkg/schema"
)

func newBufLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewTraceHandler(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestTrace_Layering(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Trace{}, FromContext(ctx))

	ctx = WithSession(ctx, "sess-1", 3)
	ctx = WithRun(ctx, "run-1")
	ctx = WithNode(ctx, schema.LayerObject{ID: "n7", Type: "Dense", VarName: "dense_1"})

	assert.Equal(t, Trace{SessionID: "sess-1", Revision: 3, RunID: "run-1", NodeID: "n7", VarName: "dense_1"}, FromContext(ctx))

	// a zero revision keeps the known one
	ctx = WithSession(ctx, "sess-1", 0)
	assert.Equal(t, 3, FromContext(ctx).Revision)
}

func TestTrace_ParentUnchanged(t *testing.T) {
	parent := WithSession(context.Background(), "sess-1", 1)
	child := WithRun(parent, "run-1")

	assert.Empty(t, FromContext(parent).RunID)
	assert.Equal(t, "run-1", FromContext(child).RunID)
}

func TestTrace_Attrs(t *testing.T) {
	assert.Empty(t, Trace{}.Attrs())

	attrs := Trace{SessionID: "s", RunID: "r"}.Attrs()
	keys := make([]string, len(attrs))
	for i, a := range attrs {
		keys[i] = a.Key
	}
	assert.Equal(t, []string{KeySession, KeyRun}, keys)
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithNode(WithRun(WithSession(context.Background(), "sess-abc", 2), "run-x"), schema.LayerObject{ID: "c", VarName: "conv2d"})
	LogWith(ctx, logger).Info("test message")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess-abc")
	assert.Contains(t, out, "revision=2")
	assert.Contains(t, out, "run_id=run-x")
	assert.Contains(t, out, "node_id=c")
	assert.Contains(t, out, "var_name=conv2d")
}

func TestLogWith_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Same(t, logger, LogWith(context.Background(), logger))
	logger.Info("no context")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestTraceHandler_InjectsFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufLogger(&buf)

	ctx := WithRun(WithSession(context.Background(), "sess-h", 4), "run-h")
	logger.InfoContext(ctx, "analysis finished")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess-h")
	assert.Contains(t, out, "revision=4")
	assert.Contains(t, out, "run_id=run-h")
	assert.NotContains(t, out, "node_id")
}

func TestTraceHandler_NoDuplicatesAfterLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufLogger(&buf)

	ctx := WithSession(context.Background(), "sess-d", 1)
	ctx = WithNode(ctx, schema.LayerObject{ID: "d", VarName: "dense"})
	LogWith(ctx, logger).InfoContext(ctx, "lint rule skipped")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "session_id="), out)
	assert.Equal(t, 1, strings.Count(out, "node_id="), out)
	assert.Equal(t, 1, strings.Count(out, "var_name="), out)
}

func TestTraceHandler_BoundKeysDoNotLeakToSiblings(t *testing.T) {
	var buf bytes.Buffer
	base := newBufLogger(&buf)
	_ = base.With(KeySession, "bound")

	ctx := WithSession(context.Background(), "sess-s", 0)
	base.InfoContext(ctx, "sibling")
	assert.Contains(t, buf.String(), "session_id=sess-s")
}

func TestTraceHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufLogger(&buf).WithGroup("emit")

	ctx := WithSession(context.Background(), "sess-grp", 0)
	logger.InfoContext(ctx, "grouped", "style", "functional")

	out := buf.String()
	assert.Contains(t, out, "sess-grp")
	assert.Contains(t, out, "emit.style=functional")
}
