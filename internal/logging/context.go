// Package logging threads analysis correlation data through a context and
// onto slog records.
package logging

import (
	"context"
	"log/slog"

	"github.com/rendis/netgraph/pkg/schema"
)

// Attribute keys written for a Trace.
const (
	KeySession  = "session_id"
	KeyRevision = "revision"
	KeyRun      = "run_id"
	KeyNode     = "node_id"
	KeyVar      = "var_name"
)

// Trace locates a log record: the editing session and graph revision being
// analysed, the analysis run, and the layer under inspection.
// Zero fields are omitted from records.
type Trace struct {
	SessionID string
	Revision  int
	RunID     string
	NodeID    string
	VarName   string
}

type traceKey struct{}

// FromContext returns the trace carried by ctx, or the zero Trace.
func FromContext(ctx context.Context) Trace {
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}

func update(ctx context.Context, fn func(*Trace)) context.Context {
	t := FromContext(ctx)
	fn(&t)
	return context.WithValue(ctx, traceKey{}, t)
}

// WithSession scopes ctx to an editing session. A revision of 0 leaves any
// revision already on the context in place.
func WithSession(ctx context.Context, id string, revision int) context.Context {
	return update(ctx, func(t *Trace) {
		t.SessionID = id
		if revision > 0 {
			t.Revision = revision
		}
	})
}

// WithRun scopes ctx to one analysis run.
func WithRun(ctx context.Context, runID string) context.Context {
	return update(ctx, func(t *Trace) { t.RunID = runID })
}

// WithNode scopes ctx to a compiled layer.
func WithNode(ctx context.Context, node schema.LayerObject) context.Context {
	return update(ctx, func(t *Trace) {
		t.NodeID = node.ID
		t.VarName = node.VarName
	})
}

// Attrs returns the set fields in a fixed order.
func (t Trace) Attrs() []slog.Attr {
	var attrs []slog.Attr
	if t.SessionID != "" {
		attrs = append(attrs, slog.String(KeySession, t.SessionID))
	}
	if t.Revision > 0 {
		attrs = append(attrs, slog.Int(KeyRevision, t.Revision))
	}
	if t.RunID != "" {
		attrs = append(attrs, slog.String(KeyRun, t.RunID))
	}
	if t.NodeID != "" {
		attrs = append(attrs, slog.String(KeyNode, t.NodeID))
	}
	if t.VarName != "" {
		attrs = append(attrs, slog.String(KeyVar, t.VarName))
	}
	return attrs
}

// LogWith binds the trace on ctx to logger.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := FromContext(ctx).Attrs()
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// TraceHandler adds the context's trace to every record. Keys already bound
// with Logger.With (for example through LogWith) are not written twice.
type TraceHandler struct {
	inner slog.Handler
	bound map[string]bool
}

// NewTraceHandler wraps inner.
func NewTraceHandler(inner slog.Handler) *TraceHandler {
	return &TraceHandler{inner: inner}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range FromContext(ctx).Attrs() {
		if !h.bound[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.bound
	cloned := false
	for _, a := range attrs {
		switch a.Key {
		case KeySession, KeyRevision, KeyRun, KeyNode, KeyVar:
			if !cloned {
				bound = cloneKeys(h.bound)
				cloned = true
			}
			bound[a.Key] = true
		}
	}
	return &TraceHandler{inner: h.inner.WithAttrs(attrs), bound: bound}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{inner: h.inner.WithGroup(name), bound: h.bound}
}

func cloneKeys(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
