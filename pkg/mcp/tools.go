package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/netgraph/internal/diagram"
	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/validation"
	"github.com/rendis/netgraph/pkg/schema"
)

// handleCompile compiles the graph and returns the ordered layers.
func (s *NetgraphServer) handleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return marshalResult(engine.Compile(doc.Nodes, doc.Edges))
}

// handleInferShapes runs the full analysis and returns the shape report.
func (s *NetgraphServer) handleInferShapes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	report, err := s.pipeline.Run(ctx, doc, schema.StyleAuto)
	if err != nil {
		return toolError("shape inference failed", err), nil
	}
	if !report.DAG.IsValid {
		return invalidGraph(report.DAG), nil
	}
	return marshalResult(map[string]any{
		"run_id":   report.RunID,
		"shapes":   report.Shapes.NodeShapes,
		"errors":   report.Shapes.Errors,
		"warnings": report.Shapes.Warnings,
		"summary":  reportSummary(report),
	})
}

// handleGenerateCode emits Keras source in the requested style.
func (s *NetgraphServer) handleGenerateCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	style, err := schema.ParseCodeStyle(req.GetString("style", ""))
	if err != nil {
		return toolError("invalid style", err), nil
	}
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	report, err := s.pipeline.Run(ctx, doc, style)
	if err != nil {
		return toolError("code generation failed", err), nil
	}
	if !report.DAG.IsValid {
		return invalidGraph(report.DAG), nil
	}
	if report.CodeError != "" {
		return mcp.NewToolResultError(fmt.Sprintf("code generation failed [%s]: %s", report.CodeErrorCode, report.CodeError)), nil
	}
	return marshalResult(map[string]any{
		"style":        report.Style,
		"code":         report.Code,
		"warnings":     report.CodeWarnings,
		"shape_errors": report.Shapes.Errors,
	})
}

// handleDiagram renders the analysed network.
func (s *NetgraphServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	report, err := s.pipeline.Run(ctx, doc, schema.StyleAuto)
	if err != nil {
		return toolError("analysis failed", err), nil
	}
	if !report.DAG.IsValid {
		return invalidGraph(report.DAG), nil
	}

	var opts []diagram.BuildOption
	opts = append(opts, diagram.WithRegistry(s.pipeline.Registry()))
	if name, ok := doc.Metadata["name"].(string); ok {
		opts = append(opts, diagram.WithTitle(name))
	}
	model, err := diagram.Build(report.DAG, report, opts...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCIIAuto(model, s.diagramBinDir)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, err := diagram.RenderImage(ctx, model)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultImage("network diagram", base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// handleLayers lists the layer registry.
func (s *NetgraphServer) handleLayers(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descs := s.pipeline.Registry().Describe()
	out := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		entry := map[string]any{
			"type":                d.Type,
			"merge_capable":       d.MergeCapable,
			"supports_multiplier": d.SupportsMultiplier,
			"source_role":         d.SourceRole,
		}
		if len(d.Defaults) > 0 {
			entry["defaults"] = d.Defaults
		}
		if ps := validation.ParamSchema(d.Type); ps != nil {
			entry["param_schema"] = json.RawMessage(ps)
		}
		out = append(out, entry)
	}
	return marshalResult(map[string]any{"layers": out})
}

// --- Session tools ---

// handleOpenSession opens an editing session and watches it for the caller.
func (s *NetgraphServer) handleOpenSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	style, err := schema.ParseCodeStyle(req.GetString("style", ""))
	if err != nil {
		return toolError("invalid style", err), nil
	}
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	snap, err := s.sessions.Open(ctx, doc, style)
	if err != nil {
		return toolError("open session failed", err), nil
	}
	s.captureSession(ctx, snap.ID)

	return marshalResult(map[string]any{
		"session_id": snap.ID,
		"revision":   snap.Revision,
		"style":      snap.Style,
	})
}

// handleUpdateSession replaces a session's graph.
func (s *NetgraphServer) handleUpdateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	var style schema.CodeStyle
	if raw := req.GetString("style", ""); raw != "" {
		if style, err = schema.ParseCodeStyle(raw); err != nil {
			return toolError("invalid style", err), nil
		}
	}
	doc, errResult := s.readGraph(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	snap, err := s.sessions.Update(ctx, id, doc, style)
	if err != nil {
		return toolError("update session failed", err), nil
	}
	s.captureSession(ctx, id)

	return marshalResult(map[string]any{
		"session_id": snap.ID,
		"revision":   snap.Revision,
		"style":      snap.Style,
	})
}

// handleSession returns a session's latest report.
func (s *NetgraphServer) handleSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if req.GetBool("analyze", false) {
		if _, err := s.sessions.Analyze(ctx, id); err != nil {
			return toolError("analysis failed", err), nil
		}
	}
	snap, err := s.sessions.Get(id)
	if err != nil {
		return toolError("session lookup failed", err), nil
	}

	out := map[string]any{
		"session_id":      snap.ID,
		"revision":        snap.Revision,
		"report_revision": snap.ReportRevision,
		"style":           snap.Style,
		"pending":         snap.Pending,
		"stale":           snap.Stale(),
	}
	if snap.LastError != "" {
		out["last_error"] = snap.LastError
	}
	if snap.Report != nil {
		out["summary"] = reportSummary(snap.Report)
		out["report"] = snap.Report
	}
	return marshalResult(out)
}

// --- Internal helpers ---

// readGraph decodes the graph argument through the import mapping.
// A non-nil result is the tool error to return.
func (s *NetgraphServer) readGraph(ctx context.Context, req mcp.CallToolRequest) (*schema.GraphDocument, *mcp.CallToolResult) {
	raw := mcp.ParseStringMap(req, "graph", nil)
	if raw == nil {
		return nil, mcp.NewToolResultError("graph is required")
	}
	doc, err := s.decoder.DecodeValue(ctx, raw)
	if err != nil {
		return nil, toolError("invalid graph", err)
	}
	return doc, nil
}

// captureSession marks the calling client as the watcher of a graph session.
func (s *NetgraphServer) captureSession(ctx context.Context, graphSessionID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.watchers.Register(graphSessionID, session.SessionID())
	}
}

// reportSummary condenses a report for agents.
func reportSummary(r *schema.AnalysisReport) map[string]any {
	out := map[string]any{
		"valid":      r.DAG != nil && r.DAG.IsValid,
		"has_errors": r.HasErrors(),
	}
	if r.DAG != nil {
		out["layers"] = len(r.DAG.OrderedNodes)
		if len(r.DAG.Errors) > 0 {
			out["graph_errors"] = r.DAG.Errors
		}
	}
	if r.Shapes != nil {
		out["shape_errors"] = len(r.Shapes.Errors)
		out["shape_warnings"] = len(r.Shapes.Warnings)
	}
	if r.Style != "" {
		out["style"] = r.Style
	}
	if r.CodeError != "" {
		out["code_error"] = r.CodeError
	}
	return out
}

func invalidGraph(dag *schema.DAGResult) *mcp.CallToolResult {
	return mcp.NewToolResultError("graph is not a valid network: " + strings.Join(dag.Errors, "; "))
}

// toolError formats err for a tool result, keeping GraphError details.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var gErr *schema.GraphError
	if errors.As(err, &gErr) {
		msg := fmt.Sprintf("%s [%s]: %s", prefix, gErr.Code, gErr.Message)
		if v, ok := gErr.Details["violations"].([]string); ok && len(v) > 0 {
			msg += "\n" + strings.Join(v, "\n")
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
