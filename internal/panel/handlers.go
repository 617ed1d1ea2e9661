package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rendis/netgraph/internal/diagram"
	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/layers"
	"github.com/rendis/netgraph/internal/validation"
	"github.com/rendis/netgraph/pkg/schema"
)

// --- Response types ---

type validateResponse struct {
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationIssue `json:"errors"`
	Warnings []schema.ValidationIssue `json:"warnings"`
}

type shapesResponse struct {
	RunID   string                       `json:"run_id"`
	DAG     *schema.DAGResult            `json:"dag"`
	Shapes  *schema.ShapeReport          `json:"shapes"`
	Overlay map[string]schema.NodeStatus `json:"overlay"`
}

type codeResponse struct {
	RunID    string           `json:"run_id"`
	Style    schema.CodeStyle `json:"style"`
	Code     string           `json:"code"`
	Warnings []string         `json:"warnings,omitempty"`
	// ShapeErrors counts nodes whose shape could not be computed; the code
	// is still emitted so the editor can show it next to the overlay.
	ShapeErrors int `json:"shape_errors"`
}

type layerInfo struct {
	layers.Descriptor
	ParamSchema json.RawMessage `json:"param_schema,omitempty"`
}

// --- Handlers ---

func (s *PanelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleValidate runs the document validator without compiling.
func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	result := s.deps.Validator.Validate(doc)
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:    result.Valid(),
		Errors:   nonNil(result.Errors),
		Warnings: nonNil(result.Warnings),
	})
}

// handleCompile returns the compiled DAG. An invalid graph is a normal
// 200 response with is_valid false.
func (s *PanelServer) handleCompile(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, engine.Compile(doc.Nodes, doc.Edges))
}

// handleShapes runs the pipeline and returns shapes and the overlay.
func (s *PanelServer) handleShapes(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Pipeline.Run(r.Context(), doc, schema.StyleAuto)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shapesResponse{
		RunID:   report.RunID,
		DAG:     report.DAG,
		Shapes:  report.Shapes,
		Overlay: report.Overlay,
	})
}

// handleCode generates Keras source in the requested style.
func (s *PanelServer) handleCode(w http.ResponseWriter, r *http.Request) {
	style, err := queryStyle(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Pipeline.Run(r.Context(), doc, style)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	if !report.DAG.IsValid {
		writeInvalidGraph(w, report.DAG)
		return
	}
	if report.CodeError != "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:   report.CodeError,
			Code:    report.CodeErrorCode,
			Details: map[string]any{"style": style},
		})
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{
		RunID:       report.RunID,
		Style:       report.Style,
		Code:        report.Code,
		Warnings:    report.CodeWarnings,
		ShapeErrors: len(report.Shapes.Errors),
	})
}

// handleDiagram renders the analysed graph as mermaid, ascii, png or svg.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "mermaid"
	}
	switch format {
	case "mermaid", "ascii", "image", "png", "svg":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (want mermaid, ascii, image or svg)", format))
		return
	}

	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Pipeline.Run(r.Context(), doc, schema.StyleAuto)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	if !report.DAG.IsValid {
		writeInvalidGraph(w, report.DAG)
		return
	}

	model, err := diagram.Build(report.DAG, report,
		diagram.WithTitle(documentTitle(doc)),
		diagram.WithRegistry(s.deps.Pipeline.Registry()),
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch format {
	case "mermaid":
		writeText(w, "text/plain; charset=utf-8", diagram.RenderMermaid(model))
	case "ascii":
		writeText(w, "text/plain; charset=utf-8", diagram.RenderASCIIAuto(model, s.deps.DiagramBinDir))
	case "svg":
		s.writeImage(w, r, model, diagram.FormatSVG, "image/svg+xml")
	default:
		s.writeImage(w, r, model, diagram.FormatPNG, "image/png")
	}
}

func (s *PanelServer) writeImage(w http.ResponseWriter, r *http.Request, model *diagram.DiagramModel, format diagram.Format, contentType string) {
	data, err := diagram.RenderGraphviz(r.Context(), model, format)
	if err != nil {
		s.deps.Logger.Error("diagram render failed", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleLayers lists the registry with each kind's param schema.
func (s *PanelServer) handleLayers(w http.ResponseWriter, r *http.Request) {
	descs := s.deps.Pipeline.Registry().Describe()
	out := make([]layerInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, layerInfo{Descriptor: d, ParamSchema: validation.ParamSchema(d.Type)})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeInvalidGraph(w http.ResponseWriter, dag *schema.DAGResult) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{
		Error:   "graph is not a valid network: " + strings.Join(dag.Errors, "; "),
		Code:    schema.ErrCodeValidation,
		Details: map[string]any{"errors": dag.Errors},
	})
}

func writeText(w http.ResponseWriter, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}

func nonNil(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}
