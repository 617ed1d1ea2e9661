package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/netgraph/pkg/schema"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeGraphError maps a GraphError code onto an HTTP status.
func writeGraphError(w http.ResponseWriter, err error) {
	var gErr *schema.GraphError
	if !errors.As(err, &gErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(gErr.Code), errorBody{Error: gErr.Message, Code: gErr.Code, Details: gErr.Details})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeImport, schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeNotLinear, schema.ErrCodeCycleDetected, schema.ErrCodeShape, schema.ErrCodeUnknownLayer, schema.ErrCodeExpression:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readDocument decodes the request body through the import mapping.
func (s *PanelServer) readDocument(w http.ResponseWriter, r *http.Request) (*schema.GraphDocument, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("read body: %v", err))
		return nil, false
	}
	doc, err := s.deps.Decoder.Decode(r.Context(), body)
	if err != nil {
		writeGraphError(w, err)
		return nil, false
	}
	return doc, true
}

// queryStyle parses ?style=, defaulting to auto.
func queryStyle(r *http.Request) (schema.CodeStyle, error) {
	return schema.ParseCodeStyle(r.URL.Query().Get("style"))
}

// documentTitle returns the document's metadata name, if any.
func documentTitle(doc *schema.GraphDocument) string {
	if doc.Metadata != nil {
		if name, ok := doc.Metadata["name"].(string); ok {
			return name
		}
	}
	return ""
}
