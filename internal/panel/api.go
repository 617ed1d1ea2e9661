package panel

import (
	"net/http"

	"github.com/rendis/netgraph/internal/logging"
	"github.com/rendis/netgraph/internal/recompute"
	"github.com/rendis/netgraph/pkg/schema"
)

// handleListSessions lists open editing sessions without their graphs.
func (s *PanelServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps := s.deps.Sessions.List()
	out := make([]recompute.Snapshot, len(snaps))
	for i, snap := range snaps {
		snap.Graph = nil
		snap.Report = nil
		out[i] = snap
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOpenSession opens a session for the posted document. The first
// analysis is debounced like any edit; subscribe to the session's SSE
// stream or poll GET /api/sessions/{id} for the report.
func (s *PanelServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	style, err := queryStyle(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	snap, err := s.deps.Sessions.Open(r.Context(), doc, style)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Location", "/api/sessions/"+snap.ID)
	writeJSON(w, http.StatusCreated, snap)
}

// handleGetSession returns the session's latest graph and report.
func (s *PanelServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpdateSession replaces the session's graph. ?style= is optional
// and keeps the session's style when absent.
func (s *PanelServer) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Sessions.Get(id); err != nil {
		writeGraphError(w, err)
		return
	}

	var style schema.CodeStyle
	if r.URL.Query().Get("style") != "" {
		parsed, err := queryStyle(r)
		if err != nil {
			writeGraphError(w, err)
			return
		}
		style = parsed
	}

	doc, ok := s.readDocument(w, r)
	if !ok {
		return
	}
	ctx := logging.WithSession(r.Context(), id, 0)
	snap, err := s.deps.Sessions.Update(ctx, id, doc, style)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleAnalyzeSession analyses the session's graph immediately.
func (s *PanelServer) handleAnalyzeSession(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Sessions.Analyze(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCloseSession closes a session.
func (s *PanelServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Sessions.Close(r.Context(), id); err != nil {
		writeGraphError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
