package panel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rendis/netgraph/internal/streaming"
)

// sseKeepAlive is how often a comment line is sent on an idle stream.
const sseKeepAlive = 15 * time.Second

// handleSSEGlobal streams all events to the client via Server-Sent Events.
func (s *PanelServer) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{EventTypes: r.URL.Query()["type"]})
}

// handleSSESession streams events for one session.
func (s *PanelServer) handleSSESession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.deps.Sessions != nil {
		if _, err := s.deps.Sessions.Get(id); err != nil {
			writeGraphError(w, err)
			return
		}
	}
	s.serveSSE(w, r, streaming.EventFilter{SessionID: id, EventTypes: r.URL.Query()["type"]})
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.deps.Logger.Debug("SSE event dropped", "event", event.EventType, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
