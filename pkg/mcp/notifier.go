package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/netgraph/internal/streaming"
	"github.com/rendis/netgraph/pkg/schema"
)

// ClientNotifier pushes analysis updates to the client watching a graph session.
type ClientNotifier interface {
	Notify(ctx context.Context, graphSessionID string, payload map[string]any) error
}

// clientSender is the part of *server.MCPServer the notifier uses.
type clientSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// MCPNotifier implements ClientNotifier using MCP server notifications.
type MCPNotifier struct {
	sender   clientSender
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewMCPNotifier creates a notifier that pushes via the MCP server.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	return newNotifier(mcpServer, sessions, logger)
}

func newNotifier(sender clientSender, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPNotifier{sender: sender, sessions: sessions, logger: logger}
}

// Notify sends a notifications/message to the client watching the graph session.
// Best-effort: returns nil if nobody is watching.
func (n *MCPNotifier) Notify(_ context.Context, graphSessionID string, payload map[string]any) error {
	clientID, ok := n.sessions.ClientFor(graphSessionID)
	if !ok {
		return nil
	}
	err := n.sender.SendNotificationToSpecificClient(clientID, "notifications/message", map[string]any{
		"level":  "info",
		"logger": "netgraph",
		"data":   payload,
	})
	if errors.Is(err, server.ErrSessionNotFound) {
		// Client went away between lookup and send.
		n.sessions.Remove(clientID)
		return nil
	}
	return err
}

// Forward relays analysis events from hub to watching clients until ctx is
// cancelled. Closed sessions stop being watched.
func (n *MCPNotifier) Forward(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{
		schema.EventAnalysisCompleted,
		schema.EventAnalysisFailed,
		schema.EventSessionClosed,
	}})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if event.EventType == schema.EventSessionClosed {
				n.sessions.Forget(event.SessionID)
				continue
			}
			if err := n.Notify(ctx, event.SessionID, eventSummary(event)); err != nil {
				n.logger.Debug("mcp notification failed", "session_id", event.SessionID, "error", err)
			}
		}
	}
}

// eventSummary condenses an event for a notification; the full report is
// fetched with netgraph.session.
func eventSummary(event streaming.StreamEvent) map[string]any {
	out := map[string]any{
		"event":      event.EventType,
		"session_id": event.SessionID,
	}
	if event.RunID != "" {
		out["run_id"] = event.RunID
	}
	switch p := event.Payload.(type) {
	case *schema.AnalysisReport:
		out["summary"] = reportSummary(p)
	case map[string]any:
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}
