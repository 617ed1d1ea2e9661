package schema

// Event type constants published on the analysis stream.
const (
	EventSessionOpened     = "session_opened"
	EventSessionClosed     = "session_closed"
	EventGraphUpdated      = "graph_updated"
	EventAnalysisStarted   = "analysis_started"
	EventAnalysisCompleted = "analysis_completed"
	EventAnalysisFailed    = "analysis_failed"
)
