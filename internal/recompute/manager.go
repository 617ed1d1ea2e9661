package recompute

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/netgraph/internal/engine"
	"github.com/rendis/netgraph/internal/logging"
	"github.com/rendis/netgraph/internal/streaming"
	"github.com/rendis/netgraph/pkg/schema"
)

// DefaultDebounce is the quiet period used when ManagerConfig leaves it unset.
const DefaultDebounce = 300 * time.Millisecond

// ErrManagerClosed is returned by Open after Shutdown.
var ErrManagerClosed = errors.New("session manager is shut down")

// ManagerDeps holds the collaborators of a Manager. A nil Pipeline gets the
// built-in defaults, a nil Hub disables event publishing, a nil Pool runs analyses on the
// debouncer's timer goroutine.
type ManagerDeps struct {
	Pipeline *engine.Pipeline
	Hub      streaming.EventHub
	Pool     *Pool
	Logger   *slog.Logger
}

// ManagerConfig holds tunable session settings.
type ManagerConfig struct {
	Debounce time.Duration
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID       string                 `json:"id"`
	Revision int                    `json:"revision"`
	Style    schema.CodeStyle       `json:"style"`
	Graph    *schema.GraphDocument  `json:"graph"`
	Report   *schema.AnalysisReport `json:"report,omitempty"`
	// ReportRevision is the graph revision Report was computed from.
	ReportRevision int       `json:"report_revision"`
	Pending        bool      `json:"pending"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Stale reports whether the graph changed after the last published report.
func (s Snapshot) Stale() bool {
	return s.Report == nil || s.ReportRevision != s.Revision
}

type session struct {
	mu             sync.Mutex
	id             string
	revision       int
	style          schema.CodeStyle
	graph          *schema.GraphDocument
	report         *schema.AnalysisReport
	reportRevision int
	lastError      string
	createdAt      time.Time
	updatedAt      time.Time

	debouncer *Debouncer
}

// Manager owns editing sessions. Every graph update schedules a debounced
// analysis; a newer update cancels the older run, and only the latest
// run's report is stored and published.
type Manager struct {
	pipeline *engine.Pipeline
	hub      streaming.EventHub
	pool     *Pool
	logger   *slog.Logger
	cfg      ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps, cfg ManagerConfig) *Manager {
	if deps.Pipeline == nil {
		deps.Pipeline = engine.NewPipeline(engine.PipelineDeps{Logger: deps.Logger}, engine.PipelineConfig{})
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	m := &Manager{
		pipeline: deps.Pipeline,
		hub:      deps.Hub,
		pool:     deps.Pool,
		logger:   deps.Logger,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
	if m.pool != nil && m.pool.onPanic == nil {
		m.pool.onPanic = func(v any) {
			m.logger.Error("analysis panicked", "panic", v)
		}
	}
	return m
}

// Open creates a session for doc and schedules its first analysis.
func (m *Manager) Open(ctx context.Context, doc *schema.GraphDocument, style schema.CodeStyle) (Snapshot, error) {
	if doc == nil {
		doc = &schema.GraphDocument{}
	}
	if style == "" {
		style = schema.StyleAuto
	}
	now := time.Now().UTC()
	s := &session{
		id:        uuid.NewString(),
		revision:  1,
		style:     style,
		graph:     doc,
		createdAt: now,
		updatedAt: now,
	}
	s.debouncer = NewDebouncer(m.cfg.Debounce,
		WithRunner(m.runner()),
		WithErrorHandler(func(err error) { m.runFailed(s, err) }),
	)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Snapshot{}, ErrManagerClosed
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	ctx = logging.WithSession(ctx, s.id, 1)
	logging.LogWith(ctx, m.logger).Info("session opened", "nodes", len(doc.Nodes), "style", style)
	m.publish(ctx, s.id, "", schema.EventSessionOpened, map[string]any{"revision": 1})

	m.schedule(ctx, s)
	return s.snapshot(), nil
}

// Update replaces a session's graph and schedules a new analysis. An empty
// style keeps the current one.
func (m *Manager) Update(ctx context.Context, id string, doc *schema.GraphDocument, style schema.CodeStyle) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	if doc == nil {
		doc = &schema.GraphDocument{}
	}

	s.mu.Lock()
	s.revision++
	s.graph = doc
	if style != "" {
		s.style = style
	}
	s.updatedAt = time.Now().UTC()
	rev := s.revision
	s.mu.Unlock()

	ctx = logging.WithSession(ctx, id, rev)
	m.publish(ctx, id, "", schema.EventGraphUpdated, map[string]any{"revision": rev, "nodes": len(doc.Nodes)})
	m.schedule(ctx, s)
	return s.snapshot(), nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (Snapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// List returns snapshots of every session, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close cancels any pending analysis and forgets the session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return notFound(id)
	}

	s.debouncer.Stop()
	ctx = logging.WithSession(ctx, id, 0)
	logging.LogWith(ctx, m.logger).Info("session closed")
	m.publish(ctx, id, "", schema.EventSessionClosed, nil)
	return nil
}

// Analyze runs the pipeline on the session's current graph right away,
// bypassing the debouncer, and stores the result if no newer revision
// arrived meanwhile.
func (m *Manager) Analyze(ctx context.Context, id string) (*schema.AnalysisReport, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, style, rev := s.graph, s.style, s.revision
	s.mu.Unlock()

	ctx = logging.WithSession(ctx, id, rev)
	report, err := m.pipeline.Run(ctx, doc, style)
	if err != nil {
		return nil, err
	}
	m.commit(ctx, s, rev, report)
	return report, nil
}

// Shutdown stops every session and waits for running analyses.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.debouncer.Stop()
	}
	for _, s := range sessions {
		s.debouncer.Wait()
	}
	if m.pool != nil {
		m.pool.Wait()
	}
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return s, nil
}

func (m *Manager) runner() Runner {
	if m.pool == nil {
		return nil
	}
	return m.pool.Submit
}

// schedule queues a debounced analysis of the session's current revision.
func (m *Manager) schedule(ctx context.Context, s *session) {
	s.debouncer.Schedule(ctx, func(ctx context.Context) (func(), error) {
		s.mu.Lock()
		doc, style, rev := s.graph, s.style, s.revision
		s.mu.Unlock()

		ctx = logging.WithSession(ctx, s.id, rev)
		m.publish(ctx, s.id, "", schema.EventAnalysisStarted, map[string]any{"revision": rev})
		report, err := m.pipeline.Run(ctx, doc, style)
		if err != nil {
			return nil, err
		}
		return func() { m.commit(ctx, s, rev, report) }, nil
	})
}

// commit stores report unless a newer revision already has one, then
// publishes it.
func (m *Manager) commit(ctx context.Context, s *session, rev int, report *schema.AnalysisReport) {
	s.mu.Lock()
	if rev < s.reportRevision {
		s.mu.Unlock()
		return
	}
	s.report = report
	s.reportRevision = rev
	s.lastError = ""
	s.mu.Unlock()

	logging.LogWith(logging.WithRun(ctx, report.RunID), m.logger).Debug("analysis published",
		"has_errors", report.HasErrors())
	m.publish(ctx, s.id, report.RunID, schema.EventAnalysisCompleted, report)
}

// runFailed records a failed run. Cancellations are the normal fate of a
// superseded run and are not reported.
func (m *Manager) runFailed(s *session, err error) {
	if errors.Is(err, context.Canceled) || schema.ErrorCode(err) == schema.ErrCodeCancelled {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()

	ctx := logging.WithSession(context.Background(), s.id, 0)
	logging.LogWith(ctx, m.logger).Warn("analysis failed", "error", err)
	m.publish(ctx, s.id, "", schema.EventAnalysisFailed, map[string]any{"error": err.Error()})
}

func (m *Manager) publish(ctx context.Context, sessionID, runID, eventType string, payload any) {
	if m.hub == nil {
		return
	}
	err := m.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
		SessionID: sessionID,
		RunID:     runID,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		m.logger.Debug("event publish failed", "event", eventType, "error", err)
	}
}

// snapshot copies the session. The debouncer is queried before taking
// s.mu because commits run under the debouncer's lock and then take s.mu.
func (s *session) snapshot() Snapshot {
	pending := s.debouncer.Pending()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:             s.id,
		Revision:       s.revision,
		Style:          s.style,
		Graph:          s.graph,
		Report:         s.report,
		ReportRevision: s.reportRevision,
		Pending:        pending,
		LastError:      s.lastError,
		CreatedAt:      s.createdAt,
		UpdatedAt:      s.updatedAt,
	}
}

func notFound(id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id).
		WithDetails(map[string]any{"session_id": id})
}
