package panel

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/internal/recompute"
	"github.com/rendis/netgraph/internal/streaming"
	"github.com/rendis/netgraph/pkg/schema"
)

const mlpJSON = `{
  "nodes": [
    {"id": "in", "data": {"type": "Input", "params": {"shape": [784]}}},
    {"id": "d", "data": {"type": "Dense", "params": {"units": 64, "activation": "relu"}}},
    {"id": "out", "data": {"type": "Output", "params": {"units": 10, "problemType": "multiclass"}}}
  ],
  "edges": [{"source": "in", "target": "d"}, {"source": "d", "target": "out"}],
  "metadata": {"name": "MNIST MLP"}
}`

const branchJSON = `{
  "nodes": [
    {"id": "a", "type": "Input", "params": {"shape": [32]}},
    {"id": "b", "type": "Input", "params": {"shape": [32]}},
    {"id": "add", "type": "Add"},
    {"id": "out", "type": "Output", "params": {"units": 1}}
  ],
  "edges": [{"source": "a", "target": "add"}, {"source": "b", "target": "add"}, {"source": "add", "target": "out"}]
}`

const cycleJSON = `{
  "nodes": [{"id": "a", "type": "Dense"}, {"id": "b", "type": "Dense"}],
  "edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]
}`

type testEnv struct {
	server   *PanelServer
	handler  http.Handler
	sessions *recompute.Manager
	hub      *streaming.MemoryHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := streaming.NewMemoryHub()
	sessions := recompute.NewManager(recompute.ManagerDeps{Hub: hub}, recompute.ManagerConfig{Debounce: 10 * time.Millisecond})
	t.Cleanup(sessions.Shutdown)

	srv, err := NewPanelServer(PanelDeps{Sessions: sessions, Hub: hub})
	require.NoError(t, err)
	return &testEnv{server: srv, handler: srv.Handler(), sessions: sessions, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// --- Health & routing ---

func TestHealth(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutes_OptionalDepsDisableRoutes(t *testing.T) {
	srv, err := NewPanelServer(PanelDeps{})
	require.NoError(t, err)
	h := srv.Handler()

	for _, target := range []string{"/api/sessions", "/sse/events"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodGet, "/api/compile", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- One-shot endpoints ---

func TestValidate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/validate", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[validateResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.NotNil(t, resp.Errors)

	rec = env.do(t, http.MethodPost, "/api/validate", `{"nodes": [{"id": "a", "type": "Input"}], "edges": [{"source": "a", "target": "ghost"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[validateResponse](t, rec)
	assert.False(t, resp.Valid)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0].Message, "ghost")
}

func TestImportErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/compile", `{"nodes": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, schema.ErrCodeImport, body.Code)
	assert.Contains(t, body.Error, "malformed JSON")

	rec = env.do(t, http.MethodPost, "/api/compile", `[1]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/compile", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	dag := decodeBody[schema.DAGResult](t, rec)
	assert.True(t, dag.IsValid)
	require.Len(t, dag.OrderedNodes, 3)
	assert.Equal(t, []string{"input", "dense", "output"},
		[]string{dag.OrderedNodes[0].VarName, dag.OrderedNodes[1].VarName, dag.OrderedNodes[2].VarName})

	rec = env.do(t, http.MethodPost, "/api/compile", cycleJSON)
	require.Equal(t, http.StatusOK, rec.Code, "an invalid graph is still a successful compile call")
	dag = decodeBody[schema.DAGResult](t, rec)
	assert.False(t, dag.IsValid)
	assert.NotEmpty(t, dag.Errors)
}

func TestShapes(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodPost, "/api/shapes", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[shapesResponse](t, rec)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, schema.Shape{64}, resp.Shapes.NodeShapes["d"])
	assert.Equal(t, schema.Shape{10}, resp.Overlay["out"].Shape)
	assert.False(t, resp.Overlay["d"].HasShapeError)
}

func TestCode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/code", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[codeResponse](t, rec)
	assert.Equal(t, schema.StyleSequential, resp.Style)
	assert.Contains(t, resp.Code, "keras.Sequential([")
	assert.Contains(t, resp.Code, "layers.Dense(64, activation='relu')")
	assert.Zero(t, resp.ShapeErrors)

	rec = env.do(t, http.MethodPost, "/api/code?style=functional", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[codeResponse](t, rec)
	assert.Equal(t, schema.StyleFunctional, resp.Style)
	assert.Contains(t, resp.Code, "keras.Model(")
}

func TestCode_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/code?style=tabular", mlpJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, `unknown style "tabular"`)

	rec = env.do(t, http.MethodPost, "/api/code?style=sequential", branchJSON)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, schema.ErrCodeNotLinear, body.Code)
	assert.Equal(t, "sequential", body.Details["style"])

	rec = env.do(t, http.MethodPost, "/api/code", cycleJSON)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body = decodeBody[errorBody](t, rec)
	assert.Equal(t, schema.ErrCodeValidation, body.Code)
	assert.Contains(t, body.Error, "graph is not a valid network")
}

func TestCode_ShapeErrorsStillReturnCode(t *testing.T) {
	doc := `{"nodes": [{"id": "in", "type": "Input", "params": {"shape": [28, 28, 1]}}, {"id": "d", "type": "Dense"}, {"id": "out", "type": "Output"}],
	         "edges": [{"source": "in", "target": "d"}, {"source": "d", "target": "out"}]}`
	rec := newTestEnv(t).do(t, http.MethodPost, "/api/code", doc)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[codeResponse](t, rec)
	assert.NotEmpty(t, resp.Code)
	assert.Positive(t, resp.ShapeErrors)
}

func TestDiagram(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/diagram", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "MNIST MLP")
	assert.Contains(t, rec.Body.String(), "-->")

	rec = env.do(t, http.MethodPost, "/api/diagram?format=ascii", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dense (Dense)")

	rec = env.do(t, http.MethodPost, "/api/diagram?format=svg", mlpJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = env.do(t, http.MethodPost, "/api/diagram?format=gif", mlpJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/diagram", cycleJSON)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLayers(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodGet, "/api/layers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	byType := make(map[string]map[string]any, len(out))
	for _, l := range out {
		byType[l["type"].(string)] = l
	}
	require.Contains(t, byType, "Dense")
	assert.NotNil(t, byType["Dense"]["param_schema"])
	assert.Equal(t, true, byType["Add"]["merge_capable"])
	assert.Equal(t, true, byType["Input"]["source_role"])
}

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		schema.ErrCodeNotFound:   http.StatusNotFound,
		schema.ErrCodeImport:     http.StatusBadRequest,
		schema.ErrCodeValidation: http.StatusBadRequest,
		schema.ErrCodeNotLinear:  http.StatusUnprocessableEntity,
		schema.ErrCodeShape:      http.StatusUnprocessableEntity,
		schema.ErrCodeCancelled:  http.StatusServiceUnavailable,
		"SOMETHING_ELSE":         http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

// --- Sessions ---

func waitForReport(t *testing.T, env *testEnv, id string, revision int) recompute.Snapshot {
	t.Helper()
	var snap recompute.Snapshot
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/sessions/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		snap = decodeBody[recompute.Snapshot](t, rec)
		return snap.ReportRevision == revision && snap.Report != nil
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

func TestSessions_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions", mlpJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	opened := decodeBody[recompute.Snapshot](t, rec)
	assert.Equal(t, "/api/sessions/"+opened.ID, rec.Header().Get("Location"))
	assert.Equal(t, 1, opened.Revision)
	assert.Equal(t, schema.StyleAuto, opened.Style)

	snap := waitForReport(t, env, opened.ID, 1)
	assert.Contains(t, snap.Report.Code, "layers.Dense(64, activation='relu')")

	updated := strings.Replace(mlpJSON, `"units": 64`, `"units": 32`, 1)
	rec = env.do(t, http.MethodPut, "/api/sessions/"+opened.ID+"/graph?style=functional", updated)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 2, decodeBody[recompute.Snapshot](t, rec).Revision)

	snap = waitForReport(t, env, opened.ID, 2)
	assert.Equal(t, schema.StyleFunctional, snap.Style)
	assert.Contains(t, snap.Report.Code, "layers.Dense(32, activation='relu')")

	rec = env.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]recompute.Snapshot](t, rec)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Graph)
	assert.Nil(t, list[0].Report)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+opened.ID+"/analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[schema.AnalysisReport](t, rec)
	assert.Equal(t, schema.Shape{32}, report.Shapes.NodeShapes["d"])

	rec = env.do(t, http.MethodDelete, "/api/sessions/"+opened.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+opened.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, schema.ErrCodeNotFound, decodeBody[errorBody](t, rec).Code)
}

func TestSessions_Errors(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodPut, "/api/sessions/nope/graph", mlpJSON},
		{http.MethodPost, "/api/sessions/nope/analyze", ""},
		{http.MethodDelete, "/api/sessions/nope", ""},
	} {
		rec := env.do(t, tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.target)
	}

	rec := env.do(t, http.MethodPost, "/api/sessions?style=bogus", mlpJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions", `{"nodes": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions", mlpJSON)
	id := decodeBody[recompute.Snapshot](t, rec).ID
	rec = env.do(t, http.MethodPut, "/api/sessions/"+id+"/graph?style=bogus", mlpJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.sessions.Shutdown()
	rec = env.do(t, http.MethodPost, "/api/sessions", mlpJSON)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// --- SSE ---

func readEvents(t *testing.T, ctx context.Context, url string, until string) []string {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if name == until {
				return events
			}
		}
	}
	return events
}

func TestSSE_SessionStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	snap, err := env.sessions.Open(context.Background(), &schema.GraphDocument{}, schema.StyleAuto)
	require.NoError(t, err)
	waitForReport(t, env, snap.ID, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan []string, 1)
	go func() {
		done <- readEvents(t, ctx, ts.URL+"/sse/sessions/"+snap.ID, schema.EventAnalysisCompleted)
	}()

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodPut, "/api/sessions/"+snap.ID+"/graph", strings.NewReader(mlpJSON))
	env.handler.ServeHTTP(httptest.NewRecorder(), req)

	events := <-done
	assert.Equal(t, []string{schema.EventGraphUpdated, schema.EventAnalysisStarted, schema.EventAnalysisCompleted}, events)
}

func TestSSE_GlobalStreamTypeFilter(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan []string, 1)
	go func() {
		done <- readEvents(t, ctx, ts.URL+"/sse/events?type="+schema.EventSessionOpened, schema.EventSessionOpened)
	}()
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := env.sessions.Open(context.Background(), &schema.GraphDocument{}, schema.StyleAuto)
	require.NoError(t, err)

	assert.Equal(t, []string{schema.EventSessionOpened}, <-done)
}

func TestSSE_UnknownSession(t *testing.T) {
	rec := newTestEnv(t).do(t, http.MethodGet, "/sse/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
