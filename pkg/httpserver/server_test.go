package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/metrics"
	"github.com/snow-ghost/readiness/pkg/progress"
	"github.com/snow-ghost/readiness/pkg/store"
	"github.com/snow-ghost/readiness/pkg/streaming"
)

var errStop = errors.New("stop")

// blockingRunner holds RunAll until release is closed
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) RunAll(ctx context.Context, mains, executors []string) []core.ComboScore {
	close(b.started)
	<-b.release
	return nil
}

func newTestServer(t *testing.T, runner ComboRunner) (*Server, *store.MemoryStore, *progress.Hub) {
	t.Helper()
	mem := store.NewMemoryStore()
	hub := progress.NewHub()
	reg := prometheus.NewRegistry()
	metrics.NewPrometheusMetrics(reg).RecordCombo("m", "e", 80)
	return NewServer(Options{Hub: hub, Gatherer: reg, Store: mem, Runner: runner}), mem, hub
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["running"])
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "readiness_combo_overall_score")
}

func TestListCombos(t *testing.T) {
	s, mem, _ := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, mem.SaveComboScore(ctx, core.ComboScore{MainModel: "a", ExecutorModel: "x", OverallScore: 40}))
	require.NoError(t, mem.SaveComboScore(ctx, core.ComboScore{MainModel: "a", ExecutorModel: "y", OverallScore: 90}))
	require.NoError(t, mem.SaveComboScore(ctx, core.ComboScore{MainModel: "b", ExecutorModel: "x", OverallScore: 70}))

	rec := do(t, s.Handler(), http.MethodGet, "/v1/combos?main=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var scores []core.ComboScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	require.Len(t, scores, 2)
	assert.Equal(t, "y", scores[0].ExecutorModel, "sorted by overall score")
}

func TestRunCombos(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, _, _ := newTestServer(t, runner)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/v1/combos/run", `{"mains": ["a"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/combos/run", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/combos/run", `{"mains": ["a", "b"], "executors": ["x"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-runner.started

	rec = do(t, h, http.MethodPost, "/v1/combos/run", `{"mains": ["a"], "executors": ["x"]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "busy", e.Code)

	close(runner.release)
	assert.Eventually(t, func() bool { return !s.running.Load() }, time.Second, 5*time.Millisecond)
}

func TestLookups(t *testing.T) {
	s, mem, _ := newTestServer(t, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/prosthetics/nobody", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/profiles/nobody", "").Code)

	require.NoError(t, mem.SaveProstheticConfig(context.Background(), core.ProstheticConfig{
		ModelID: "m",
		Levels:  []core.Level{core.Disqualification{Capability: "File Operations"}},
	}))
	rec := do(t, h, http.MethodGet, "/v1/prosthetics/m", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg core.ProstheticConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, []string{"File Operations"}, cfg.Disqualifications())
}

func TestEventsSSE(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(core.ProgressEvent{Kind: core.EventCombo, MainModel: "m", Status: core.StatusRunning})

	var got core.ProgressEvent
	err = streaming.ParseSSEStream(ctx, resp.Body, func(event string, data []byte) error {
		assert.Equal(t, string(core.EventCombo), event)
		ev, err := streaming.ParseProgress(data)
		require.NoError(t, err)
		got = ev
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, "m", got.MainModel)
	assert.Equal(t, core.StatusRunning, got.Status)
}

func TestWebSocket(t *testing.T) {
	s, _, hub := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish(core.ProgressEvent{Kind: core.EventExclusion, MainModel: "slow", Status: core.StatusExcluded})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev core.ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, core.EventExclusion, ev.Kind)
	assert.Equal(t, "slow", ev.MainModel)
}
