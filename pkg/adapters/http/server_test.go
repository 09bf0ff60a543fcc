package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/runtime"
	parleyhttp "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/metrics"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingFlow = `{
  "flow_id": "greeting",
  "entry": "ask",
  "nodes": [
    {"id": "ask", "type": "question", "data": {"prompt": "Como se chama?", "variable_name": "nome"}},
    {"id": "bye", "type": "end", "data": {"final_message": "Até logo, {nome}!"}}
  ],
  "edges": [{"source": "ask", "target": "bye"}]
}`

type harness struct {
	server   *httptest.Server
	recorder *memory.Recorder
	streams  *parleyhttp.StreamManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	flows, err := memory.NewFlowRepository()
	require.NoError(t, err)
	rec := memory.NewRecorder()
	streams := parleyhttp.NewStreamManager()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := runner.New(flows, session.NewManager(memory.NewStore()), runtime.NewEngine(), runner.NewDispatcher(rec, rec),
		runner.WithMetrics(m),
		runner.WithDiffListener(streams.Broadcast),
	)
	handler, err := parleyhttp.NewHandler(context.Background(), r,
		parleyhttp.WithStreams(streams),
		parleyhttp.WithGatherer(reg),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &harness{server: srv, recorder: rec, streams: streams}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestServer_PublishAndConverse(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, http.MethodPost, "/v1/flows", greetingFlow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	resp, body = h.do(t, http.MethodGet, "/v1/flows/greeting", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ask", body["entry"])

	resp, body = h.do(t, http.MethodGet, "/v1/flows/greeting?version=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	resp, _ = h.do(t, http.MethodGet, "/v1/flows/greeting?version=2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting","user_id":"u1","text":"oi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := body["session"].(map[string]any)
	assert.Equal(t, string(domain.StatusWaitingForInput), sess["status"])

	resp, _ = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting","user_id":"u1","text":"Rui"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Como se chama?", "Até logo, Rui!"}, h.recorder.Texts())

	resp, body = h.do(t, http.MethodGet, "/v1/sessions/greeting:u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(domain.StatusEnded), body["status"])

	resp, _ = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_PublishErrors(t *testing.T) {
	h := newHarness(t)

	t.Run("Schema Violation", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/v1/flows", `{"flow_id":"x","entry":"a","nodes":[]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Invalid Graph", func(t *testing.T) {
		doc := `{"flow_id":"x","entry":"a","nodes":[{"id":"a","type":"question","data":{"prompt":"?","variable_name":"v"}}]}`
		resp, body := h.do(t, http.MethodPost, "/v1/flows", doc)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.NotEmpty(t, body["problems"])
	})

	t.Run("Duplicate Version", func(t *testing.T) {
		doc := strings.Replace(greetingFlow, `"entry"`, `"version": 3, "entry"`, 1)
		resp, _ := h.do(t, http.MethodPost, "/v1/flows", doc)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp, _ = h.do(t, http.MethodPost, "/v1/flows", doc)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestServer_NotFound(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodGet, "/v1/flows/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"nope","user_id":"u1","text":"oi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/sessions/nope:u1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/v1/sessions/nope:u1/resume", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_InboundValidation(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/v1/flows", greetingFlow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	big := strings.Repeat("a", runner.DefaultMaxInputSize+1)
	resp, _ = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting","user_id":"u1","text":"`+big+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_CancelAndDelete(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/v1/flows", greetingFlow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting","user_id":"u2","text":"oi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodPost, "/v1/sessions/greeting:u2/cancel", `{"reason":"flow disabled"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := body["session"].(map[string]any)
	assert.Equal(t, string(domain.StatusEnded), sess["status"])
	assert.Equal(t, "flow disabled", sess["reason"])

	resp, _ = h.do(t, http.MethodDelete, "/v1/sessions/greeting:u2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = h.do(t, http.MethodDelete, "/v1/sessions/greeting:u2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SessionEvents(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, http.MethodPost, "/v1/flows", greetingFlow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/v1/sessions/greeting:u3/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := bufio.NewScanner(stream.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	require.Eventually(t, func() bool { return h.streams.Subscribers("greeting:u3") == 1 }, time.Second, 10*time.Millisecond)
	resp, _ = h.do(t, http.MethodPost, "/v1/inbound", `{"flow_id":"greeting","user_id":"u3","text":"oi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var diff domain.SessionDiff
	for lines.Scan() {
		if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok && data != "connected" {
			require.NoError(t, json.Unmarshal([]byte(data), &diff))
			break
		}
	}
	assert.Equal(t, "greeting:u3", diff.Key)
	require.NotNil(t, diff.Status)
	assert.Equal(t, domain.StatusWaitingForInput, *diff.Status)
}

func TestServer_OpenAPIDocument(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.server.URL + "/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	doc, err := parleyhttp.LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/inbound"))
}
