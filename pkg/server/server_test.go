package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/directory"
	"github.com/cadenlabs/agentbench/pkg/workflow"
)

// scriptedModel is a minimal language model for handler tests.
type scriptedModel struct {
	output string
	block  chan struct{}
}

func (m *scriptedModel) Generate(ctx context.Context, _ string) (string, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.output != "" {
		return m.output, nil
	}
	return "generated output", nil
}

func (m *scriptedModel) GenerateStructured(_ context.Context, _ string, out any) error {
	return fmt.Errorf("no structured output scripted for %T", out)
}

func newTestServer(t *testing.T, model workflow.LanguageModel) (*Server, *httptest.Server) {
	t.Helper()
	engineCfg := config.EngineConfig{}
	engineCfg.SetDefaults()

	engine := workflow.NewEngine(model, directory.NewMemory(directory.SeedContacts()...), engineCfg)
	srv := New(&config.ServerConfig{Address: ":0"}, engine)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStartRunSynchronous(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{output: "email body"})

	resp := postJSON(t, ts.URL+"/v1/runs?wait=true", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{"instruction": "budget", "target_name": "Carol"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decode[workflow.RunResult](t, resp)
	assert.Equal(t, workflow.StatusCompleted, res.Status)
	assert.Equal(t, "email body", res.Output)
}

func TestStartRunAsyncPollAndResult(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp := postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{"instruction": "budget", "target_name": "Carol"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := decode[map[string]string](t, resp)
	id := started["run_id"]
	require.NotEmpty(t, id)

	deadline := time.Now().Add(5 * time.Second)
	var snap workflow.Snapshot
	for {
		resp, err := http.Get(ts.URL + "/v1/runs/" + id)
		require.NoError(t, err)
		snap = decode[workflow.Snapshot](t, resp)
		if snap.State != workflow.RunRunning || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, workflow.RunCompleted, snap.State)
	assert.NotEmpty(t, snap.Trace)

	resp, err := http.Get(ts.URL + "/v1/runs/" + id + "/result")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[workflow.RunResult](t, resp)
	assert.Equal(t, workflow.StatusCompleted, res.Status)
}

func TestStartRunValidation(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp := postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "bogus",
		"task":          map[string]string{"instruction": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRunNotFound(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp, err := http.Get(ts.URL + "/v1/runs/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestResultBeforeTerminalConflicts(t *testing.T) {
	model := &scriptedModel{block: make(chan struct{})}
	defer close(model.block)
	_, ts := newTestServer(t, model)

	resp := postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{"instruction": "budget", "target_name": "Carol"},
	})
	started := decode[map[string]string](t, resp)

	resp, err := http.Get(ts.URL + "/v1/runs/" + started["run_id"] + "/result")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCancelRun(t *testing.T) {
	model := &scriptedModel{block: make(chan struct{})}
	defer close(model.block)
	_, ts := newTestServer(t, model)

	resp := postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "recursive",
		"task":          map[string]string{"instruction": "q"},
	})
	started := decode[map[string]string](t, resp)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/runs/"+started["run_id"], nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestListWorkflows(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp, err := http.Get(ts.URL + "/v1/workflows")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	infos := decode[[]workflowInfo](t, resp)
	require.Len(t, infos, 4)
	for _, info := range infos {
		assert.Contains(t, info.Mermaid, "graph TD")
	}
}

func TestCompareEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp := postJSON(t, ts.URL+"/v1/comparisons", map[string]any{
		"task": map[string]string{"instruction": "budget", "target_name": "Carol Martinez"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cmp := decode[workflow.Comparison](t, resp)
	assert.Contains(t, []string{"adaptive", "rigid"}, cmp.Winner)
}

func TestRunEventsStream(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp := postJSON(t, ts.URL+"/v1/runs", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{"instruction": "budget", "target_name": "Carol"},
	})
	started := decode[map[string]string](t, resp)
	id := started["run_id"]

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(ts.URL + "/v1/runs/" + id)
		require.NoError(t, err)
		snap := decode[workflow.Snapshot](t, resp)
		if snap.State != workflow.RunRunning || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(ts.URL + "/v1/runs/" + id + "/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	text := string(body)
	assert.Contains(t, text, "event: visit")
	assert.Contains(t, text, "event: result")
	assert.True(t, strings.Count(text, "event: visit") >= 3, "plan, lookup, produce visits replayed")
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp := postJSON(t, ts.URL+"/v1/runs?wait=true", map[string]any{
		"workflow_type": "rigid",
		"task":          map[string]string{"instruction": "budget", "target_name": "Carol"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "agentbench_node_visits_total")
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, &scriptedModel{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
