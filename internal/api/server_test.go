package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minseok/weft/internal/backend"
	"github.com/minseok/weft/internal/engine"
	"github.com/minseok/weft/internal/repository"
	"github.com/minseok/weft/internal/services"
	"github.com/minseok/weft/internal/tools"
)

// testRig wires a full in-memory stack behind the HTTP handler. Agent
// nodes run on the echo backend so runs finish without a model.
type testRig struct {
	srv     *Server
	handler http.Handler
	runs    repository.RunRepository
	events  repository.EventRepository
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	backends := backend.NewRegistry()
	backends.Register(&backend.Echo{})
	eng := engine.New(backends, tools.NewEmptyRegistry(), 0)

	manager := services.NewRunManager(time.Minute)
	limiter := services.NewConcurrencyLimiter(4, 2)
	workflows := repository.NewMemoryWorkflowRepository()
	revisions := repository.NewMemoryRevisionRepository()
	runs := repository.NewMemoryRunRepository()
	events := repository.NewMemoryEventRepository()

	workflowSvc := services.NewWorkflowService(workflows, revisions)
	runSvc := services.NewRunService(runs, revisions, events, eng, manager, limiter)
	schedulerSvc := services.NewSchedulerService(repository.NewMemoryScheduleRepository(), workflowSvc, runSvc)

	srv := NewServer(workflowSvc, runSvc)
	srv.SetSchedulerService(schedulerSvc)
	srv.SetConcurrencyLimiter(limiter)
	srv.SetToolRegistry(tools.NewRegistry())

	t.Cleanup(func() {
		runSvc.Close()
		manager.Stop()
	})
	return &testRig{srv: srv, handler: srv.Handler(), runs: runs, events: events}
}

// do sends a request through the router and returns the recorder.
func (rig *testRig) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func agentDocJSON(instructions string) map[string]any {
	return map[string]any{
		"nodes": []map[string]any{
			{"id": "in", "type": "input"},
			{"id": "a1", "type": "agent", "name": "Agent", "instructions": instructions, "model": "echo"},
			{"id": "out", "type": "output"},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "in", "target": "a1"},
			{"id": "e2", "source": "a1", "target": "out"},
		},
	}
}

// createWorkflowWithRevision drives the public API to a runnable
// revision and returns (workflowID, revisionID).
func createWorkflowWithRevision(t *testing.T, rig *testRig, instructions string) (string, string) {
	t.Helper()

	w := rig.do("POST", "/v1/workflows", map[string]string{"name": "test-wf"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create workflow: got %d, want 201: %s", w.Code, w.Body.String())
	}
	wfID := decodeBody(t, w)["id"].(string)

	w = rig.do("POST", "/v1/workflows/"+wfID+"/revisions", agentDocJSON(instructions))
	if w.Code != http.StatusCreated {
		t.Fatalf("save revision: got %d, want 201: %s", w.Code, w.Body.String())
	}
	revID := decodeBody(t, w)["id"].(string)
	return wfID, revID
}

func TestHealth(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if decodeBody(t, w)["status"] != "ok" {
		t.Errorf("body: got %s", w.Body.String())
	}
}

func TestStats(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	resp := decodeBody(t, w)
	conc, ok := resp["concurrency"].(map[string]any)
	if !ok {
		t.Fatalf("missing concurrency block: %s", w.Body.String())
	}
	if conc["global_max"] != float64(4) {
		t.Errorf("global_max: got %v", conc["global_max"])
	}
	if conc["active_runs"] != float64(0) {
		t.Errorf("active_runs: got %v", conc["active_runs"])
	}
}

func TestListTools(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/v1/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var infos []tools.Info
	if err := json.Unmarshal(w.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("tools: got %d, want 4", len(infos))
	}
	// Catalog is sorted by name.
	for i := 1; i < len(infos); i++ {
		if infos[i-1].Name > infos[i].Name {
			t.Errorf("catalog not sorted: %q before %q", infos[i-1].Name, infos[i].Name)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Error("expected prometheus exposition output")
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/v1/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}
