package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestScheduleEndpoints(t *testing.T) {
	rig := newTestRig(t)
	wfID, _ := createWorkflowWithRevision(t, rig, "hi")

	// Enabled defaults to true when omitted.
	w := rig.do("POST", "/v1/schedules", map[string]any{
		"workflow_id": wfID,
		"cron":        "*/5 * * * * *",
		"inputs":      map[string]any{"who": "cron"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	schedID, _ := created["id"].(string)
	if schedID == "" {
		t.Fatalf("missing schedule id: %s", w.Body.String())
	}
	if created["enabled"] != true {
		t.Errorf("enabled: got %v, want default true", created["enabled"])
	}

	w = rig.do("GET", "/v1/schedules", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d", w.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0]["workflow_id"] != wfID {
		t.Fatalf("list: got %s", w.Body.String())
	}

	w = rig.do("DELETE", "/v1/schedules/"+schedID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", w.Code)
	}
	if w := rig.do("DELETE", "/v1/schedules/"+schedID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	rig := newTestRig(t)
	wfID, _ := createWorkflowWithRevision(t, rig, "hi")

	w := rig.do("POST", "/v1/schedules", map[string]any{"cron": "0 12 * * *"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing workflow_id: got %d, want 400", w.Code)
	}

	w = rig.do("POST", "/v1/schedules", map[string]any{"workflow_id": wfID, "cron": "every day at noon"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad cron: got %d, want 400: %s", w.Code, w.Body.String())
	}

	w = rig.do("POST", "/v1/schedules", map[string]any{"workflow_id": "wf-missing1", "cron": "0 12 * * *"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown workflow: got %d, want 404", w.Code)
	}
}

func TestScheduleEndpointsWithoutScheduler(t *testing.T) {
	rig := newTestRig(t)
	rig.srv.schedulerSvc = nil

	w := rig.do("POST", "/v1/schedules", map[string]any{"workflow_id": "wf-x", "cron": "0 12 * * *"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("create: got %d, want 503", w.Code)
	}
	if w := rig.do("DELETE", "/v1/schedules/sched-x0001", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("delete: got %d, want 503", w.Code)
	}

	w = rig.do("GET", "/v1/schedules", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d, want 200", w.Code)
	}
	var list []any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list: got %s", w.Body.String())
	}
}
