package api

import (
	"net/http"
	"testing"
)

func TestWorkflowCreateAndGet(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do("POST", "/v1/workflows", map[string]string{"name": "digest", "description": "daily"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("missing workflow id: %s", w.Body.String())
	}
	if created["name"] != "digest" {
		t.Errorf("name: got %v", created["name"])
	}

	w = rig.do("GET", "/v1/workflows/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d, want 200", w.Code)
	}
	if decodeBody(t, w)["description"] != "daily" {
		t.Errorf("description: got %s", w.Body.String())
	}
}

func TestWorkflowCreateRequiresNameHTTP(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do("POST", "/v1/workflows", map[string]string{"description": "nameless"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	if decodeBody(t, w)["error"] == nil {
		t.Error("expected error body")
	}

	w = rig.doRaw("POST", "/v1/workflows", "{broken")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad body: got %d, want 400", w.Code)
	}
}

func TestWorkflowGetMissing(t *testing.T) {
	rig := newTestRig(t)
	w := rig.do("GET", "/v1/workflows/wf-missing1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}

func TestWorkflowListEnvelope(t *testing.T) {
	rig := newTestRig(t)

	w := rig.do("GET", "/v1/workflows", nil)
	resp := decodeBody(t, w)
	if list, ok := resp["workflows"].([]any); !ok || len(list) != 0 {
		t.Fatalf("empty list: got %s", w.Body.String())
	}
	if resp["total"] != float64(0) {
		t.Errorf("total: got %v", resp["total"])
	}

	rig.do("POST", "/v1/workflows", map[string]string{"name": "one"})
	rig.do("POST", "/v1/workflows", map[string]string{"name": "two"})

	w = rig.do("GET", "/v1/workflows?limit=1", nil)
	resp = decodeBody(t, w)
	if list := resp["workflows"].([]any); len(list) != 1 {
		t.Errorf("limited page: got %d items", len(list))
	}
	if resp["total"] != float64(2) {
		t.Errorf("total: got %v, want 2", resp["total"])
	}
}

func TestWorkflowUpdateAndDelete(t *testing.T) {
	rig := newTestRig(t)
	wfID, _ := createWorkflowWithRevision(t, rig, "hi")

	w := rig.do("PUT", "/v1/workflows/"+wfID, map[string]string{"name": "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: got %d, want 200: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["name"] != "renamed" {
		t.Errorf("name: got %s", w.Body.String())
	}

	w = rig.do("DELETE", "/v1/workflows/"+wfID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", w.Code)
	}

	if w := rig.do("GET", "/v1/workflows/"+wfID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	if w := rig.do("GET", "/v1/workflows/"+wfID+"/revisions/latest", nil); w.Code != http.StatusNotFound {
		t.Errorf("latest after delete: got %d, want 404", w.Code)
	}
	if w := rig.do("DELETE", "/v1/workflows/"+wfID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestRevisionEndpoints(t *testing.T) {
	rig := newTestRig(t)
	wfID, revID := createWorkflowWithRevision(t, rig, "v1")

	// Unchanged document returns the existing head.
	w := rig.do("POST", "/v1/workflows/"+wfID+"/revisions", agentDocJSON("v1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("dedup save: got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["id"]; got != revID {
		t.Errorf("dedup returned new revision: got %v, want %v", got, revID)
	}

	// Changed document mints version 2.
	w = rig.do("POST", "/v1/workflows/"+wfID+"/revisions", agentDocJSON("v2"))
	if decodeBody(t, w)["version"] != float64(2) {
		t.Errorf("version: got %s", w.Body.String())
	}

	w = rig.do("GET", "/v1/workflows/"+wfID+"/revisions", nil)
	resp := decodeBody(t, w)
	if resp["total"] != float64(2) {
		t.Fatalf("total: got %v, want 2: %s", resp["total"], w.Body.String())
	}
	revs := resp["revisions"].([]any)
	if revs[0].(map[string]any)["version"] != float64(2) {
		t.Errorf("newest first: got %v", revs[0])
	}

	w = rig.do("GET", "/v1/workflows/"+wfID+"/revisions/latest", nil)
	if w.Code != http.StatusOK || decodeBody(t, w)["version"] != float64(2) {
		t.Errorf("latest: got %d %s", w.Code, w.Body.String())
	}

	w = rig.do("GET", "/v1/revisions/"+revID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get revision: got %d, want 200", w.Code)
	}
	if decodeBody(t, w)["workflow_id"] != wfID {
		t.Errorf("workflow_id: got %s", w.Body.String())
	}

	if w := rig.do("GET", "/v1/revisions/rev-missing1", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing revision: got %d, want 404", w.Code)
	}
}

func TestSaveRevisionInvalidDocumentHTTP(t *testing.T) {
	rig := newTestRig(t)
	wfID, _ := createWorkflowWithRevision(t, rig, "ok")

	doc := agentDocJSON("bad")
	doc["edges"] = append(doc["edges"].([]map[string]any),
		map[string]any{"id": "e3", "source": "out", "target": "a1"})

	w := rig.do("POST", "/v1/workflows/"+wfID+"/revisions", doc)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if issues, ok := resp["issues"].([]any); !ok || len(issues) == 0 {
		t.Fatalf("expected issues: %s", w.Body.String())
	}

	// Unknown workflow wins over document problems.
	if w := rig.do("POST", "/v1/workflows/wf-missing1/revisions", agentDocJSON("x")); w.Code != http.StatusNotFound {
		t.Errorf("unknown workflow: got %d, want 404", w.Code)
	}
}
