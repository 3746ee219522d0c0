package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/minseok/weft/internal/weft"
)

type sseFrame struct {
	id    string
	event string
	data  string
}

// parseSSE splits a recorded stream into frames. The data line closes a
// frame; keepalive comments are dropped.
func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	return frames
}

func streamRun(t *testing.T, rig *testRig, path string, lastEventID string) []sseFrame {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	w := httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("stream: got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type: got %q, want text/event-stream", ct)
	}
	return parseSSE(t, w.Body.String())
}

func TestStreamDeliversFullTrace(t *testing.T) {
	rig := newTestRig(t)
	_, revID := createWorkflowWithRevision(t, rig, "Hello {{name}}")
	runID := startRun(t, rig, revID, map[string]any{"name": "Ada"})

	// Subscribing right away exercises the live path: the handler holds
	// the connection until the terminal event and the done frame.
	frames := streamRun(t, rig, "/v1/runs/"+runID+"/events/stream", "")
	if len(frames) != 5 {
		t.Fatalf("frames: got %d, want 4 events + done", len(frames))
	}

	wantTypes := []string{"run.started", "step.started", "step.completed", "run.completed"}
	for i, want := range wantTypes {
		if frames[i].event != want {
			t.Errorf("frame %d: got %q, want %q", i, frames[i].event, want)
		}
		if frames[i].id != strconv.Itoa(i+1) {
			t.Errorf("frame %d id: got %q, want %d", i, frames[i].id, i+1)
		}
		var ev weft.Event
		if err := json.Unmarshal([]byte(frames[i].data), &ev); err != nil {
			t.Fatalf("frame %d data: %v", i, err)
		}
		if ev.RunID != runID || ev.Seq != int64(i+1) {
			t.Errorf("frame %d payload: run %q seq %d", i, ev.RunID, ev.Seq)
		}
	}

	done := frames[4]
	if done.event != "done" {
		t.Fatalf("last frame: got %q, want done", done.event)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(done.data), &payload); err != nil {
		t.Fatalf("done data: %v", err)
	}
	if payload["status"] != "completed" {
		t.Errorf("done status: got %v", payload["status"])
	}
	if payload["final_output"] != "Hello Ada" {
		t.Errorf("done final_output: got %v", payload["final_output"])
	}
}

func TestStreamResumesAfterSeq(t *testing.T) {
	rig := newTestRig(t)
	_, revID := createWorkflowWithRevision(t, rig, "hi")
	runID := startRun(t, rig, revID, nil)
	waitRunStatus(t, rig, runID)

	frames := streamRun(t, rig, "/v1/runs/"+runID+"/events/stream?after_seq=2", "")
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want events 3..4 + done", len(frames))
	}
	if frames[0].id != "3" || frames[0].event != "step.completed" {
		t.Errorf("first resumed frame: %+v", frames[0])
	}

	// The Last-Event-ID header takes precedence over the query.
	frames = streamRun(t, rig, "/v1/runs/"+runID+"/events/stream?after_seq=1", "3")
	if len(frames) != 2 {
		t.Fatalf("header resume: got %d frames, want event 4 + done", len(frames))
	}
	if frames[0].id != "4" || frames[0].event != "run.completed" {
		t.Errorf("header resume frame: %+v", frames[0])
	}

	// Caught-up subscriber gets just the done frame.
	frames = streamRun(t, rig, "/v1/runs/"+runID+"/events/stream?after_seq=4", "")
	if len(frames) != 1 || frames[0].event != "done" {
		t.Fatalf("caught-up: got %+v", frames)
	}
}

func TestStreamFallsBackToStore(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	// A run from a previous process: present in storage, absent from the
	// live buffer.
	finished := time.Now().UTC()
	run := &weft.Run{
		ID:          "run-old00001",
		RevisionID:  "rev-old00001",
		Status:      weft.RunStatusCompleted,
		FinalOutput: "from the archive",
		CreatedAt:   time.Now().UTC(),
		FinishedAt:  &finished,
	}
	if err := rig.runs.Create(ctx, run); err != nil {
		t.Fatal(err)
	}
	for _, typ := range []weft.EventType{weft.EventRunStarted, weft.EventRunCompleted} {
		ev := &weft.Event{ID: weft.GenerateID("ev"), RunID: run.ID, Type: typ, CreatedAt: time.Now().UTC()}
		if err := rig.events.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	frames := streamRun(t, rig, "/v1/runs/"+run.ID+"/events/stream", "")
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want 2 replayed + done", len(frames))
	}
	if frames[0].event != "run.started" || frames[1].event != "run.completed" {
		t.Errorf("replayed: %q, %q", frames[0].event, frames[1].event)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(frames[2].data), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["status"] != "completed" || payload["final_output"] != "from the archive" {
		t.Errorf("done payload: %v", payload)
	}

	// Resume skips already-seen persisted events too.
	frames = streamRun(t, rig, "/v1/runs/"+run.ID+"/events/stream?after_seq=1", "")
	if len(frames) != 2 || frames[0].event != "run.completed" {
		t.Errorf("store resume: %+v", frames)
	}
}

func TestStreamStoreFallbackNonTerminalRun(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	// A run stranded mid-flight by a restart: "running" in storage,
	// absent from the live buffer. The replay must not claim it
	// finished.
	started := time.Now().UTC()
	run := &weft.Run{
		ID:         "run-stale001",
		RevisionID: "rev-stale001",
		Status:     weft.RunStatusRunning,
		CreatedAt:  time.Now().UTC(),
		StartedAt:  &started,
	}
	if err := rig.runs.Create(ctx, run); err != nil {
		t.Fatal(err)
	}
	for _, typ := range []weft.EventType{weft.EventRunStarted, weft.EventStepStarted} {
		ev := &weft.Event{ID: weft.GenerateID("ev"), RunID: run.ID, Type: typ, CreatedAt: time.Now().UTC()}
		if err := rig.events.Append(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	frames := streamRun(t, rig, "/v1/runs/"+run.ID+"/events/stream", "")
	if len(frames) != 2 {
		t.Fatalf("frames: got %d, want the 2 replayed events and nothing else", len(frames))
	}
	for _, f := range frames {
		if f.event == "done" {
			t.Fatalf("non-terminal run must not get a done frame: %+v", f)
		}
	}
	if frames[0].event != "run.started" || frames[1].event != "step.started" {
		t.Errorf("replayed: %q, %q", frames[0].event, frames[1].event)
	}
}

func TestStreamUnknownRun(t *testing.T) {
	rig := newTestRig(t)
	req := httptest.NewRequest("GET", "/v1/runs/run-missing1/events/stream", nil)
	w := httptest.NewRecorder()
	rig.handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}
