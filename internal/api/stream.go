package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/minseok/weft/internal/weft"
)

const keepaliveInterval = 15 * time.Second

// streamRunEvents streams a run's trace via SSE. A fresh subscriber
// gets the full backlog then the live tail; reconnecting clients resume
// after the seq in the Last-Event-ID header (or ?after_seq=). The run
// keeps going if the client disconnects.
// GET /v1/runs/{id}/events/stream
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	afterSeq := int64(0)
	if v := r.URL.Query().Get("after_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			afterSeq = n
		}
	}
	// Browsers resend the last delivered id on automatic reconnect; it
	// reflects newer client state than the query parameter.
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			afterSeq = n
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, notify, done, donePayload, found := s.runSvc.Subscribe(runID, afterSeq)
	if !found {
		// Buffer already collected, or the run predates this process.
		s.streamFromStore(w, r, flusher, runID, afterSeq)
		return
	}

	writeSSEHeaders(w)

	for _, ev := range events {
		writeSSEEvent(w, ev)
		afterSeq = ev.Seq
	}
	flusher.Flush()

	if done {
		writeDoneEvent(w, donePayload)
		flusher.Flush()
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-notify:
			events, notify, done, donePayload, found = s.runSvc.Subscribe(runID, afterSeq)
			if !found {
				return
			}
			for _, ev := range events {
				writeSSEEvent(w, ev)
				afterSeq = ev.Seq
			}
			flusher.Flush()

			if done {
				writeDoneEvent(w, donePayload)
				flusher.Flush()
				return
			}
		}
	}
}

// streamFromStore serves a run whose live buffer is gone: replay the
// persisted trace, then close with a done frame built from the record.
// A non-terminal record here means a run stranded by a restart; the
// stream closes without a done frame so clients do not take a live run
// for finished.
func (s *Server) streamFromStore(w http.ResponseWriter, r *http.Request, flusher http.Flusher, runID string, afterSeq int64) {
	run, err := s.runSvc.Get(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	writeSSEHeaders(w)

	events, err := s.runSvc.ListEvents(r.Context(), runID, 0, 0)
	if err == nil {
		for _, ev := range events {
			if ev.Seq <= afterSeq {
				continue
			}
			writeSSEEvent(w, ev)
		}
	}

	if !run.Status.Terminal() {
		flusher.Flush()
		return
	}

	payload := map[string]any{
		"run_id": run.ID,
		"status": string(run.Status),
	}
	if run.Status == weft.RunStatusCompleted {
		payload["final_output"] = run.FinalOutput
	}
	if run.Error != "" {
		payload["error"] = run.Error
	}
	writeDoneEvent(w, payload)
	flusher.Flush()
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes one event as an SSE frame keyed by seq.
func writeSSEEvent(w http.ResponseWriter, ev *weft.Event) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
}

// writeDoneEvent writes the closing "done" frame.
func writeDoneEvent(w http.ResponseWriter, payload map[string]any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
}
