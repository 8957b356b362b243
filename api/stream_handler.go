package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/conducthq/conduct/stream"
)

type lineData struct {
	Seq  int    `json:"seq"`
	Line string `json:"line"`
}

type doneData struct {
	State string `json:"state"`
}

// streamJob serves GET /v1/jobs/{jobID}/stream as Server-Sent Events.
// Everything logged so far is replayed first, then live lines are tailed
// until the terminal marker. A queued job yields a single queued event
// and closes; the client re-subscribes once the job is running.
func (a *API) streamJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobIDParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, detach, err := a.eng.Subscribe(r.Context(), jobID, ownerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	defer detach()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(a.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			writeSSE(w, "ping", struct{}{})
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			switch evt.Type {
			case stream.EventQueued:
				writeSSE(w, "queued", struct{}{})
			case stream.EventLine:
				writeSSE(w, "message", lineData{Seq: evt.Seq, Line: evt.Line})
			case stream.EventDone:
				writeSSE(w, "done", doneData{State: string(evt.State)})
				flusher.Flush()
				a.logger.Debug("stream finished",
					slog.String("job_id", jobID.String()),
					slog.String("state", string(evt.State)),
				)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
