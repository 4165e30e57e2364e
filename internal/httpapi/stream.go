package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"oracle/internal/research"
)

const streamEventBuffer = 16

// ResearchStream runs the pipeline and streams progress as NDJSON. The run
// itself is detached from the request context: a client that disconnects
// mid-run stops receiving events, but the pipeline finishes so the report is
// still persisted.
func (h Handler) ResearchStream(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a query field")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	events := make(chan research.Event, streamEventBuffer)
	runCtx := context.WithoutCancel(r.Context())

	go func() {
		defer close(events)
		state := h.engine.Run(runCtx, req.Query, func(event research.Event) {
			events <- event
		})
		if state.Error != "" {
			events <- research.Event{Type: research.EventError, Error: state.Error}
		} else {
			result := state.Result()
			events <- research.Event{Type: research.EventResult, Report: &result}
		}
		events <- research.Event{Type: research.EventDone}
	}()

	encoder := json.NewEncoder(w)
	clientGone := r.Context().Done()
	disconnected := false

	// The channel is always drained so the producer never blocks on a
	// departed client.
	for event := range events {
		if disconnected {
			continue
		}
		select {
		case <-clientGone:
			log.Printf("research stream client disconnected: query_chars=%d", len(req.Query))
			disconnected = true
			continue
		default:
		}
		if err := encoder.Encode(event); err != nil {
			disconnected = true
			continue
		}
		flusher.Flush()
	}
}
