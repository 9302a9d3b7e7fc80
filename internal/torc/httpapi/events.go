package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/torcerr"
)

func (s *Server) mountEvents(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.listEvents)
		r.Get("/stream", s.streamEvents)
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	events, err := s.Store.ListEvents(r.Context(), workflowID, since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// streamEvents implements the SSE endpoint of SPEC_FULL.md §10, grounded on
// the original's src/server/event_broadcast.rs: subscribes to the Event
// Broadcaster for this workflow and flushes one "data: ..." line per event
// until the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, torcerr.New(torcerr.InvalidArgument, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.Events.Subscribe(r.Context())
	defer sub.Unsubscribe()

	// Lagged stays closed once signaled; nil it after the first notice so
	// the select does not keep choosing it.
	lagged := sub.Lagged
	for {
		select {
		case <-r.Context().Done():
			return
		case <-lagged:
			lagged = nil
			fmt.Fprintf(w, "event: lagged\ndata: {}\n\n")
			flusher.Flush()
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			if evt.WorkflowID != workflowID {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
