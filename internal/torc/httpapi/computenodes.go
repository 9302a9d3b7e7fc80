package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func (s *Server) mountComputeNodes(r chi.Router) {
	r.Route("/compute-nodes", func(r chi.Router) {
		r.Post("/", s.registerComputeNode)
		r.Get("/", s.listActiveComputeNodes)
		r.Post("/{computeNodeID}/shutdown", s.shutdownComputeNode)
	})
}

// registerComputeNode is a worker's self-announcement (spec §3 "created
// when a worker announces itself").
func (s *Server) registerComputeNode(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var n domain.ComputeNode
	if err := decodeJSON(r, &n); err != nil {
		writeError(w, err)
		return
	}
	n.WorkflowID = workflowID
	n.IsActive = true
	if n.StartTime.IsZero() {
		n.StartTime = time.Now()
	}
	id, err := s.Store.CreateComputeNode(r.Context(), &n)
	if err != nil {
		writeError(w, err)
		return
	}
	if n.ScheduledComputeNodeID != nil {
		if err := s.Store.FulfillScheduledComputeNode(r.Context(), *n.ScheduledComputeNodeID, id); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listActiveComputeNodes(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nodes, err := s.Store.ListActiveComputeNodes(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// shutdownComputeNode is a worker's graceful-shutdown announcement (spec §3
// "Lifecycle: ... marked inactive on graceful shutdown or orphan
// detection"). Unlike the Orphan Monitor's reaping path, a graceful
// shutdown does not fail any in-flight job: a worker is expected to have
// already reported completion for everything it was running before it
// calls this.
func (s *Server) shutdownComputeNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "computeNodeID"), 10, 64)
	if err != nil {
		writeError(w, torcerr.New(torcerr.InvalidArgument, "invalid compute node id"))
		return
	}
	if _, err := s.Store.DeactivateComputeNode(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
