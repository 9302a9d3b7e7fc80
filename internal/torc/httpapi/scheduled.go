package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/scheduler"
)

// mountScheduledComputeNodes exposes the ScheduledComputeNode status
// contract of spec §3/§4.9: requesting an allocation and listing requested/
// active/complete ones. Script generation and submission to the external
// scheduler live outside the core (spec §1); this only tracks the
// pending -> active -> complete (-> canceling) state the core owns.
func (s *Server) mountScheduledComputeNodes(r chi.Router) {
	r.Route("/scheduled-compute-nodes", func(r chi.Router) {
		r.Post("/", s.requestScheduledComputeNode)
		r.Get("/", s.listScheduledComputeNodes)
	})
}

func (s *Server) requestScheduledComputeNode(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var n domain.ScheduledComputeNode
	if err := decodeJSON(r, &n); err != nil {
		writeError(w, err)
		return
	}
	n.WorkflowID = workflowID
	id, err := scheduler.Request(r.Context(), s.Store, &n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listScheduledComputeNodes(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status := domain.ScheduledComputeNodeStatus(r.URL.Query().Get("status"))
	rows, err := s.Store.ListScheduledComputeNodes(r.Context(), workflowID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
