package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// mountResults exposes the WorkflowResult projection of spec §3: the
// latest Result per job for the workflow's current run.
func (s *Server) mountResults(r chi.Router) {
	r.Get("/results", s.listWorkflowResults)
}

func (s *Server) listWorkflowResults(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.Store.GetWorkflowStatus(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := s.Store.LatestResults(r.Context(), workflowID, status.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
