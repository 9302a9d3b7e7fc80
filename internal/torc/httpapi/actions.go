package httpapi

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/torcerr"
)

// mountActions exposes the Action Engine of spec §4.7: declarative creation
// plus the at-most-once claim protocol.
func (s *Server) mountActions(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Post("/", s.createAction)
		r.Get("/", s.listActions)
		r.Post("/{actionID}/claim", s.claimAction)
	})
}

func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var a domain.WorkflowAction
	if err := decodeJSON(r, &a); err != nil {
		writeError(w, err)
		return
	}
	a.WorkflowID = workflowID
	for _, pattern := range a.JobNameRegexes {
		if _, err := regexp.Compile(pattern); err != nil {
			writeError(w, torcerr.Wrap(torcerr.InvalidArgument, "invalid job_name_regex", err).WithDetail("pattern", pattern))
			return
		}
	}
	id, err := s.Store.CreateAction(r.Context(), &a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actions, err := s.Store.ListActions(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

type claimActionRequest struct {
	ComputeNodeID int64 `json:"compute_node_id"`
}

// claimAction implements spec §4.7's claim protocol: executed=false->true is
// a compare-and-set; a second claimer observes torcerr.Conflict, surfaced
// here as HTTP 409.
func (s *Server) claimAction(w http.ResponseWriter, r *http.Request) {
	actionID, err := strconv.ParseInt(chi.URLParam(r, "actionID"), 10, 64)
	if err != nil {
		writeError(w, torcerr.New(torcerr.InvalidArgument, "invalid action id"))
		return
	}
	var req claimActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	claimed, err := s.Actions.ClaimAction(r.Context(), s.Store, actionID, req.ComputeNodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimed)
}
