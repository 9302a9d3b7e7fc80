package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/validate"
)

func (s *Server) mountResourceRequirements(r chi.Router) {
	r.Route("/resource-requirements", func(r chi.Router) {
		r.Post("/", s.createResourceRequirement)
		r.Get("/", s.listResourceRequirements)
	})
}

func (s *Server) createResourceRequirement(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req domain.ResourceRequirement
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.WorkflowID = workflowID
	if err := validate.ResourceRequirement(&req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.Store.CreateResourceRequirement(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listResourceRequirements(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.Store.ListResourceRequirements(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
