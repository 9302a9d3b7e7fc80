package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/validate"
)

func (s *Server) mountUserData(r chi.Router) {
	r.Route("/user-data", func(r chi.Router) {
		r.Post("/", s.createUserData)
		r.Get("/", s.listUserData)
	})
}

func (s *Server) createUserData(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var u domain.UserData
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, err)
		return
	}
	u.WorkflowID = workflowID
	if err := validate.UserDataName(u.Name); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.Store.CreateUserData(r.Context(), &u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listUserData(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.Store.ListUserData(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
