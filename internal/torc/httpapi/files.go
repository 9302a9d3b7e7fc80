package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/validate"
)

func (s *Server) mountFiles(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/", s.createFile)
		r.Get("/", s.listFiles)
		r.Get("/required-existing", s.listRequiredExistingFiles)
	})
}

func (s *Server) createFile(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var f domain.File
	if err := decodeJSON(r, &f); err != nil {
		writeError(w, err)
		return
	}
	f.WorkflowID = workflowID
	if err := validate.FileName(f.Name); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.Store.CreateFile(r.Context(), &f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := s.Store.ListFiles(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// listRequiredExistingFiles implements spec §4.5's "list-required-existing-
// files": input files with no producing job, which the workflow expects to
// already exist on disk.
func (s *Server) listRequiredExistingFiles(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := s.Store.ListRequiredExistingFiles(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}
