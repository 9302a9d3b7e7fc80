package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/export"
	"github.com/nrel/torc/internal/torc/metrics"
	"github.com/nrel/torc/internal/torc/readyset"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
)

func (s *Server) mountWorkflows(r chi.Router) {
	r.Post("/", s.createWorkflow)
	r.Get("/", s.listWorkflows)

	r.Route("/{workflowID}", func(r chi.Router) {
		r.Get("/", s.getWorkflow)
		r.Delete("/", s.archiveWorkflow)
		r.Post("/initialize", s.initializeWorkflow)
		r.Post("/reinitialize", s.reinitializeWorkflow)
		r.Post("/cancel", s.cancelWorkflow)
		r.Get("/ready-jobs", s.listReadyJobs)
		r.Get("/export", s.exportWorkflow)

		s.mountJobs(r)
		s.mountEvents(r)
		s.mountResults(r)
		s.mountResourceRequirements(r)
		s.mountFiles(r)
		s.mountUserData(r)
		s.mountComputeNodes(r)
		s.mountScheduledComputeNodes(r)
		s.mountActions(r)
	})
	r.Post("/import", s.importWorkflow)
}

func workflowIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "workflowID"), 10, 64)
	if err != nil {
		return 0, torcerr.New(torcerr.InvalidArgument, "invalid workflow id")
	}
	return id, nil
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf domain.Workflow
	if err := decodeJSON(r, &wf); err != nil {
		writeError(w, err)
		return
	}
	wf.User = subjectFrom(r)
	id, err := s.Store.CreateWorkflow(r.Context(), &wf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	wfs, err := s.Store.ListWorkflows(r.Context(), subjectFrom(r), includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wfs)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	wf, err := s.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) archiveWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.ArchiveWorkflow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) initializeWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		return s.RunCtl.Initialize(ctx, st, id, force)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"workflow_id": id})
}

func (s *Server) reinitializeWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resetFailedOnly := r.URL.Query().Get("reset_failed_only") == "true"
	onlyUnfinished := r.URL.Query().Get("only_unfinished") == "true"
	key := strconv.FormatInt(id, 10) + ":" + strconv.FormatBool(resetFailedOnly) + ":" + strconv.FormatBool(onlyUnfinished)
	_, err, _ = s.reinitFlight.Do(key, func() (any, error) {
		return nil, s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
			return s.RunCtl.Reinitialize(ctx, st, id, resetFailedOnly, onlyUnfinished)
		})
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"workflow_id": id})
}

func (s *Server) cancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		return s.RunCtl.Cancel(ctx, st, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"workflow_id": id})
}

func (s *Server) listReadyJobs(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobs, err := readyset.List(r.Context(), s.Store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ReadySetSize.WithLabelValues(strconv.FormatInt(id, 10)).Set(float64(len(jobs)))
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) exportWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := export.Export(r.Context(), s.Store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) importWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Snapshot *export.Snapshot `json:"snapshot"`
		Name     string           `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	newID, err := export.Import(r.Context(), s.Store, req.Snapshot, req.Name, subjectFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"workflow_id": newID})
}
