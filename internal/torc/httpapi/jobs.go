package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torcerr"
	"github.com/nrel/torc/internal/torc/validate"
)

func (s *Server) mountJobs(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.createJob)
		r.Get("/", s.listJobs)
		r.Post("/claim", s.claimJobs)
		r.Post("/reset", s.resetJobs)

		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Put("/", s.updateJob)
			r.Post("/start", s.startJob)
			r.Post("/complete", s.completeJob)
			r.Post("/reset", s.resetJob)
			r.Get("/results", s.listJobResults)
		})
	})
}

func jobIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		return 0, torcerr.New(torcerr.InvalidArgument, "invalid job id")
	}
	return id, nil
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var j domain.Job
	if err := decodeJSON(r, &j); err != nil {
		writeError(w, err)
		return
	}
	j.WorkflowID = workflowID
	if err := validate.JobName(j.Name); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.Store.CreateJob(r.Context(), &j)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter := storage.JobFilter{}
	for _, st := range r.URL.Query()["status"] {
		filter.Status = append(filter.Status, domain.JobStatus(st))
	}
	jobs, err := s.Store.ListJobs(r.Context(), workflowID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var j domain.Job
	if err := decodeJSON(r, &j); err != nil {
		writeError(w, err)
		return
	}
	j.ID = id
	if err := validate.JobName(j.Name); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Store.UpdateJobFields(r.Context(), &j); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type claimRequest struct {
	Limit         int                    `json:"limit"`
	ComputeNodeID int64                  `json:"compute_node_id"`
	Selector      *storage.ClaimSelector `json:"selector,omitempty"`
}

func (s *Server) claimJobs(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	jobs, err := s.Claim.Next(r.Context(), workflowID, req.Limit, req.Selector, req.ComputeNodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type startRequest struct {
	ComputeNodeID int64 `json:"compute_node_id"`
}

func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		return s.SM.Start(ctx, st, id, req.ComputeNodeID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	RunID              int64   `json:"run_id"`
	AttemptID          int64   `json:"attempt_id"`
	ReturnCode         int32   `json:"return_code"`
	ExecTimeMinutes    float64 `json:"exec_time_minutes"`
	TerminatedBySignal bool    `json:"terminated_by_signal"`
	PeakMemoryBytes    *int64  `json:"peak_memory_bytes,omitempty"`
	AvgCPUPercent      *float64 `json:"avg_cpu_percent,omitempty"`
}

func (s *Server) completeJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		result := &domain.Result{
			ReturnCode: req.ReturnCode, ExecTimeMinutes: req.ExecTimeMinutes,
			PeakMemoryBytes: req.PeakMemoryBytes, AvgCPUPercent: req.AvgCPUPercent,
		}
		completed, err := st.CompleteJob(ctx, id, req.RunID, req.AttemptID, result)
		if err != nil {
			return err
		}
		return s.SM.Complete(ctx, st, completed, result, req.TerminatedBySignal)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listJobResults(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := s.Store.ListResults(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) resetJob(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := jobIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		return s.RunCtl.ResetJobStatus(ctx, st, workflowID, false, []int64{id})
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetJobsRequest is the body for the workflow-scoped spec §4.4
// reset_job_status(workflow_id, failed_only?, job_ids?) operation, as
// opposed to resetJob above, which is sugar for a single job id.
type resetJobsRequest struct {
	FailedOnly bool    `json:"failed_only"`
	JobIDs     []int64 `json:"job_ids,omitempty"`
}

func (s *Server) resetJobs(w http.ResponseWriter, r *http.Request) {
	workflowID, err := workflowIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req resetJobsRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	err = s.Store.WithTx(r.Context(), func(ctx context.Context, st storage.Storage) error {
		return s.RunCtl.ResetJobStatus(ctx, st, workflowID, req.FailedOnly, req.JobIDs)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
