package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrel/torc/internal/torc/action"
	"github.com/nrel/torc/internal/torc/auth"
	"github.com/nrel/torc/internal/torc/broadcast"
	"github.com/nrel/torc/internal/torc/claim"
	"github.com/nrel/torc/internal/torc/dependency"
	"github.com/nrel/torc/internal/torc/domain"
	"github.com/nrel/torc/internal/torc/runcontroller"
	"github.com/nrel/torc/internal/torc/statemachine"
	"github.com/nrel/torc/internal/torc/storage"
	"github.com/nrel/torc/internal/torc/torclog"
)

// allowAnyAuthenticator accepts every credential, including an empty one, as
// "tester" -- the same shape as cmd/torcd's zero-configuration default, kept
// local here so this test doesn't depend on cmd/torcd's unexported type.
type allowAnyAuthenticator struct{}

func (allowAnyAuthenticator) Authenticate(ctx context.Context, credential string) (string, error) {
	return "tester", nil
}

// newTestServer wires a full in-memory Server the same way cmd/torcd does,
// against a fresh SQLite-backed store, so handler tests exercise real
// routing, auth middleware and storage rather than mocks.
func newTestServer(t *testing.T) (http.Handler, storage.Storage) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := dependency.New()
	actions := action.New()
	events := broadcast.New(8)
	sm := statemachine.New(resolver, actions, events)
	runCtl := runcontroller.New(resolver, actions, sm)
	claimEngine := claim.New(store)
	log, err := torclog.New(false)
	require.NoError(t, err)

	var authenticator auth.Authenticator = allowAnyAuthenticator{}
	srv := NewServer(store, resolver, actions, events, sm, runCtl, claimEngine, authenticator, log)
	return srv.Router(nil), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestHealthzAndMetricsBypassAuth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateWorkflow_RequiresBearerCredential(t *testing.T) {
	h, _ := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/", bytes.NewReader([]byte(`{"name":"nope"}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestWorkflowLifecycle_CreateInitializeClaimComplete drives one job from
// creation through claim and completion entirely through the HTTP surface,
// matching spec §8's end-to-end single-job scenario.
func TestWorkflowLifecycle_CreateInitializeClaimComplete(t *testing.T) {
	h, store := newTestServer(t)
	ctx := context.Background()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/workflows/", map[string]string{"name": "wf"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	wfPath := "/api/v1/workflows/" + itoa(created.ID)

	rec = doJSON(t, h, http.MethodPost, wfPath+"/jobs/", map[string]string{"name": "a", "command": "true"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var job struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))

	rec = doJSON(t, h, http.MethodPost, wfPath+"/initialize", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, wfPath+"/ready-jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready []domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	require.Len(t, ready, 1)
	require.Equal(t, job.ID, ready[0].ID)

	computeNodeID, err := store.CreateComputeNode(ctx, &domain.ComputeNode{
		WorkflowID: created.ID, Hostname: "h1", Pid: 1, NumCPUs: 1, NumNodes: 1,
		NodeType: domain.ComputeNodeLocal,
	})
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodPost, wfPath+"/jobs/claim", map[string]any{
		"limit": 5, "compute_node_id": computeNodeID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var claimed []domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimed))
	require.Len(t, claimed, 1)
	require.Equal(t, domain.JobPending, claimed[0].Status)

	jobPath := wfPath + "/jobs/" + itoa(job.ID)
	rec = doJSON(t, h, http.MethodPost, jobPath+"/start", map[string]int64{"compute_node_id": computeNodeID})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodPost, jobPath+"/complete", map[string]any{
		"run_id": 1, "attempt_id": 1, "return_code": 0,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, got.Status)
}

// TestListJobs_FiltersByStatus exercises the ?status= query parameter end to
// end through the HTTP layer (internal/torc/httpapi/jobs.go listJobs).
func TestListJobs_FiltersByStatus(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/workflows/", map[string]string{"name": "wf"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	wfPath := "/api/v1/workflows/" + itoa(created.ID)

	doJSON(t, h, http.MethodPost, wfPath+"/jobs/", map[string]string{"name": "a", "command": "true"})
	doJSON(t, h, http.MethodPost, wfPath+"/jobs/", map[string]string{"name": "b", "command": "true"})
	doJSON(t, h, http.MethodPost, wfPath+"/initialize", nil)

	rec = doJSON(t, h, http.MethodGet, wfPath+"/jobs/?status=ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []domain.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		require.Equal(t, domain.JobReady, j.Status)
	}

	rec = doJSON(t, h, http.MethodGet, wfPath+"/jobs/?status=blocked", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Empty(t, jobs)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
