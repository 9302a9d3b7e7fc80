// Package httpapi is the REST request/response façade of spec §6: one chi
// sub-router per entity family, JSON over HTTP, with the error taxonomy of
// internal/torc/torcerr mapped onto status codes here.
//
// Grounded on kubernaut's chi + validator request-handling layout, adapted
// to Torc's entity set and the core's torcerr classification instead of
// kubernaut's own error types.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nrel/torc/internal/torc/torcerr"
)

var statusByKind = map[torcerr.Kind]int{
	torcerr.NotFound:           http.StatusNotFound,
	torcerr.Conflict:           http.StatusConflict,
	torcerr.Unauthorized:       http.StatusUnauthorized,
	torcerr.Forbidden:          http.StatusForbidden,
	torcerr.InvalidArgument:    http.StatusBadRequest,
	torcerr.CyclicDependency:   http.StatusUnprocessableEntity,
	torcerr.ImmutableField:     http.StatusConflict,
	torcerr.StorageConflict:    http.StatusConflict,
	torcerr.Transient:          http.StatusServiceUnavailable,
	torcerr.AlreadyInitialized: http.StatusConflict,
	torcerr.ResourceBusy:       http.StatusTooManyRequests,
}

// errorEnvelope is the JSON body every failed request returns.
type errorEnvelope struct {
	Kind    torcerr.Kind      `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeError maps err to an HTTP status via its torcerr.Kind and writes the
// JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := torcerr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := errorEnvelope{Kind: kind, Message: err.Error()}
	var classified *torcerr.Error
	if e, ok := err.(*torcerr.Error); ok {
		classified = e
	}
	if classified != nil {
		body.Message = classified.Message
		body.Details = classified.Details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errUnauthorized(msg string) error {
	return torcerr.New(torcerr.Unauthorized, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return torcerr.Wrap(torcerr.InvalidArgument, "malformed request body", err)
	}
	return nil
}
