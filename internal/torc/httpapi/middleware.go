package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type subjectKey struct{}

// authenticate extracts "Authorization: Bearer <credential>" and verifies it
// via s.Auth, attaching the resulting subject to the request context.
// /healthz and /metrics are exempt.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		credential, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, errUnauthorized("missing bearer credential"))
			return
		}
		subject, err := s.Auth.Authenticate(r.Context(), credential)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subjectFrom(r *http.Request) string {
	if s, ok := r.Context().Value(subjectKey{}).(string); ok {
		return s
	}
	return ""
}
