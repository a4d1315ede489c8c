package daemon

import "net/http"

// requireAuth guards a handler with the configured bearer token. An empty
// token disables authentication. Failures go through the server's standard
// JSON error writer so clients always see the same error shape.
func (s *apiServer) requireAuth(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	expected := "Bearer " + token
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != expected {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
