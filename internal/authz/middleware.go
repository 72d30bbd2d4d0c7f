package authz

import (
	"encoding/json"
	"net/http"

	"hrvault.org/internal/session"
)

// ProtectedHandler receives the verified session alongside the request.
type ProtectedHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// Protect wraps a handler with the authorization pipeline. The wrapped
// handler only runs after a full pass; denials are answered here with the
// denial's status and user-safe message.
func (g *Guard) Protect(policy Policy, next ProtectedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.Authorize(w, r, policy)
		if err != nil {
			WriteDenial(w, err)
			return
		}
		r = r.WithContext(session.ContextWithSession(r.Context(), sess))
		next(w, r, sess)
	})
}

// WriteDenial answers a pipeline error. Non-denial errors (which the
// pipeline does not produce) degrade to an opaque 500.
func WriteDenial(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	if d, ok := err.(*Denial); ok {
		status = d.Status()
		message = d.Message()
		if status == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", `Cookie realm="hrvault"`)
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
