package engine

import (
	"log/slog"
	"net/http"

	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Middleware guards HTTP routes with engine decisions. Routes protected
// this way carry no target, so the check is "may this subject perform
// the action at all", with scope narrowing applied by the handler.
type Middleware struct {
	Engine   *Engine
	Recorder *audit.Recorder
	Logger   *slog.Logger
}

// Require allows the request through only when the subject holds the
// (resource, action) pair. Denials are audited like any other decision.
func (m Middleware) Require(resource authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authz.UserFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			decision := m.Engine.Decide(r.Context(), user, resource, action, nil)
			if m.Recorder != nil {
				if err := m.Recorder.Record(r.Context(), audit.DecisionEvent(user, resource, action, nil, decision)); err != nil {
					if m.Logger != nil {
						m.Logger.Error("audit record failed", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
			}
			if !decision.Allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
