package access

import (
	"log/slog"
	"net/http"
)

// Middleware wires role guards for HTTP handlers.
type Middleware struct {
	Logger   *slog.Logger
	LoginURL string
}

// RequireSignedIn redirects anonymous requests to the login page.
func (m Middleware) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()).Authenticated() {
			next.ServeHTTP(w, r)
			return
		}
		login := m.LoginURL
		if login == "" {
			login = "/auth/login"
		}
		http.Redirect(w, r, login, http.StatusSeeOther)
	})
}

// RequireRoles ensures the current principal holds one of the roles. No roles means any
// signed-in principal may pass.
func (m Middleware) RequireRoles(roles ...Role) func(http.Handler) http.Handler {
	allowed := Allow(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if !principal.Authenticated() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if ShouldRender(principal.Role, allowed) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("role denied",
					slog.String("user", principal.Username),
					slog.String("role", principal.Role.String()),
					slog.String("path", r.URL.Path))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
