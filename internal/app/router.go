package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/auth"
	"github.com/licenseops/licenseops/internal/console"
	"github.com/licenseops/licenseops/internal/observability"
	reportshttp "github.com/licenseops/licenseops/internal/reports/http"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
	"github.com/licenseops/licenseops/jobs"
	"github.com/licenseops/licenseops/report"
	"github.com/licenseops/licenseops/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          access.Middleware
	Menu           access.Menu

	AuthHandler    *auth.Handler
	ConsoleHandler *console.Handler
	ReportsHandler *reportshttp.Handler
	ReportHandler  *report.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderError(params, w, r, http.StatusNotFound, "Page not found", "The page you asked for does not exist.")
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.ConsoleHandler != nil {
		params.ConsoleHandler.MountRoutes(r)
	}
	if params.ReportsHandler != nil {
		params.ReportsHandler.MountRoutes(r)
	}

	admin := params.Guard.RequireRoles(access.RoleAdmin)
	if params.ReportHandler != nil {
		r.Route("/report", func(r chi.Router) {
			r.Use(admin)
			params.ReportHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(admin)
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

func renderError(params RouterParams, w http.ResponseWriter, r *http.Request, status int, title, message string) {
	principal := access.PrincipalFromContext(r.Context())
	data := view.TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        message,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil && params.CSRFManager != nil {
		data.CSRFToken, _ = params.CSRFManager.EnsureToken(r.Context(), sess)
	}
	if principal.Authenticated() {
		menu := params.Menu
		if len(menu) == 0 {
			menu = access.DefaultMenu()
		}
		data.Menu = access.VisibleMenu(principal.Role, menu)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := params.Templates.Render(w, "pages/error.html", data); err != nil {
		params.Logger.Error("render error page", slog.Any("error", err))
	}
}

// staticCacheHandler lets browsers keep static assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
