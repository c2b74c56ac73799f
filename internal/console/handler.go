// Package console serves the signed-in landing page of the operations console.
package console

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
)

// Pinger checks the reachability of the licensing backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the home page.
type Options struct {
	Menu       access.Menu
	Backend    Pinger
	BackendURL string
	AppEnv     string
}

// Handler renders the console home.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     access.Middleware
	opts      Options
}

// NewHandler constructs the console handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, guard access.Middleware, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Menu) == 0 {
		opts.Menu = access.DefaultMenu()
	}
	return &Handler{logger: logger, templates: templates, csrf: csrf, guard: guard, opts: opts}
}

// MountRoutes registers the home page.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireSignedIn).Get("/", h.home)
}

type homeData struct {
	AppEnv        string
	BackendURL    string
	BackendStatus string
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	principal := access.PrincipalFromContext(r.Context())
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)

	data := homeData{}
	if access.ShouldRender(principal.Role, access.Allow(access.RoleAdmin)) {
		data.AppEnv = h.opts.AppEnv
		data.BackendURL = h.opts.BackendURL
		data.BackendStatus = h.backendStatus(r.Context())
	}

	viewData := view.TemplateData{
		Title:       "Home",
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Menu:        access.VisibleMenu(principal.Role, h.opts.Menu),
		Data:        data,
	}
	if err := h.templates.Render(w, "pages/home.html", viewData); err != nil {
		h.logger.Error("render home", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) backendStatus(ctx context.Context) string {
	if h.opts.Backend == nil {
		return "unknown"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.opts.Backend.Ping(pingCtx); err != nil {
		h.logger.Warn("backend ping", slog.Any("error", err))
		return "unreachable"
	}
	return "reachable"
}
