package reportshttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/licenseops/licenseops/internal/access"
)

// MountRoutes registers the report workspace and API endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.RequireSignedIn)
		gr.Get("/reports", h.handlePage)
		gr.Post("/reports/select", h.handleSelect)
		gr.Post("/reports/filters", h.handleFilters)
		gr.Post("/reports/reset", h.handleReset)
		gr.Get("/reports/export.csv", h.handleExportCSV)
		gr.With(limiter).Get("/reports/export.pdf", h.handleExportPDF)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.RequireRoles())
		gr.Get("/api/reports", h.handleAPICatalog)
		gr.Get("/api/reports/{key}", h.handleAPIReport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := strings.TrimSpace(access.PrincipalFromContext(r.Context()).Username); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
