package reportshttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/platform/httpx"
	"github.com/licenseops/licenseops/internal/reports"
)

const apiFetchTimeout = 20 * time.Second

type descriptorJSON struct {
	Key     string                     `json:"key"`
	Title   string                     `json:"title"`
	Filters []reports.FilterDescriptor `json:"filters"`
	Headers []string                   `json:"headers"`
}

type tableJSON struct {
	Report  string               `json:"report"`
	Title   string               `json:"title"`
	Filters reports.FilterValues `json:"filters"`
	Headers []string             `json:"headers"`
	Rows    [][]string           `json:"rows"`
}

func (h *Handler) handleAPICatalog(w http.ResponseWriter, r *http.Request) {
	role := access.PrincipalFromContext(r.Context()).Role
	descs := h.catalog.Descriptors()
	out := make([]descriptorJSON, 0, len(descs))
	for _, d := range descs {
		if !h.permits(role, d.Key) {
			continue
		}
		filters := d.Filters
		if filters == nil {
			filters = []reports.FilterDescriptor{}
		}
		out = append(out, descriptorJSON{Key: d.Key, Title: d.Title, Filters: filters, Headers: d.Headers()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// handleAPIReport fetches one report statelessly, taking filters from the query string.
func (h *Handler) handleAPIReport(w http.ResponseWriter, r *http.Request) {
	d, err := h.catalog.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		httpx.RespondError(w, httpx.WithDetail(httpx.ErrNotFound, err.Error()))
		return
	}
	if !h.permits(access.PrincipalFromContext(r.Context()).Role, d.Key) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	raw := reports.FilterValues{}
	for name := range r.URL.Query() {
		raw[name] = r.URL.Query().Get(name)
	}
	if err := reports.ValidateFilters(d, raw); err != nil {
		httpx.RespondError(w, httpx.WithDetail(httpx.ErrBadRequest, err.Error()))
		return
	}
	filters := reports.SanitizeFilters(d, raw)

	ctx, cancel := context.WithTimeout(r.Context(), apiFetchTimeout)
	defer cancel()
	start := time.Now()
	records, err := d.Fetch(ctx, filters)
	if h.store != nil && h.store.observer != nil {
		h.store.observer.ObserveReportFetch(d.Key, time.Since(start), err)
	}
	if err != nil {
		h.logger.Error("api fetch report", slog.String("report", d.Key), slog.Any("error", err))
		if errors.Is(err, context.DeadlineExceeded) {
			httpx.RespondError(w, httpx.WithDetail(httpx.ErrUpstreamTimeout, "Timed out loading "+d.Title+" report"))
			return
		}
		httpx.RespondError(w, httpx.WithDetail(httpx.ErrUpstream, "Failed to load "+d.Title+" report"))
		return
	}
	httpx.JSON(w, http.StatusOK, tableJSON{
		Report:  d.Key,
		Title:   d.Title,
		Filters: filters,
		Headers: d.Headers(),
		Rows:    reports.Render(d, records),
	})
}
