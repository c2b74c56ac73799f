package reportshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/internal/reports/export"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
)

const pdfTimeout = 45 * time.Second

// ReportRoles may export, and may open any report type the menu does not list.
var ReportRoles = []access.Role{
	access.RoleAdmin,
	access.RoleComplianceOfficer,
	access.RoleComplianceLead,
	access.RoleITAuditor,
	access.RoleOperationsManager,
	access.RoleSecurityHead,
	access.RoleProductOwner,
	access.RoleProcurementOfficer,
	access.RoleProcurementLead,
	access.RoleNetworkAdmin,
}

// PDFRenderer turns a laid out document into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, doc reports.Document) ([]byte, error)
}

// AuditRecorder persists export events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Handler serves the report workspace pages, exports and the JSON API.
type Handler struct {
	logger    *slog.Logger
	catalog   *reports.Catalog
	store     *WorkspaceStore
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     access.Middleware
	menu      access.Menu
	pdf       PDFRenderer
	audit     AuditRecorder
	now       func() time.Time
}

// Options carries the optional collaborators of Handler.
type Options struct {
	PDF   PDFRenderer
	Audit AuditRecorder
	// Menu supplies per-report allow-lists, matched by entry key. Defaults to access.DefaultMenu.
	Menu access.Menu
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, catalog *reports.Catalog, store *WorkspaceStore, templates *view.Engine, csrf *shared.CSRFManager, guard access.Middleware, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Menu == nil {
		opts.Menu = access.DefaultMenu()
	}
	return &Handler{
		logger:    logger,
		catalog:   catalog,
		store:     store,
		templates: templates,
		csrf:      csrf,
		guard:     guard,
		menu:      opts.Menu,
		pdf:       opts.PDF,
		audit:     opts.Audit,
		now:       time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// permits reports whether role may open the report type key.
func (h *Handler) permits(role access.Role, key string) bool {
	for _, entry := range h.menu {
		if entry.Key == key {
			return entry.Rule().Permits(role)
		}
	}
	return access.ShouldRender(role, access.Allow(ReportRoles...))
}

func (h *Handler) canExport(role access.Role) bool {
	return access.ShouldRender(role, access.Allow(ReportRoles...))
}

func (h *Handler) workspace(r *http.Request) (*reports.Workspace, *NoteQueue, string) {
	id := shared.SessionID(r.Context())
	ws, notes := h.store.Get(id)
	return ws, notes, id
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	principal := access.PrincipalFromContext(r.Context())
	ws, notes, _ := h.workspace(r)

	if key := strings.TrimSpace(r.URL.Query().Get("type")); key != "" {
		active, selected := ws.Active()
		switch {
		case !h.permits(principal.Role, key):
			h.deny(w, r, principal, key)
			return
		case !selected || active.Key != key:
			if err := ws.Select(h.store.Context(), key); err != nil {
				h.flash(r, "error", "Unknown report type")
			}
		}
		http.Redirect(w, r, "/reports", http.StatusSeeOther)
		return
	}

	csrfToken := ""
	var flash *shared.FlashMessage
	if sess != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		flash = sess.PopFlash()
	}
	if pending := notes.Drain(); len(pending) > 0 {
		last := pending[len(pending)-1]
		flash = &shared.FlashMessage{Kind: last.Kind, Message: last.Message}
	}

	data := view.TemplateData{
		Title:       "Reports",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Menu:        access.VisibleMenu(principal.Role, h.menu),
		Data:        h.buildPageVM(ws, principal),
	}
	if err := h.templates.Render(w, "pages/reports.html", data); err != nil {
		h.logger.Error("render reports", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ws, _, _ := h.workspace(r)
	key := strings.TrimSpace(r.PostFormValue("report"))
	principal := access.PrincipalFromContext(r.Context())
	if !h.permits(principal.Role, key) {
		h.deny(w, r, principal, key)
		return
	}
	if err := ws.Select(h.store.Context(), key); err != nil {
		h.flash(r, "error", "Unknown report type")
		h.logger.Warn("select report", slog.String("report", key), slog.Any("error", err))
	}
	http.Redirect(w, r, "/reports", http.StatusSeeOther)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ws, _, _ := h.workspace(r)
	values := reports.FilterValues{}
	if d, ok := ws.Active(); ok {
		for _, f := range d.Filters {
			values[f.Name] = r.PostFormValue(f.Name)
		}
	}
	if err := ws.Apply(h.store.Context(), values); err != nil {
		if errors.Is(err, reports.ErrNoReportSelected) {
			h.flash(r, "error", "Select a report type first")
		} else {
			h.logger.Error("apply report filters", slog.Any("error", err))
			h.flash(r, "error", "Could not apply filters")
		}
	}
	http.Redirect(w, r, "/reports", http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ws, _, _ := h.workspace(r)
	ws.Reset()
	http.Redirect(w, r, "/reports", http.StatusSeeOther)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !h.canExport(access.PrincipalFromContext(r.Context()).Role) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	ws, _, _ := h.workspace(r)
	d, table, err := ws.DelimitedExport()
	if err != nil {
		h.flash(r, "error", "Select a report type first")
		http.Redirect(w, r, "/reports", http.StatusSeeOther)
		return
	}
	h.recordExport(r, d, "csv", len(table)-1)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename("csv")))
	if err := export.WriteCSV(w, table); err != nil {
		h.logger.Error("write csv export", slog.String("report", d.Key), slog.Any("error", err))
	}
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if !h.canExport(access.PrincipalFromContext(r.Context()).Role) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	ws, _, _ := h.workspace(r)
	d, doc, err := ws.DocumentExport(h.now())
	switch {
	case errors.Is(err, reports.ErrNoReportSelected):
		h.flash(r, "error", "Select a report type first")
		http.Redirect(w, r, "/reports", http.StatusSeeOther)
		return
	case errors.Is(err, reports.ErrEmptyReport):
		h.flash(r, "warning", "There is nothing to export")
		http.Redirect(w, r, "/reports", http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Error("build pdf document", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if h.pdf == nil {
		http.Error(w, "pdf export not configured", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pdfTimeout)
	defer cancel()
	pdf, err := h.pdf.Render(ctx, doc)
	if err != nil {
		h.logger.Error("render pdf export", slog.String("report", d.Key), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	h.recordExport(r, d, "pdf", len(doc.Rows))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename("pdf")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, principal access.Principal, key string) {
	h.logger.Warn("report denied",
		slog.String("user", principal.Username),
		slog.String("role", principal.Role.String()),
		slog.String("report", key))
	h.flash(r, "error", "You are not allowed to open that report")
	http.Redirect(w, r, "/reports", http.StatusSeeOther)
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (h *Handler) recordExport(r *http.Request, d reports.Descriptor, format string, rows int) {
	if h.audit == nil {
		return
	}
	principal := access.PrincipalFromContext(r.Context())
	entry := shared.AuditLog{
		Actor:    principal.Username,
		Action:   "report.export",
		Entity:   "report",
		EntityID: d.Key,
		Meta:     map[string]any{"format": format, "rows": rows, "role": principal.Role.String()},
		At:       h.now(),
	}
	if err := h.audit.Record(r.Context(), entry); err != nil {
		h.logger.Warn("record export audit", slog.String("report", d.Key), slog.Any("error", err))
	}
}

// HandlePageForTest exposes the page handler for tests.
func (h *Handler) HandlePageForTest(w http.ResponseWriter, r *http.Request) {
	h.handlePage(w, r)
}
