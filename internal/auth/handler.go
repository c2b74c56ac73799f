package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
)

const (
	loginPath    = "/auth/login"
	passwordPath = "/auth/password"

	msgInvalidCredentials = "Invalid username or password"
	msgUnavailable        = "Sign-in is temporarily unavailable, please try again"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	menu           access.Menu
	onSignOut      func(sessionID string)
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		menu:           access.DefaultMenu(),
	}
}

// UseMenu replaces the navigation rendered on auth pages.
func (h *Handler) UseMenu(menu access.Menu) {
	if len(menu) > 0 {
		h.menu = menu
	}
}

// OnSignOut registers a callback receiving session ids that stop being used, on
// logout and when a sign-in rotates the session.
func (h *Handler) OnSignOut(fn func(sessionID string)) {
	h.onSignOut = fn
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/password", h.showPassword)
	r.Post("/password", h.handlePassword)
}

type loginForm struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=128"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

type passwordForm struct {
	Current string `validate:"required"`
	New     string `validate:"required,min=8,max=128"`
	Confirm string `validate:"required,eqfield=New"`
}

type passwordPageData struct {
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if access.PrincipalFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	errs := h.validate(form)
	if len(errs) > 0 {
		h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs})
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		status := http.StatusBadRequest
		message := msgInvalidCredentials
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
			status = http.StatusServiceUnavailable
			message = msgUnavailable
		}
		h.logger.Info("login rejected", slog.String("user", form.Username))
		h.renderLogin(w, r, status, loginPageData{Form: loginForm{Username: form.Username}, Errors: map[string]string{"general": message}})
		return
	}
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	previous := sess.ID
	if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
		h.logger.Error("renew session", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.signedOut(previous)

	sess.SetPrincipal(user.Principal())
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.Username})
	h.logger.Info("login", slog.String("user", user.Username), slog.String("role", user.Role.String()))

	target := "/"
	if user.PasswordChangeRequired {
		target = passwordPath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.signedOut(sess.ID)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) showPassword(w http.ResponseWriter, r *http.Request) {
	if !access.PrincipalFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	h.renderPassword(w, r, http.StatusOK, passwordPageData{})
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	principal := access.PrincipalFromContext(r.Context())
	if !principal.Authenticated() {
		http.Redirect(w, r, loginPath, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := passwordForm{
		Current: r.PostFormValue("current_password"),
		New:     r.PostFormValue("new_password"),
		Confirm: r.PostFormValue("confirm_password"),
	}
	if errs := h.validate(form); len(errs) > 0 {
		h.renderPassword(w, r, http.StatusBadRequest, passwordPageData{Errors: errs})
		return
	}

	user, err := h.service.ChangePassword(r.Context(), principal.Username, form.Current, form.New)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.renderPassword(w, r, http.StatusBadRequest, passwordPageData{Errors: map[string]string{"Current": "Current password is incorrect"}})
		return
	case errors.Is(err, ErrPasswordReused):
		h.renderPassword(w, r, http.StatusBadRequest, passwordPageData{Errors: map[string]string{"New": "Choose a password different from the current one"}})
		return
	case err != nil:
		h.logger.Error("change password", slog.String("user", principal.Username), slog.Any("error", err))
		h.renderPassword(w, r, http.StatusServiceUnavailable, passwordPageData{Errors: map[string]string{"general": "The password could not be updated, please try again"}})
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetPrincipal(user.Principal())
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Password updated"})
	}
	h.logger.Info("password changed", slog.String("user", user.Username))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	err := h.validator.Struct(form)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["general"] = err.Error()
		return errs
	}
	for _, fieldErr := range fieldErrs {
		errs[fieldErr.Field()] = fieldMessage(fieldErr)
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	case "eqfield":
		return "Passwords do not match"
	default:
		return "Invalid value"
	}
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	h.render(w, r, status, "pages/login.html", "Sign in", data)
}

func (h *Handler) renderPassword(w http.ResponseWriter, r *http.Request, status int, data passwordPageData) {
	h.render(w, r, status, "pages/password.html", "Change password", data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	principal := access.PrincipalFromContext(r.Context())
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Principal:   principal,
		Data:        data,
	}
	if principal.Authenticated() && !principal.PasswordChangeRequired {
		viewData.Menu = access.VisibleMenu(principal.Role, h.menu)
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	if err := h.templates.Render(w, page, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("page", page), slog.Any("error", err))
		if status == http.StatusOK {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

func (h *Handler) signedOut(sessionID string) {
	if h.onSignOut != nil && sessionID != "" {
		h.onSignOut(sessionID)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandlePasswordForTest exposes the password change POST handler for tests.
func (h *Handler) HandlePasswordForTest(w http.ResponseWriter, r *http.Request) {
	h.handlePassword(w, r)
}
