package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/auth"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
	_ "github.com/licenseops/licenseops/testing"
)

type stubRepo struct {
	mu      sync.Mutex
	user    *auth.User
	touched int
}

func (s *stubRepo) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || !strings.EqualFold(s.user.Username, username) {
		return nil, shared.ErrNotFound
	}
	u := *s.user
	return &u, nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.PasswordHash = passwordHash
	s.user.PasswordChangeRequired = false
	return nil
}

func (s *stubRepo) TouchLogin(ctx context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched++
	return nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

type harness struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
}

func newAuthHandler(t *testing.T, repo auth.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	handler := auth.NewHandler(nil, auth.NewService(repo), templates, sessionManager, csrfManager)
	return &harness{handler: handler, sessions: sessionManager, csrf: csrfManager}
}

// serve runs fn with the session and principal loaded from req, then commits the session.
func (h *harness) serve(t *testing.T, req *http.Request, fn http.HandlerFunc) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := h.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	ctx = access.WithPrincipal(ctx, sess.Principal())
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	fn(res, req)
	if err := h.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

// primed returns a committed session holding a CSRF token.
func (h *harness) primed(t *testing.T) *shared.Session {
	t.Helper()
	_, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), h.handler.ShowLoginForTest)
	if sess.Get(shared.CSRFSessionKey) == "" {
		t.Fatalf("csrf token not set")
	}
	return sess
}

func formRequest(path string, sess *shared.Session, cookie string, values url.Values) *http.Request {
	values.Set(shared.CSRFFormField, sess.Get(shared.CSRFSessionKey))
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: cookie, Value: sess.ID})
	return req
}

func TestLoginPage(t *testing.T) {
	h := newAuthHandler(t, &stubRepo{})
	res, _ := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), h.handler.ShowLoginForTest)
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "<form") || !strings.Contains(body, `name="username"`) {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 1, Username: "asha", PasswordHash: hashed(t, "correctpass"), Role: access.RoleAdmin, IsActive: true}}
	h := newAuthHandler(t, repo)
	sess := h.primed(t)

	req := formRequest("/auth/login", sess, h.sessions.CookieName(), url.Values{"username": {"asha"}, "password": {"wrongpass"}})
	res, after := h.serve(t, req, h.handler.HandleLoginForTest)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid username or password") {
		t.Fatalf("expected error message in response")
	}
	if after.Principal().Authenticated() {
		t.Fatalf("principal must not be stored on failure")
	}
}

func TestLoginValidationErrors(t *testing.T) {
	h := newAuthHandler(t, &stubRepo{})
	sess := h.primed(t)

	req := formRequest("/auth/login", sess, h.sessions.CookieName(), url.Values{"username": {"  "}, "password": {""}})
	res, _ := h.serve(t, req, h.handler.HandleLoginForTest)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "This field is required") {
		t.Fatalf("expected required field message")
	}
}

func TestLoginInactiveUserRejected(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 1, Username: "ravi", PasswordHash: hashed(t, "secretpass"), Role: access.RoleNetworkEngineer}}
	h := newAuthHandler(t, repo)
	sess := h.primed(t)

	req := formRequest("/auth/login", sess, h.sessions.CookieName(), url.Values{"username": {"ravi"}, "password": {"secretpass"}})
	res, _ := h.serve(t, req, h.handler.HandleLoginForTest)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if repo.touched != 0 {
		t.Fatalf("inactive login must not be recorded")
	}
}

func TestLoginSuccessRotatesSession(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 7, Username: "asha", PasswordHash: hashed(t, "correctpass"), Role: access.RoleComplianceOfficer, Region: "PUNE", IsActive: true}}
	h := newAuthHandler(t, repo)
	var dropped []string
	h.handler.OnSignOut(func(id string) { dropped = append(dropped, id) })
	sess := h.primed(t)
	oldID := sess.ID

	req := formRequest("/auth/login", sess, h.sessions.CookieName(), url.Values{"username": {"ASHA"}, "password": {"correctpass"}})
	res, after := h.serve(t, req, h.handler.HandleLoginForTest)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
	if after.ID == oldID {
		t.Fatalf("session id must change on login")
	}
	principal := after.Principal()
	if principal.Username != "asha" || principal.Role != access.RoleComplianceOfficer || principal.Region != "PUNE" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if len(dropped) != 1 || dropped[0] != oldID {
		t.Fatalf("expected previous session to be released, got %v", dropped)
	}
	if repo.touched != 1 {
		t.Fatalf("expected login to be recorded")
	}
	flashes := after.Flashes()
	if len(flashes) != 1 || flashes[0].Message != "Welcome back, asha" {
		t.Fatalf("unexpected flashes %+v", flashes)
	}
}

func TestLoginRedirectsToPasswordChange(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Username: "admin", PasswordHash: hashed(t, "changeme1"), Role: access.RoleAdmin, IsActive: true, PasswordChangeRequired: true}}
	h := newAuthHandler(t, repo)
	sess := h.primed(t)

	req := formRequest("/auth/login", sess, h.sessions.CookieName(), url.Values{"username": {"admin"}, "password": {"changeme1"}})
	res, after := h.serve(t, req, h.handler.HandleLoginForTest)
	if loc := res.Header().Get("Location"); loc != "/auth/password" {
		t.Fatalf("expected password change redirect, got %q", loc)
	}
	if !after.Principal().PasswordChangeRequired {
		t.Fatalf("principal should carry the pending change flag")
	}
}

func signedIn(t *testing.T, h *harness, principal access.Principal) *shared.Session {
	t.Helper()
	sess := h.primed(t)
	sess.SetPrincipal(principal)
	res := httptest.NewRecorder()
	if err := h.sessions.Commit(context.Background(), res, httptest.NewRequest(http.MethodGet, "/", nil), sess); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return sess
}

func TestPasswordChangeMismatch(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Username: "admin", PasswordHash: hashed(t, "changeme1"), Role: access.RoleAdmin, IsActive: true, PasswordChangeRequired: true}}
	h := newAuthHandler(t, repo)
	sess := signedIn(t, h, repo.user.Principal())

	req := formRequest("/auth/password", sess, h.sessions.CookieName(), url.Values{
		"current_password": {"changeme1"},
		"new_password":     {"n3w-secret"},
		"confirm_password": {"other-secret"},
	})
	res, _ := h.serve(t, req, h.handler.HandlePasswordForTest)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Passwords do not match") {
		t.Fatalf("expected mismatch message")
	}
}

func TestPasswordChangeWrongCurrent(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Username: "admin", PasswordHash: hashed(t, "changeme1"), Role: access.RoleAdmin, IsActive: true}}
	h := newAuthHandler(t, repo)
	sess := signedIn(t, h, repo.user.Principal())

	req := formRequest("/auth/password", sess, h.sessions.CookieName(), url.Values{
		"current_password": {"nope-nope"},
		"new_password":     {"n3w-secret"},
		"confirm_password": {"n3w-secret"},
	})
	res, _ := h.serve(t, req, h.handler.HandlePasswordForTest)
	if !strings.Contains(res.Body.String(), "Current password is incorrect") {
		t.Fatalf("expected current password message, got %d", res.Code)
	}
}

func TestPasswordChangeSuccess(t *testing.T) {
	repo := &stubRepo{user: &auth.User{ID: 2, Username: "admin", PasswordHash: hashed(t, "changeme1"), Role: access.RoleAdmin, IsActive: true, PasswordChangeRequired: true}}
	h := newAuthHandler(t, repo)
	sess := signedIn(t, h, repo.user.Principal())

	req := formRequest("/auth/password", sess, h.sessions.CookieName(), url.Values{
		"current_password": {"changeme1"},
		"new_password":     {"n3w-secret"},
		"confirm_password": {"n3w-secret"},
	})
	res, after := h.serve(t, req, h.handler.HandlePasswordForTest)
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if after.Principal().PasswordChangeRequired {
		t.Fatalf("flag should be cleared")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(repo.user.PasswordHash), []byte("n3w-secret")); err != nil {
		t.Fatalf("hash not updated: %v", err)
	}
}
