package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderHomeFiltersMenuByRole(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	principal := access.Principal{Username: "ravi", Role: access.RoleNetworkEngineer}
	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/home.html", TemplateData{
		Title:       "Home",
		CurrentPath: "/",
		Principal:   principal,
		Menu:        access.VisibleMenu(principal.Role, access.DefaultMenu()),
		Flash:       &shared.FlashMessage{Kind: "success", Message: "Welcome back"},
		Data:        map[string]any{"AppEnv": "test", "BackendURL": "http://backend"},
	})
	require.NoError(t, err)
	body := rr.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, body, "Network Engineer")
	assert.Contains(t, body, "Welcome back")
	assert.Contains(t, body, "Devices")
	assert.NotContains(t, body, "Compliance")
	assert.NotContains(t, body, "http://backend")
}

func TestRenderHomeAdminSeesBackend(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	principal := access.Principal{Username: "root", Role: access.RoleAdmin}
	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "pages/home.html", TemplateData{
		Principal: principal,
		Menu:      access.VisibleMenu(principal.Role, access.DefaultMenu()),
		Data:      map[string]any{"AppEnv": "test", "BackendURL": "http://backend"},
	}))
	assert.Contains(t, rr.Body.String(), "http://backend")
	assert.Contains(t, rr.Body.String(), "Compliance")
}

func TestRenderLoginAnonymous(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "pages/error.html", TemplateData{Title: "Forbidden", Data: "You cannot open this page."}))
	assert.Contains(t, rr.Body.String(), "You cannot open this page.")
	assert.NotContains(t, rr.Body.String(), "Sign out")
}

func TestNilEngine(t *testing.T) {
	var engine *Engine
	assert.Error(t, engine.Render(httptest.NewRecorder(), "pages/home.html", TemplateData{}))
}
