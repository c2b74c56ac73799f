package access

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRenderEmptyAllowList(t *testing.T) {
	candidates := append(Roles(), "", "JANITOR")
	for _, role := range candidates {
		assert.True(t, ShouldRender(role, nil), "nil allow-list for %q", role)
		assert.True(t, ShouldRender(role, AllowList{}), "empty allow-list for %q", role)
	}
}

func TestShouldRenderMembership(t *testing.T) {
	allowed := Allow(RoleAdmin, RoleComplianceLead)
	for _, role := range Roles() {
		want := role == RoleAdmin || role == RoleComplianceLead
		assert.Equal(t, want, ShouldRender(role, allowed), "role %s", role)
	}
}

func TestShouldRenderUnknownRole(t *testing.T) {
	allowed := Allow(Roles()...)
	assert.False(t, ShouldRender("JANITOR", allowed))
	assert.False(t, ShouldRender("", allowed))
	assert.False(t, ShouldRender("admin", allowed))
}

func TestNetworkEngineerScenario(t *testing.T) {
	assert.False(t, ShouldRender(RoleNetworkEngineer, Allow(RoleAdmin, RoleNetworkAdmin)))
	assert.True(t, ShouldRender(RoleNetworkEngineer, Allow(RoleNetworkEngineer)))
}

func TestAllowIgnoresBlankRoles(t *testing.T) {
	list := Allow("", "  ")
	assert.Empty(t, list)
	assert.True(t, AccessRule{AllowedRoles: list}.Permits("anyone"))
}

func TestVisibleMenuPreservesOrder(t *testing.T) {
	menu := Menu{
		{Key: "m1", AllowedRoles: []Role{RoleAdmin}},
		{Key: "m2"},
		{Key: "m3", AllowedRoles: []Role{RoleAdmin, RoleITAuditor}},
		{Key: "m4", AllowedRoles: []Role{RoleProductOwner}},
	}
	keys := func(m Menu) []string {
		out := make([]string, 0, len(m))
		for _, e := range m {
			out = append(out, e.Key)
		}
		return out
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, keys(VisibleMenu(RoleAdmin, menu)))
	assert.Equal(t, []string{"m2", "m3"}, keys(VisibleMenu(RoleITAuditor, menu)))
	assert.Equal(t, []string{"m2"}, keys(VisibleMenu("", menu)))
	assert.Len(t, menu, 4)
}

func TestDefaultMenu(t *testing.T) {
	menu := DefaultMenu()
	require.NotEmpty(t, menu)

	var devices *MenuEntry
	for i := range menu {
		if menu[i].Key == "devices" {
			devices = &menu[i]
		}
	}
	require.NotNil(t, devices)
	assert.Empty(t, devices.AllowedRoles)

	engineer := VisibleMenu(RoleNetworkEngineer, menu)
	for _, entry := range engineer {
		assert.NotEqual(t, "compliance", entry.Key)
		assert.NotEqual(t, "jobs", entry.Key)
	}
	assert.Len(t, VisibleMenu(RoleAdmin, menu), len(menu))
}

func TestLoadMenuRejectsUnknownRole(t *testing.T) {
	_, err := LoadMenu(strings.NewReader("- key: x\n  label: X\n  path: /x\n  roles: [WIZARD]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WIZARD")
}

func TestLoadMenuRejectsDuplicateKeys(t *testing.T) {
	_, err := LoadMenu(strings.NewReader("- key: x\n- key: x\n"))
	require.Error(t, err)
}

func TestLoadMenuEmpty(t *testing.T) {
	menu, err := LoadMenu(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, menu)
}

func TestRequireRoles(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	guarded := mw.RequireRoles(RoleAdmin, RoleNetworkAdmin)(ok)

	cases := []struct {
		name      string
		principal Principal
		want      int
	}{
		{"anonymous", Principal{}, http.StatusForbidden},
		{"engineer", Principal{Username: "eng", Role: RoleNetworkEngineer}, http.StatusForbidden},
		{"admin", Principal{Username: "root", Role: RoleAdmin}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), tc.principal))
			rr := httptest.NewRecorder()
			guarded.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestRequireSignedInRedirects(t *testing.T) {
	mw := Middleware{LoginURL: "/auth/login"}
	handler := mw.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestLoadMenuFile(t *testing.T) {
	menu, err := LoadMenuFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMenu(), menu)

	path := filepath.Join(t.TempDir(), "menu.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- key: devices\n  label: Devices\n  path: /reports?type=devices\n  roles: [ADMIN]\n"), 0o600))
	menu, err = LoadMenuFile(path)
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.False(t, menu[0].Rule().Permits(RoleNetworkEngineer))

	_, err = LoadMenuFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
