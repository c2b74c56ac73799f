package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Principal   access.Principal
	Menu        access.Menu
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		// can mirrors access.ShouldRender for inline controls: {{if can .Principal.Role "ADMIN" "IT_AUDITOR"}}.
		"can": func(role access.Role, roles ...string) bool {
			allowed := make([]access.Role, len(roles))
			for i, r := range roles {
				allowed[i] = access.Role(r)
			}
			return access.ShouldRender(role, access.Allow(allowed...))
		},
		"active": func(current, path string) bool {
			if path == "/" {
				return current == "/"
			}
			return current == path || strings.HasPrefix(current, path+"/")
		},
		"humanize": func(r access.Role) string {
			words := strings.Split(strings.ToLower(string(r)), "_")
			for i, w := range words {
				if w != "" {
					words[i] = strings.ToUpper(w[:1]) + w[1:]
				}
			}
			return strings.Join(words, " ")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}
