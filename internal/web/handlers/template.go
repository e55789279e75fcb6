package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"github.com/shindakun/resetpassword/internal/reset"
	"github.com/shindakun/resetpassword/internal/version"
	"github.com/shindakun/resetpassword/internal/web/assets"
)

// pages lists the templates rendered inside the base layout
var pages = []string{"login", "reset_password", "not_found"}

// TemplateData holds common data passed to templates
type TemplateData struct {
	Title   string
	Error   string
	Message string
	Email   string // For login form - repopulates email after a failed sign-in

	View         reset.View
	MessageClass string
	MinLength    int
	LastReset    *time.Time // Last successful reset, when the audit trail is enabled

	LoginPath      string
	RefreshURL     string
	RefreshSeconds int

	Version   string        // Application version
	CSRFField template.HTML // Hidden CSRF input for forms
}

// templateFuncs returns custom template functions
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Local().Format("02/01/2006 15:04")
		},
	}
}

// parseTemplates parses every page together with the base layout
func parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		tmpl, err := template.New(name).Funcs(templateFuncs()).ParseFS(assets.FS,
			"templates/layouts/base.html",
			"templates/pages/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// renderTemplate renders a page with the base layout. The page is executed
// into a buffer so a template error still produces a clean 500.
func (h *Handlers) renderTemplate(w http.ResponseWriter, r *http.Request, status int, templateName string, data TemplateData) error {
	tmpl, ok := h.templates[templateName]
	if !ok {
		return fmt.Errorf("unknown template: %s", templateName)
	}

	// Add CSRF field and shared values to template data
	data.CSRFField = csrf.TemplateField(r)
	data.Version = version.GetVersion()
	if data.LoginPath == "" {
		data.LoginPath = h.loginPath()
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// staticFS returns the embedded static directory
func staticFS() (fs.FS, error) {
	return fs.Sub(assets.FS, "static")
}
