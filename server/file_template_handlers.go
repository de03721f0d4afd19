package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-security-portal/internal/utils"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const layoutTemplate = "layout.html"

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"money": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006 15:04")
	},
	"duration": func(d time.Duration) string {
		return d.Truncate(time.Minute).String()
	},
	"deref":    utils.Value[string],
	"route":    routeWith,
	"deadline": paymentDeadline,
	"adminArea": func(path string) bool {
		return path == "/admin" || strings.HasPrefix(path, "/admin/")
	},
}

// parsePage parses a content template together with the shared layout
func parsePage(name string) (*template.Template, error) {
	return template.New(layoutTemplate).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), layoutTemplate, name)
}

func mustParsePage(name string) *template.Template {
	tmpl, err := parsePage(name)
	if err != nil {
		panic("Failed to parse " + name + " template: " + err.Error())
	}
	return tmpl
}

// PageData is the model every page template receives
type PageData struct {
	AppName    string
	Title      string
	ActivePage string
	Path       string
	User       *users.User
	Error      string
	Notice     string
	Data       any
}

// renderPage fills the shared fields and writes the page. The page is rendered to a buffer
// first so a template error never leaves a half written response.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, tmpl *template.Template, status int, data PageData) {
	data.AppName = s.config.GetAppName()
	data.Path = r.URL.Path
	if data.User == nil {
		if sess := portalSession(r); sess != nil {
			if state := sess.Provider.State(); state.Authenticated() {
				data.User = state.User
			}
		}
	}
	if data.Error == "" {
		data.Error = r.URL.Query().Get("error")
	}
	if data.Notice == "" {
		data.Notice = r.URL.Query().Get("notice")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

const contentTypeHTML = "text/html; charset=utf-8"
