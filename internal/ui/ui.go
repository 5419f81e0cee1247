// Package ui serves the static pages: a landing page pointing at the manifest,
// the iframe shell the dashboard loads, and the HTML 404 page.
package ui

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storeapp/internal/manifest"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Name        string
	ManifestURL string
}

// RegisterRoutes mounts / and /app and installs the 404 page on r.
func RegisterRoutes(r chi.Router, appName string, log *zap.SugaredLogger) {
	render := func(w http.ResponseWriter, status int, name string, data any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := pages.ExecuteTemplate(w, name, data); err != nil {
			log.Errorw("render page", "page", name, "err", err)
		}
	}
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		render(w, http.StatusOK, "landing.html", pageData{
			Name:        appName,
			ManifestURL: manifest.BaseURLFromRequest(req) + "/manifest",
		})
	})
	r.Get("/app", func(w http.ResponseWriter, req *http.Request) {
		render(w, http.StatusOK, "app.html", pageData{Name: appName})
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		render(w, http.StatusNotFound, "notfound.html", nil)
	})
}
