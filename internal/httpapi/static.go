package httpapi

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed static/*
var embeddedStatic embed.FS

// dashboardHandler serves the embedded dashboard. Paths that do not name an
// embedded asset fall back to index.html so tab routes like /ui/history load.
type dashboardHandler struct {
	assets fs.FS
	files  http.Handler
}

func newStaticHandler() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return &dashboardHandler{assets: sub, files: http.FileServer(http.FS(sub))}
}

func (h *dashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == "index.html" || !h.exists(name) {
		h.serveIndex(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	h.files.ServeHTTP(w, r)
}

func (h *dashboardHandler) exists(name string) bool {
	info, err := fs.Stat(h.assets, name)
	return err == nil && !info.IsDir()
}

func (h *dashboardHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	body, err := fs.ReadFile(h.assets, "index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
