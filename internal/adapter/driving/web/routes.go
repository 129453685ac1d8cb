package web

import (
	"io/fs"
	"log"
	"net/http"
)

// RegisterRoutes registers the status dashboard route and its static
// assets on the provided mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	staticFS, err := fs.Sub(StaticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-filesystem: %v", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("GET /{$}", h.Dashboard)
}
