package handlers

import (
	"alsolved/internal/config"
	"net/http"
	"strings"
)

// isAPI works both inside Mount (prefix stripped) and in front of it.
func isAPI(r *http.Request) bool {
	return strings.HasPrefix(strings.TrimPrefix(r.URL.Path, config.Cfg.BasePath), "/api/")
}

// NotFoundHandler serves the 404 page, or a JSON error for API routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "endpoint non trovato"})
		return
	}
	errorPage(w, notFoundPage)
}

// InternalErrorHandler serves the 500 page, or a JSON error for API routes.
func InternalErrorHandler(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "errore interno"})
		return
	}
	errorPage(w, internalErrorPage)
}
