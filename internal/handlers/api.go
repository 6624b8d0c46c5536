package handlers

import (
	"alsolved/internal/catalog"
	"alsolved/internal/logger"
	"alsolved/internal/models"
	"alsolved/internal/regions"
	"alsolved/internal/sentry"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

const maxAPIPageSize = 100

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Error("handlers: json encode failed", map[string]interface{}{"error": err.Error()})
		sentryutil.CaptureError(err, map[string]string{"component": "api"})
		http.Error(w, `{"error":"errore interno"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

type listResponse struct {
	Items    []models.GrantRecord `json:"items"`
	HasMore  bool                 `json:"has_more"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Degraded bool                 `json:"degraded,omitempty"`
}

// APIListHandler answers GET /api/bandi?q=&regione=&stato=&page=&size=.
func (s *Site) APIListHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size := s.pageSize()
	if n, err := strconv.Atoi(q.Get("size")); err == nil && n > 0 {
		size = min(n, maxAPIPageSize)
	}
	st := catalog.ParseState(q, size)
	res := s.Catalog.Run(r.Context(), st)

	if res.Failed {
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=60")
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:    res.Items,
		HasMore:  res.HasMore,
		Total:    res.Total,
		Page:     res.Page,
		PageSize: size,
		Degraded: res.Failed,
	})
}

// APIDetailHandler answers GET /api/bandi/{id}.
func (s *Site) APIDetailHandler(w http.ResponseWriter, r *http.Request) {
	g, err := s.Catalog.Lookup(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, g)
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "bando non trovato"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalogo non disponibile"})
	}
}

// RegionsHandler lists the values accepted by the regione filter.
func RegionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, regions.Options())
}

// DocumentHandler republishes the whole document as bandi.json.
func (s *Site) DocumentHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.Catalog.All(r.Context())
	if err != nil {
		logger.Warn("handlers: document unavailable", map[string]interface{}{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalogo non disponibile"})
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, all)
}
