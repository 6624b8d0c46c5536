package handlers

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthHandler reports uptime and, when a cache is attached, the state of
// the last document load.
func (s *Site) HealthHandler(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(startTime)
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
	}
	if s.Cache != nil {
		st := s.Cache.Stats()
		resp["records"] = st.Records
		resp["cache"] = st
		if st.LoadedAt.IsZero() {
			resp["status"] = "starting"
		} else {
			resp["data_age_seconds"] = int(time.Since(st.LoadedAt).Seconds())
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

type urlSet struct {
	XMLName xml.Name  `xml:"urlset"`
	XMLNS   string    `xml:"xmlns,attr"`
	URLs    []siteURL `xml:"url"`
}

type siteURL struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

var staticPages = []siteURL{
	{Loc: "/", ChangeFreq: "daily", Priority: "1.0"},
	{Loc: "/catalogo/", ChangeFreq: "daily", Priority: "0.9"},
	{Loc: "/servizi/", ChangeFreq: "monthly", Priority: "0.6"},
	{Loc: "/chi-siamo/", ChangeFreq: "monthly", Priority: "0.5"},
	{Loc: "/contatti/", ChangeFreq: "yearly", Priority: "0.5"},
}

// Sitemap writes the sitemap of the fixed pages and every grant. When the
// document is unavailable only the fixed pages are listed.
func (s *Site) Sitemap(ctx context.Context, w io.Writer) error {
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPages {
		p.Loc = config.Cfg.URL(p.Loc)
		set.URLs = append(set.URLs, p)
	}
	ids, err := s.Catalog.IDs(ctx)
	if err != nil {
		logger.Warn("sitemap: grants omitted", map[string]interface{}{"error": err.Error()})
	}
	for _, id := range ids {
		set.URLs = append(set.URLs, siteURL{Loc: config.Cfg.URL(grantPath(id)), ChangeFreq: "weekly", Priority: "0.7"})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(set)
}

func (s *Site) SitemapHandler(w http.ResponseWriter, r *http.Request) {
	body, err := buffered(func(w io.Writer) error { return s.Sitemap(r.Context(), w) })
	if err != nil {
		InternalErrorHandler(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(body)
}

// Robots writes robots.txt for the configured base path.
func Robots(w io.Writer) error {
	_, err := fmt.Fprintf(w, "User-agent: *\nAllow: %s\nDisallow: %s\n\nSitemap: %s\n",
		config.Cfg.Path("/"), config.Cfg.Path("/api/"), config.Cfg.URL("/sitemap.xml"))
	return err
}

func RobotsTxtHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	Robots(w)
}
