package handlers

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"alsolved/internal/mailto"
	"alsolved/internal/sentry"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Routes registers every page, API and infrastructure endpoint. Paths are
// relative to the deployment base path; Mount adds it.
func (s *Site) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HomeHandler)
	mux.HandleFunc("GET /servizi/{$}", s.PageHandler("servizi"))
	mux.HandleFunc("GET /chi-siamo/{$}", s.PageHandler("chi-siamo"))
	mux.HandleFunc("GET /contatti/{$}", s.ContactHandler)
	mux.HandleFunc("POST /contatti/{$}", s.ContactSubmitHandler)
	mux.HandleFunc("GET /catalogo/{$}", s.CatalogHandler)
	mux.HandleFunc("GET /catalogo/pagina/{n}/{$}", s.CatalogPageHandler)
	mux.HandleFunc("GET /catalogo/{id}/{$}", s.DetailHandler)
	mux.HandleFunc("GET /catalogo/{id}/scheda.pdf", s.SheetHandler)
	for _, p := range []string{"/servizi", "/chi-siamo", "/contatti", "/catalogo", "/catalogo/{id}"} {
		mux.HandleFunc("GET "+p, addSlash)
	}

	mux.HandleFunc("GET /api/bandi", s.APIListHandler)
	mux.HandleFunc("GET /api/bandi/{id}", s.APIDetailHandler)
	mux.HandleFunc("GET /api/regioni", RegionsHandler)
	mux.HandleFunc("GET /api/health", s.HealthHandler)

	mux.HandleFunc("GET /bandi.json", s.DocumentHandler)
	mux.HandleFunc("GET /sitemap.xml", s.SitemapHandler)
	mux.HandleFunc("GET /robots.txt", RobotsTxtHandler)

	mux.HandleFunc("/", NotFoundHandler)
	return mux
}

// Mount serves h under the configured base path and redirects the bare root
// to it.
func Mount(h http.Handler) http.Handler {
	base := config.Cfg.BasePath
	if base == "" {
		return h
	}
	outer := http.NewServeMux()
	outer.Handle(base+"/", http.StripPrefix(base, h))
	outer.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, base+"/", http.StatusMovedPermanently)
	})
	outer.HandleFunc("/", NotFoundHandler)
	return outer
}

func addSlash(w http.ResponseWriter, r *http.Request) {
	target := config.Cfg.Path(r.URL.Path + "/")
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// serve renders fn and answers 200, or the internal error page when
// rendering fails.
func serve(w http.ResponseWriter, r *http.Request, fn func(w io.Writer) error) {
	body, err := buffered(fn)
	if err != nil {
		logger.Error("handlers: render failed", map[string]interface{}{
			"path": r.URL.Path, "error": err.Error(),
		})
		sentryutil.CaptureErrorContext(r.Context(), err, map[string]string{"endpoint": r.URL.Path})
		InternalErrorHandler(w, r)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

func (s *Site) HomeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	serve(w, r, func(w io.Writer) error { return s.Home(r.Context(), w) })
}

// PageHandler serves one informational page.
func (s *Site) PageHandler(slug string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		serve(w, r, func(w io.Writer) error { return s.Page(w, slug) })
	}
}

func (s *Site) ContactHandler(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(w io.Writer) error { return s.Contact(w, mailto.ContactForm{}, nil) })
}

// ContactSubmitHandler validates the form and hands the message to the
// visitor's mail client through a mailto redirect.
func (s *Site) ContactSubmitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Richiesta non valida", http.StatusBadRequest)
		return
	}
	form := mailto.ContactForm{
		Azienda:   r.PostFormValue("azienda"),
		Email:     r.PostFormValue("email"),
		Settore:   r.PostFormValue("settore"),
		Messaggio: r.PostFormValue("messaggio"),
	}.Normalize()

	if err := form.Validate(); err != nil {
		body, rerr := buffered(func(w io.Writer) error { return s.Contact(w, form, formProblems(err)) })
		if rerr != nil {
			InternalErrorHandler(w, r)
			return
		}
		writeHTML(w, http.StatusUnprocessableEntity, body)
		return
	}
	logger.Info("contact: mailto prepared", map[string]interface{}{"settore": form.Settore})
	http.Redirect(w, r, form.URI(config.Cfg.ContactEmail), http.StatusSeeOther)
}

func formProblems(err error) []string {
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	var out []string
	for _, e := range errs {
		switch {
		case errors.Is(e, mailto.ErrMissingEmail):
			out = append(out, "Inserisci un indirizzo email.")
		case errors.Is(e, mailto.ErrInvalidEmail):
			out = append(out, "L'indirizzo email non sembra valido.")
		case errors.Is(e, mailto.ErrMissingMessage):
			out = append(out, "Scrivi un messaggio.")
		default:
			out = append(out, strings.TrimPrefix(e.Error(), "mailto: "))
		}
	}
	return out
}

// CatalogHandler runs the query string through the catalog pipeline.
func (s *Site) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	st := catalog.ParseState(r.URL.Query(), s.pageSize())
	s.serveCatalog(w, r, st)
}

// CatalogPageHandler serves the unfiltered pages of the static layout.
func (s *Site) CatalogPageHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		NotFoundHandler(w, r)
		return
	}
	s.serveCatalog(w, r, catalog.NewState(s.pageSize()).WithPage(n))
}

func (s *Site) serveCatalog(w http.ResponseWriter, r *http.Request, st catalog.State) {
	var res catalog.Result
	body, err := buffered(func(w io.Writer) error {
		var rerr error
		res, rerr = s.CatalogPage(r.Context(), w, st)
		return rerr
	})
	if err != nil {
		logger.Error("handlers: catalog render failed", map[string]interface{}{"error": err.Error()})
		InternalErrorHandler(w, r)
		return
	}
	if res.Failed {
		w.Header().Set("Cache-Control", "no-store")
	}
	writeHTML(w, http.StatusOK, body)
}

// DetailHandler serves one grant page, 404 for unknown ids.
func (s *Site) DetailHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := buffered(func(w io.Writer) error { return s.Detail(r.Context(), w, id) })
	if err != nil {
		s.lookupFailed(w, r, id, err)
		return
	}
	writeHTML(w, http.StatusOK, body)
}

// SheetHandler serves the PDF summary of one grant.
func (s *Site) SheetHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := buffered(func(w io.Writer) error { return s.Sheet(r.Context(), w, id) })
	if err != nil {
		s.lookupFailed(w, r, id, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="bando-`+safeFilename(id)+`.pdf"`)
	w.Write(body)
}

func (s *Site) lookupFailed(w http.ResponseWriter, r *http.Request, id string, err error) {
	page := unavailablePage
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		page = grantNotFoundPage
	case errors.Is(err, catalog.ErrFetch):
		logger.Warn("handlers: detail unavailable", map[string]interface{}{"id": id, "error": err.Error()})
	default:
		logger.Error("handlers: detail render failed", map[string]interface{}{"id": id, "error": err.Error()})
		sentryutil.CaptureErrorContext(r.Context(), err, map[string]string{"endpoint": "detail", "grant_id": id})
		page = internalErrorPage
	}
	errorPage(w, page)
}

func errorPage(w http.ResponseWriter, page errorData) {
	body, err := buffered(func(w io.Writer) error { return renderError(w, page) })
	if err != nil {
		http.Error(w, page.Title, page.Code)
		return
	}
	writeHTML(w, page.Code, body)
}

func safeFilename(id string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, id)
}
