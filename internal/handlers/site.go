package handlers

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/content"
	"alsolved/internal/datasource"
	"alsolved/internal/filter"
	"alsolved/internal/mailto"
	"alsolved/internal/regions"
	"alsolved/internal/report"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrPageNotFound is returned by Page for an unknown slug.
var ErrPageNotFound = errors.New("handlers: page not found")

const featuredCount = 3

// Site renders the public pages of the catalog. The same renderers back the
// HTTP handlers and the static build.
type Site struct {
	Catalog *catalog.Pipeline
	// Cache is optional; when set, health reports its stats.
	Cache *datasource.Cache
	// Static renders links for a static host: no filter form, pagination
	// through /catalogo/pagina/N/.
	Static   bool
	PageSize int
}

// NewSite builds a site over the pipeline with the configured page size.
func NewSite(p *catalog.Pipeline) *Site {
	return &Site{Catalog: p, PageSize: config.Cfg.PageSize}
}

func (s *Site) now() time.Time {
	if s.Catalog != nil && s.Catalog.Now != nil {
		return s.Catalog.Now()
	}
	return time.Now()
}

func (s *Site) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return catalog.DefaultPageSize
}

// Home renders the landing page with the first few active grants.
func (s *Site) Home(ctx context.Context, w io.Writer) error {
	page, ok := content.BySlug("home")
	if !ok {
		return ErrPageNotFound
	}
	st := catalog.NewState(featuredCount).WithStatus(filter.StatusActive)
	res := s.Catalog.Run(ctx, st)
	return render(w, "home", layoutData{
		Title:       page.Title,
		Description: page.Description,
		Canonical:   "/",
		Body: struct {
			Page     content.Page
			Featured []grantView
		}{page, cardViews(res.Items, s.now())},
	})
}

// Page renders one informational page by slug.
func (s *Site) Page(w io.Writer, slug string) error {
	page, ok := content.BySlug(slug)
	if !ok {
		return ErrPageNotFound
	}
	return render(w, "page", layoutData{
		Title:       page.Title,
		Description: page.Description,
		Canonical:   "/" + slug + "/",
		Active:      slug,
		Body:        struct{ Page content.Page }{page},
	})
}

// Contact renders the contact form, optionally prefilled with a rejected
// submission and its problems.
func (s *Site) Contact(w io.Writer, form mailto.ContactForm, problems []string) error {
	return render(w, "contatti", layoutData{
		Title:       "Contatti | AlSolved",
		Description: "Scrivi ad AlSolved per una consulenza sulla finanza agevolata.",
		Canonical:   "/contatti/",
		Active:      "contatti",
		Body: struct {
			Form   mailto.ContactForm
			Errors []string
			To     string
		}{form, problems, config.Cfg.ContactEmail},
	})
}

type catalogData struct {
	State      catalog.State
	Status     string
	Regions    []string
	Items      []grantView
	Total      int
	Page       int
	HasPrev    bool
	HasMore    bool
	PrevHref   string
	NextHref   string
	Static     bool
	DebounceMS int64
}

// CatalogPage runs the pipeline for st and renders the resulting page.
func (s *Site) CatalogPage(ctx context.Context, w io.Writer, st catalog.State) (catalog.Result, error) {
	st = st.Normalize()
	res := s.Catalog.Run(ctx, st)
	data := catalogData{
		State:      st,
		Status:     string(st.Status),
		Regions:    regions.Options(),
		Items:      cardViews(res.Items, s.now()),
		Total:      res.Total,
		Page:       st.Page,
		HasPrev:    st.Page > 1,
		HasMore:    res.HasMore,
		PrevHref:   s.pageHref(st.Prev()),
		NextHref:   s.pageHref(st.Next()),
		Static:     s.Static,
		DebounceMS: config.Cfg.SearchDebounce.Milliseconds(),
	}
	canonical := "/catalogo/"
	if !st.Filtered() && st.Page > 1 {
		canonical = fmt.Sprintf("/catalogo/pagina/%d/", st.Page)
	}
	err := render(w, "catalogo", layoutData{
		Title:       "Catalogo Bandi | AlSolved",
		Description: "Monitoraggio bandi e finanza agevolata in tempo reale.",
		Canonical:   canonical,
		Active:      "catalogo",
		NoIndex:     st.Filtered(),
		Body:        data,
	})
	return res, err
}

func (s *Site) pageHref(st catalog.State) string {
	if s.Static || !st.Filtered() {
		if st.Page <= 1 {
			return config.Cfg.Path("/catalogo/")
		}
		return config.Cfg.Path(fmt.Sprintf("/catalogo/pagina/%d/", st.Page))
	}
	return config.Cfg.Path("/catalogo/") + "?" + st.Values().Encode()
}

// Detail renders the page of one grant. Unknown ids return
// catalog.ErrNotFound.
func (s *Site) Detail(ctx context.Context, w io.Writer, id string) error {
	g, err := s.Catalog.Lookup(ctx, id)
	if err != nil {
		return err
	}
	v := detailView(g, s.now())
	desc := v.Summary
	if desc == summaryMissing {
		desc = "Scheda del bando su AlSolved."
	}
	return render(w, "bando", layoutData{
		Title:       v.Title + " | AlSolved",
		Description: desc,
		Canonical:   v.Href,
		Active:      "catalogo",
		Body:        struct{ Grant grantView }{v},
	})
}

// Sheet writes the PDF summary of one grant.
func (s *Site) Sheet(ctx context.Context, w io.Writer, id string) error {
	g, err := s.Catalog.Lookup(ctx, id)
	if err != nil {
		return err
	}
	return report.GrantSheet(w, g, s.now())
}

type errorData struct {
	Code      int
	Title     string
	Message   string
	Back      string
	BackLabel string
}

func renderError(w io.Writer, d errorData) error {
	if d.Back == "" {
		d.Back, d.BackLabel = "/", "Torna alla home"
	}
	return render(w, "error", layoutData{
		Title:   d.Title + " | AlSolved",
		NoIndex: true,
		Body:    d,
	})
}

// NotFound renders the 404 page.
func (s *Site) NotFound(w io.Writer) error {
	return renderError(w, notFoundPage)
}

var (
	notFoundPage = errorData{
		Code: 404, Title: "Pagina non trovata",
		Message: "La pagina che cerchi non esiste o è stata spostata.",
	}
	grantNotFoundPage = errorData{
		Code: 404, Title: "Bando non trovato",
		Message:   "Il bando richiesto non è presente nel catalogo.",
		Back:      "/catalogo/",
		BackLabel: "Torna al Catalogo",
	}
	unavailablePage = errorData{
		Code: 503, Title: "Catalogo non disponibile",
		Message:   "Non riusciamo a leggere i bandi in questo momento. Riprova tra qualche istante.",
		Back:      "/catalogo/",
		BackLabel: "Torna al Catalogo",
	}
	internalErrorPage = errorData{
		Code: 500, Title: "Errore del server",
		Message: "Si è verificato un errore. Riprova tra qualche istante.",
	}
)

// buffered renders into memory so that a failing template never leaves a
// half-written response.
func buffered(fn func(w io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
