package handlers

import (
	"alsolved/internal/config"
	"alsolved/internal/filter"
	"alsolved/internal/htmltext"
	"alsolved/internal/logger"
	"alsolved/internal/mailto"
	"alsolved/internal/models"
	"alsolved/internal/regions"
	"embed"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	cardRegions    = 4
	detailRegions  = 3
	summaryMissing = "Analisi dettagliata in corso..."
)

var funcs = template.FuncMap{
	"path": func(p string) string { return config.Cfg.Path(p) },
	"url":  func(p string) string { return config.Cfg.URL(p) },
}

// views maps a page template to its parsed set (layout + page).
var views = parseViews("home", "page", "contatti", "catalogo", "bando", "error")

func parseViews(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, n := range names {
		out[n] = template.Must(template.New(n).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+n+".html"))
	}
	return out
}

// layoutData wraps every page body with the head and chrome fields.
type layoutData struct {
	Title        string
	Description  string
	Canonical    string
	Active       string
	NoIndex      bool
	ContactEmail string
	Year         int
	Body         interface{}
}

func render(w io.Writer, view string, d layoutData) error {
	if d.ContactEmail == "" {
		d.ContactEmail = config.Cfg.ContactEmail
	}
	if d.Year == 0 {
		d.Year = time.Now().Year()
	}
	return views[view].ExecuteTemplate(w, "layout", d)
}

// grantView is a record prepared for the card and detail templates.
type grantView struct {
	ID           string
	Title        string
	Source       string
	Summary      string
	Marketing    string
	Sintesi      string
	Regions      []string
	MoreRegions  int
	Expired      bool
	ExpiringSoon bool
	Gold         bool
	Certified    bool
	Deadline     string
	FinancialMax string
	URL          string
	Href         string
	PDFHref      string
	MailTo       string
	RawHTML      template.HTML
}

func grantPath(id string) string {
	return "/catalogo/" + url.PathEscape(id) + "/"
}

func cardView(g models.GrantRecord, now time.Time) grantView {
	exp := filter.Classify(g, now)
	summary := g.Summary()
	if summary == "" {
		summary = summaryMissing
	}
	return grantView{
		ID:           g.ID.String(),
		Title:        g.DisplayTitle(),
		Source:       g.SourceName,
		Summary:      summary,
		Regions:      regions.Names(g.RegionCodes(), cardRegions),
		Expired:      exp.Expired,
		ExpiringSoon: exp.ExpiringSoon,
		Gold:         g.IsGold(),
		Certified:    g.IsCertified(),
		Deadline:     exp.Label,
		Href:         grantPath(g.ID.String()),
	}
}

func cardViews(records []models.GrantRecord, now time.Time) []grantView {
	out := make([]grantView, 0, len(records))
	for _, g := range records {
		out = append(out, cardView(g, now))
	}
	return out
}

func detailView(g models.GrantRecord, now time.Time) grantView {
	v := cardView(g, now)
	v.Marketing = g.MarketingText
	if g.Analysis != nil {
		v.Sintesi = g.Analysis.Sintesi
	}
	names := regions.Names(g.RegionCodes(), 0)
	if len(names) > detailRegions {
		v.MoreRegions = len(names) - detailRegions
		names = names[:detailRegions]
	}
	v.Regions = names
	if amount, ok := g.FinancialMax(); ok {
		v.FinancialMax = euroK(amount)
	}
	if strings.HasPrefix(g.URL, "http://") || strings.HasPrefix(g.URL, "https://") {
		v.URL = g.URL
	}
	v.PDFHref = v.Href + "scheda.pdf"
	v.MailTo = mailto.Consultation(config.Cfg.ConsultEmail, g)

	if strings.TrimSpace(g.RawContent) != "" {
		raw, err := htmltext.Clean(g.RawContent, g.URL)
		if err != nil {
			logger.Warn("handlers: raw content not renderable", map[string]interface{}{
				"id": g.ID.String(), "error": err.Error(),
			})
			raw = template.HTMLEscapeString(htmltext.PlainText(g.RawContent, 0))
		}
		v.RawHTML = template.HTML(raw)
	}
	return v
}

// euroK formats an amount in thousands the Italian way: 150000 -> "€150K",
// 2500000 -> "€2.500K", 1500 -> "€1,5K".
func euroK(amount float64) string {
	k := amount / 1000
	s := strconv.FormatFloat(k, 'f', 3, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return "€" + b.String() + "K"
}
