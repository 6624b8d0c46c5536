package handlers

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/content"
	"alsolved/internal/models"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

const fixture = `[
 {"id":1,"title":"Bando Digitale PMI","source_name":"MIMIT","url":"https://www.incentivi.gov.it/it/bando/1","marketing_text":"Contributi per la transizione digitale","raw_content":"<p>Testo <a href=\"/allegato.pdf\">allegato</a></p><script>alert(1)</script>","ai_analysis":{"scadenza":"2026-12-31","regions":["226"],"financial_max":150000,"ateco_codes":["62.01"]}},
 {"id":2,"title":"Energia Verde Lazio","ai_analysis":{"scadenza":"2025-01-10","regione":"Lazio"}},
 {"id":3,"title":"Fondo Nazionale Export","ai_analysis":{"is_expired":true}},
 {"id":"abc","title":"Turismo Sostenibile","marketing_text":"Ospitalità verde"}
]`

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func init() {
	config.Cfg = config.Config{
		BaseURL:        "https://alsolved.example",
		ContactEmail:   "info@alsolved.it",
		ConsultEmail:   "consulenza@alsolved.com",
		PageSize:       2,
		SearchDebounce: 300 * time.Millisecond,
	}
	if err := content.LoadEmbedded(); err != nil {
		panic(err)
	}
}

func newSite(t *testing.T) *Site {
	t.Helper()
	var records []models.GrantRecord
	if err := json.Unmarshal([]byte(fixture), &records); err != nil {
		t.Fatalf("fixture non valida: %v", err)
	}
	p := catalog.New(catalog.SourceFunc(func(context.Context) ([]models.GrantRecord, error) {
		return records, nil
	}))
	p.Now = func() time.Time { return now }
	return NewSite(p)
}

func brokenSite() *Site {
	p := catalog.New(catalog.SourceFunc(func(context.Context) ([]models.GrantRecord, error) {
		return nil, errors.New("rete non raggiungibile")
	}))
	p.Now = func() time.Time { return now }
	return NewSite(p)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCatalogFirstPage(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Bando Digitale PMI", "Energia Verde Lazio", "Pagina <b>1</b>", "Tutte le Regioni", "Lombardia"} {
		if !strings.Contains(body, want) {
			t.Errorf("Manca %q nella pagina del catalogo", want)
		}
	}
	if strings.Contains(body, "Fondo Nazionale Export") {
		t.Error("Il terzo bando non dovrebbe stare in pagina 1 con page size 2")
	}
	if !strings.Contains(body, "Scaduto") || !strings.Contains(body, "Visualizza Archivio") {
		t.Error("Il bando scaduto dovrebbe avere badge e pulsante d'archivio")
	}
	if !strings.Contains(body, `href="/catalogo/pagina/2/"`) {
		t.Error("Link alla pagina successiva mancante")
	}
}

func TestCatalogFilters(t *testing.T) {
	h := newSite(t).Routes()

	w := get(t, h, "/catalogo/?q=verde")
	body := w.Body.String()
	if !strings.Contains(body, "Energia Verde Lazio") || !strings.Contains(body, "Turismo Sostenibile") {
		t.Error("La ricerca 'verde' deve trovare titolo e testo marketing")
	}
	if strings.Contains(body, "Bando Digitale PMI") {
		t.Error("La ricerca 'verde' non deve trovare il bando digitale")
	}

	w = get(t, h, "/catalogo/?stato=scaduti")
	body = w.Body.String()
	if !strings.Contains(body, "Energia Verde Lazio") || !strings.Contains(body, "Fondo Nazionale Export") {
		t.Error("Filtro scaduti incompleto")
	}
	if !strings.Contains(body, `value="scaduti" checked`) {
		t.Error("Il filtro di stato dovrebbe restare selezionato")
	}

	w = get(t, h, "/catalogo/?q=inesistente")
	if !strings.Contains(w.Body.String(), "Nessun bando trovato con questi criteri.") {
		t.Error("Stato vuoto mancante")
	}
}

func TestCatalogFilteredPagination(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/?regione=Nazionale&page=1")
	body := w.Body.String()
	if !strings.Contains(body, "Fondo Nazionale Export") || !strings.Contains(body, "Turismo Sostenibile") {
		t.Error("Regione Nazionale deve includere i bandi senza regioni")
	}
	if strings.Contains(body, "page=2") {
		t.Error("Con due risultati e page size 2 non c'è una pagina successiva")
	}
}

func TestCatalogStaticPage(t *testing.T) {
	h := newSite(t).Routes()
	w := get(t, h, "/catalogo/pagina/2/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Fondo Nazionale Export") {
		t.Error("La pagina 2 deve contenere il terzo bando")
	}
	if w := get(t, h, "/catalogo/pagina/zero/"); w.Code != http.StatusNotFound {
		t.Errorf("Numero di pagina non valido: atteso 404, ottenuto %d", w.Code)
	}

	w = get(t, h, "/catalogo/pagina/9223372036854775807/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Nessun bando trovato") {
		t.Errorf("Pagina enorme: atteso 200 con stato vuoto, ottenuto %d", w.Code)
	}
	w = get(t, h, "/api/bandi?page=9223372036854775807")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("API con pagina enorme: atteso 200 con lista vuota, ottenuto %d %s", w.Code, w.Body.String())
	}
}

func TestCatalogFetchFailure(t *testing.T) {
	w := get(t, brokenSite().Routes(), "/catalogo/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200 anche senza dati, ottenuto %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Nessun bando trovato") {
		t.Error("Senza dati il catalogo deve mostrare lo stato vuoto")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Error("Una pagina degradata non va messa in cache")
	}
}

func TestDetailPage(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/1/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"Bando Digitale PMI",
		"Analisi AlSolved",
		"Interessato al Bando?",
		"€150K",
		"31 dic 2026",
		"Certificato ATECO",
		"mailto:consulenza@alsolved.com?subject=Richiesta%20Consulenza%3A%20Bando%20Digitale%20PMI",
		`href="https://www.incentivi.gov.it/allegato.pdf"`,
		`href="/catalogo/1/scheda.pdf"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Manca %q nella scheda", want)
		}
	}
	if strings.Contains(body, "alert(1)") {
		t.Error("Gli script del testo originale vanno rimossi")
	}
}

func TestDetailStringID(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/abc/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "In fase di definizione") {
		t.Error("Senza scadenza la scheda mostra 'In fase di definizione'")
	}
}

func TestDetailNotFound(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/999/")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Atteso 404, ottenuto %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Bando non trovato") {
		t.Error("Pagina 404 del bando mancante")
	}

	w = get(t, brokenSite().Routes(), "/catalogo/1/")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Senza dati atteso 503, ottenuto %d", w.Code)
	}
}

func TestDetailRedirectsToSlash(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/1")
	if w.Code != http.StatusMovedPermanently || w.Header().Get("Location") != "/catalogo/1/" {
		t.Errorf("Atteso redirect a /catalogo/1/, ottenuto %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestSheetPDF(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/catalogo/1/scheda.pdf")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Error("Il corpo non è un PDF")
	}
}

func TestAPIList(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/api/bandi?stato=attivi&size=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200, ottenuto %d", w.Code)
	}
	var resp struct {
		Items   []map[string]interface{} `json:"items"`
		HasMore bool                     `json:"has_more"`
		Total   int                      `json:"total"`
		Page    int                      `json:"page"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("JSON non valido: %v", err)
	}
	if len(resp.Items) != 1 || resp.Total != 2 || !resp.HasMore || resp.Page != 1 {
		t.Errorf("Risposta inattesa: %+v", resp)
	}
	if resp.Items[0]["id"].(float64) != 1 {
		t.Errorf("Il primo bando attivo è l'1, ottenuto %v", resp.Items[0]["id"])
	}
}

func TestAPIDetail(t *testing.T) {
	h := newSite(t).Routes()
	w := get(t, h, "/api/bandi/abc")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Turismo Sostenibile") {
		t.Errorf("Dettaglio abc: %d %s", w.Code, w.Body.String())
	}
	w = get(t, h, "/api/bandi/404")
	if w.Code != http.StatusNotFound {
		t.Errorf("Atteso 404, ottenuto %d", w.Code)
	}
	w = get(t, h, "/api/sconosciuto")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Le API sconosciute rispondono JSON 404: %d", w.Code)
	}
}

func TestRegionsAPI(t *testing.T) {
	w := get(t, newSite(t).Routes(), "/api/regioni")
	var got []string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("JSON non valido: %v", err)
	}
	if len(got) == 0 || got[0] != "Nazionale" || got[len(got)-1] != "Estero" {
		t.Errorf("Ordine delle regioni inatteso: %v", got)
	}
}

func TestContactSubmit(t *testing.T) {
	h := newSite(t).Routes()

	form := url.Values{"azienda": {"Rossi Srl"}, "email": {"mario@rossi.it"}, "messaggio": {"Vorrei informazioni"}}
	req := httptest.NewRequest(http.MethodPost, "/contatti/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Atteso 303, ottenuto %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "mailto:info@alsolved.it?subject=Richiesta%20consulenza%20da%20Rossi%20Srl") {
		t.Errorf("Location inattesa: %s", loc)
	}

	form = url.Values{"email": {"non-una-mail"}}
	req = httptest.NewRequest(http.MethodPost, "/contatti/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Atteso 422, ottenuto %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "non sembra valido") || !strings.Contains(body, "Scrivi un messaggio.") {
		t.Error("Gli errori del modulo vanno mostrati")
	}
	if !strings.Contains(body, `value="non-una-mail"`) {
		t.Error("Il modulo va ripresentato con i valori inseriti")
	}
}

func TestPagesAndNotFound(t *testing.T) {
	h := newSite(t).Routes()
	for _, p := range []string{"/", "/servizi/", "/chi-siamo/", "/contatti/"} {
		if w := get(t, h, p); w.Code != http.StatusOK {
			t.Errorf("%s: atteso 200, ottenuto %d", p, w.Code)
		}
	}
	w := get(t, h, "/pagina-inesistente")
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Pagina non trovata") {
		t.Errorf("404 inatteso: %d", w.Code)
	}
}

func TestSitemapAndRobots(t *testing.T) {
	h := newSite(t).Routes()
	w := get(t, h, "/sitemap.xml")
	body := w.Body.String()
	for _, want := range []string{"https://alsolved.example/catalogo/", "https://alsolved.example/catalogo/1/", "https://alsolved.example/catalogo/abc/"} {
		if !strings.Contains(body, want) {
			t.Errorf("Sitemap senza %s", want)
		}
	}
	w = get(t, h, "/robots.txt")
	if !strings.Contains(w.Body.String(), "Sitemap: https://alsolved.example/sitemap.xml") {
		t.Errorf("robots.txt inatteso: %s", w.Body.String())
	}
}

func TestMountBasePath(t *testing.T) {
	old := config.Cfg
	defer func() { config.Cfg = old }()
	config.Cfg.BasePath = "/AlSolved_Bandi"

	h := Mount(newSite(t).Routes())
	w := get(t, h, "/AlSolved_Bandi/catalogo/")
	if w.Code != http.StatusOK {
		t.Fatalf("Atteso 200 sotto il base path, ottenuto %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `href="/AlSolved_Bandi/catalogo/1/"`) {
		t.Error("I link devono includere il base path")
	}
	w = get(t, h, "/")
	if w.Code != http.StatusMovedPermanently || w.Header().Get("Location") != "/AlSolved_Bandi/" {
		t.Errorf("La radice deve rimandare al base path: %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	clock := now
	rl.now = func() time.Time { return clock }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	hit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/bandi", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := hit(); w.Code != http.StatusNoContent {
			t.Fatalf("Richiesta %d dentro il burst rifiutata: %d", i, w.Code)
		}
	}
	w := hit()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Atteso 429, ottenuto %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}

	clock = clock.Add(time.Second)
	if w := hit(); w.Code != http.StatusNoContent {
		t.Errorf("Dopo un secondo il token deve essere disponibile: %d", w.Code)
	}
}

func TestRateLimiterForwardedFor(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	if err := rl.TrustProxies([]string{"10.0.0.0/8", "192.168.1.1"}); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		remote, xff, want string
	}{
		{"203.0.113.9:4000", "1.2.3.4", "203.0.113.9"},
		{"10.1.2.3:4000", "1.2.3.4", "1.2.3.4"},
		{"10.1.2.3:4000", "6.6.6.6, 1.2.3.4, 192.168.1.1", "1.2.3.4"},
		{"10.1.2.3:4000", "", "10.1.2.3"},
		{"10.1.2.3:4000", "non-un-ip", "10.1.2.3"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = c.remote
		if c.xff != "" {
			req.Header.Set("X-Forwarded-For", c.xff)
		}
		if got := rl.clientIP(req); got != c.want {
			t.Errorf("clientIP(%s, %q) = %q, atteso %q", c.remote, c.xff, got, c.want)
		}
	}

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i, spoof := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", spoof)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if i == 1 && w.Code != http.StatusTooManyRequests {
			t.Errorf("Un X-Forwarded-For falso non deve aggirare il limite: %d", w.Code)
		}
	}

	if err := rl.TrustProxies([]string{"non-una-rete/99"}); err == nil {
		t.Error("Rete non valida accettata")
	}
}

func TestEuroK(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{150000, "€150K"},
		{2500000, "€2.500K"},
		{1500, "€1,5K"},
		{1000000000, "€1.000.000K"},
	}
	for _, c := range cases {
		if got := euroK(c.in); got != c.want {
			t.Errorf("euroK(%v) = %q, atteso %q", c.in, got, c.want)
		}
	}
}
