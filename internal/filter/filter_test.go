package filter

import (
	"alsolved/internal/models"
	"encoding/json"
	"testing"
	"time"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func rec(t *testing.T, s string) models.GrantRecord {
	t.Helper()
	var g models.GrantRecord
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		t.Fatalf("fixture %s: %v", s, err)
	}
	return g
}

func TestMatchText(t *testing.T) {
	g := rec(t, `{"id":1,"title":"Bando Digitale","marketing_text":"Contributi per la Transizione Verde"}`)
	if !MatchText(g, "") {
		t.Error("query vuota deve passare")
	}
	if !MatchText(g, "digitale") {
		t.Error("match case-insensitive sul titolo")
	}
	if !MatchText(g, "VERDE") {
		t.Error("match sul testo marketing")
	}
	if MatchText(g, "turismo") {
		t.Error("nessun match atteso")
	}

	noMarketing := rec(t, `{"id":2,"title":"Bando Verde","ai_analysis":{"sintesi":"digitale"}}`)
	if MatchText(noMarketing, "digitale") {
		t.Error("la sintesi non partecipa alla ricerca")
	}
}

func TestMatchRegion(t *testing.T) {
	coded := rec(t, `{"id":1,"title":"x","ai_analysis":{"regions":["226"]}}`)
	named := rec(t, `{"id":2,"title":"x","ai_analysis":{"regione":"Lombardia"}}`)
	national := rec(t, `{"id":3,"title":"x"}`)

	if !MatchRegion(coded, "") || !MatchRegion(national, "") {
		t.Error("selezione vuota deve passare")
	}
	if !MatchRegion(named, "lombardia") {
		t.Error("match case-insensitive sul nome")
	}
	if !MatchRegion(named, "ia") {
		t.Error("contains-match: 'ia' deve trovare Lombardia")
	}
	if !MatchRegion(coded, "Lombardia") {
		t.Error("il codice 226 deve corrispondere a Lombardia")
	}
	if !MatchRegion(coded, "226") {
		t.Error("il codice grezzo deve restare cercabile")
	}
	if !MatchRegion(national, "Nazionale") {
		t.Error("senza regioni il bando è nazionale")
	}
	if MatchRegion(coded, "Sicilia") || MatchRegion(national, "Sicilia") {
		t.Error("nessun match atteso per Sicilia")
	}
}

func TestClassify(t *testing.T) {
	past := rec(t, `{"id":1,"title":"x","ai_analysis":{"scadenza":"2020-01-01"}}`)
	if e := Classify(past, now); !e.Expired || e.ExpiringSoon || e.Label != "01 gen 2020" {
		t.Errorf("scadenza passata: %+v", e)
	}

	flagged := rec(t, `{"id":2,"title":"x","ai_analysis":{"is_expired":"true","scadenza":"2099-01-01"}}`)
	if !Classify(flagged, now).Expired {
		t.Error("il flag esplicito vince sulla data")
	}

	flagFalse := rec(t, `{"id":3,"title":"x","ai_analysis":{"is_expired":false,"scadenza":"2099-01-01"}}`)
	if Classify(flagFalse, now).Expired {
		t.Error("flag false e data futura: attivo")
	}

	soon := rec(t, `{"id":4,"title":"x","ai_analysis":{"close_date":"2026-10-22"}}`)
	if e := Classify(soon, now); e.Expired || !e.ExpiringSoon {
		t.Errorf("scadenza entro 7 giorni: %+v", e)
	}

	later := rec(t, `{"id":5,"title":"x","ai_analysis":{"data_chiusura":"30 novembre 2026"}}`)
	if e := Classify(later, now); e.Expired || e.ExpiringSoon || e.Label != "30 nov 2026" {
		t.Errorf("scadenza lontana: %+v", e)
	}

	garbage := rec(t, `{"id":6,"title":"x","ai_analysis":{"scadenza":"entro fine esercizio 2019"}}`)
	e := Classify(garbage, now)
	if e.Expired || e.HasDeadline() {
		t.Errorf("data non interpretabile deve degradare a non scaduto: %+v", e)
	}
	if e.Label != "entro fine" {
		t.Errorf("etichetta di ripiego = %q", e.Label)
	}

	none := rec(t, `{"id":7,"title":"x"}`)
	if e := Classify(none, now); e.Expired || e.Label != "" {
		t.Errorf("senza dati mai scaduto: %+v", e)
	}
}

func TestMatchStatus(t *testing.T) {
	expired := rec(t, `{"id":1,"title":"Bando Digitale","ai_analysis":{"scadenza":"2020-01-01"}}`)
	active := rec(t, `{"id":2,"title":"Bando Verde","ai_analysis":{"is_expired":false,"scadenza":"2099-01-01"}}`)

	if !MatchStatus(expired, StatusExpired, now) || MatchStatus(active, StatusExpired, now) {
		t.Error("filtro scaduti errato")
	}
	if MatchStatus(expired, StatusActive, now) || !MatchStatus(active, StatusActive, now) {
		t.Error("filtro attivi errato")
	}
	if !MatchStatus(expired, ParseStatus("analyzed"), now) {
		t.Error("stato sconosciuto deve tenere tutto")
	}
}

func TestParseDeadline(t *testing.T) {
	for _, s := range []string{"2026-03-01", "2026-03-01T10:00:00", "2026-03-01T10:00:00+01:00", "01/03/2026", "1 marzo 2026"} {
		d, ok := ParseDeadline(s)
		if !ok || d.Month() != time.March || d.Year() != 2026 {
			t.Errorf("ParseDeadline(%q) = %v %v", s, d, ok)
		}
	}
	for _, s := range []string{"", "N/D", "31 febbraio 2026", "2026-13-01"} {
		if _, ok := ParseDeadline(s); ok {
			t.Errorf("ParseDeadline(%q) dovrebbe fallire", s)
		}
	}
}
