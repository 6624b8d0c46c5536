package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// RecordID is a grant identifier. The published document uses integers,
// older exports used strings; both compare as strings.
type RecordID string

func (id *RecordID) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch res.Type {
	case gjson.String:
		*id = RecordID(strings.TrimSpace(res.Str))
	case gjson.Number:
		*id = RecordID(res.Raw)
	case gjson.Null:
		*id = ""
	default:
		return fmt.Errorf("id: unsupported JSON value %s", res.Raw)
	}
	return nil
}

func (id RecordID) MarshalJSON() ([]byte, error) {
	// Only canonical integers go out bare: "007" or "+5" stay strings.
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id RecordID) String() string { return string(id) }

// GrantRecord is one funding opportunity ("bando") of the published document.
type GrantRecord struct {
	ID            RecordID    `json:"id"`
	Title         string      `json:"title"`
	SourceName    string      `json:"source_name,omitempty"`
	Status        string      `json:"status,omitempty"`
	URL           string      `json:"url,omitempty"`
	IngestedAt    string      `json:"ingested_at,omitempty"`
	RawContent    string      `json:"raw_content,omitempty"`
	MarketingText string      `json:"marketing_text,omitempty"`
	Analysis      *AIAnalysis `json:"ai_analysis,omitempty"`
}

// AIAnalysis is the optional enrichment block. Loose shapes found in the
// document (string booleans, single-value regions, numeric strings) are
// normalized once in UnmarshalJSON.
type AIAnalysis struct {
	TitoloRiassuntivo string   `json:"titolo_riassuntivo,omitempty"`
	Sintesi           string   `json:"sintesi,omitempty"`
	Scadenza          string   `json:"scadenza,omitempty"`
	CloseDate         string   `json:"close_date,omitempty"`
	DataChiusura      string   `json:"data_chiusura,omitempty"`
	Regions           []string `json:"regions,omitempty"`
	Regione           string   `json:"regione,omitempty"`
	FinancialMax      *float64 `json:"financial_max,omitempty"`
	FinancialMin      *float64 `json:"financial_min,omitempty"`
	AtecoCodes        string   `json:"ateco_codes,omitempty"`
	IsGold            *bool    `json:"is_gold,omitempty"`
	IsExpired         *bool    `json:"is_expired,omitempty"`

	// regionField is the compact JSON of regions (or regione when regions
	// is absent), or `""` when neither is set.
	regionField string
}

func (a *AIAnalysis) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("ai_analysis: invalid JSON")
	}
	*a = AIAnalysis{regionField: `""`}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return nil
	}

	a.TitoloRiassuntivo = text(res.Get("titolo_riassuntivo"))
	a.Sintesi = text(res.Get("sintesi"))
	a.Scadenza = text(res.Get("scadenza"))
	a.CloseDate = text(res.Get("close_date"))
	a.DataChiusura = text(res.Get("data_chiusura"))
	a.AtecoCodes = atecoText(res.Get("ateco_codes"))
	a.FinancialMax = number(res.Get("financial_max"))
	a.FinancialMin = number(res.Get("financial_min"))
	a.IsGold = boolish(res.Get("is_gold"))
	a.IsExpired = boolish(res.Get("is_expired"))

	regions := res.Get("regions")
	regione := res.Get("regione")
	a.Regions = valueList(regions)
	a.Regione = text(regione)

	switch {
	case truthy(regions):
		a.regionField = compact(regions.Raw)
	case truthy(regione):
		a.regionField = compact(regione.Raw)
	}
	return nil
}

// RegionCodes returns the geographic scope with regions taking precedence
// over regione. nil means national scope.
func (a *AIAnalysis) RegionCodes() []string {
	if a == nil {
		return nil
	}
	if a.Regions != nil {
		return a.Regions
	}
	if a.Regione != "" {
		return []string{a.Regione}
	}
	return nil
}

// RegionField returns the serialized regions/regione value used by the
// region contains-match.
func (a *AIAnalysis) RegionField() string {
	if a == nil {
		return `""`
	}
	if a.regionField == "" {
		// built in code rather than decoded
		switch {
		case a.Regions != nil:
			b, _ := json.Marshal(a.Regions)
			return string(b)
		case a.Regione != "":
			b, _ := json.Marshal(a.Regione)
			return string(b)
		default:
			return `""`
		}
	}
	return a.regionField
}

// DisplayTitle prefers the summarized title of the analysis.
func (g GrantRecord) DisplayTitle() string {
	if g.Analysis != nil && g.Analysis.TitoloRiassuntivo != "" {
		return g.Analysis.TitoloRiassuntivo
	}
	return g.Title
}

// Summary prefers the marketing sentence over the analysis synthesis.
func (g GrantRecord) Summary() string {
	if g.MarketingText != "" {
		return g.MarketingText
	}
	if g.Analysis != nil {
		return g.Analysis.Sintesi
	}
	return ""
}

// DeadlineRaw returns scadenza, close_date or data_chiusura, in that order.
// "N/A" counts as absent.
func (g GrantRecord) DeadlineRaw() string {
	if g.Analysis == nil {
		return ""
	}
	for _, v := range []string{g.Analysis.Scadenza, g.Analysis.CloseDate, g.Analysis.DataChiusura} {
		v = strings.TrimSpace(v)
		if v != "" && !strings.EqualFold(v, "N/A") {
			return v
		}
	}
	return ""
}

func (g GrantRecord) RegionCodes() []string { return g.Analysis.RegionCodes() }

func (g GrantRecord) RegionField() string { return g.Analysis.RegionField() }

// IsCertified reports sector classification codes (ATECO) on the record.
func (g GrantRecord) IsCertified() bool {
	return g.Analysis != nil && strings.TrimSpace(g.Analysis.AtecoCodes) != ""
}

// IsGold is the premium badge: explicit flag or certified.
func (g GrantRecord) IsGold() bool {
	if g.Analysis != nil && g.Analysis.IsGold != nil && *g.Analysis.IsGold {
		return true
	}
	return g.IsCertified()
}

// ExpiredFlag returns the explicit expiry flag, if any.
func (g GrantRecord) ExpiredFlag() (bool, bool) {
	if g.Analysis == nil || g.Analysis.IsExpired == nil {
		return false, false
	}
	return *g.Analysis.IsExpired, true
}

func (g GrantRecord) FinancialMax() (float64, bool) {
	if g.Analysis == nil || g.Analysis.FinancialMax == nil || *g.Analysis.FinancialMax <= 0 {
		return 0, false
	}
	return *g.Analysis.FinancialMax, true
}

// ---------- gjson helpers ----------

func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		return r.Raw
	}
	return ""
}

func atecoText(r gjson.Result) string {
	if r.IsArray() {
		return strings.Join(valueList(r), ", ")
	}
	return text(r)
}

func number(r gjson.Result) *float64 {
	switch r.Type {
	case gjson.Number:
		v := r.Num
		return &v
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return &v
		}
	}
	return nil
}

func boolish(r gjson.Result) *bool {
	var v bool
	switch r.Type {
	case gjson.True:
		v = true
	case gjson.False:
		v = false
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.Str)) {
		case "true":
			v = true
		case "false":
			v = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &v
}

func valueList(r gjson.Result) []string {
	switch {
	case r.IsArray():
		out := []string{}
		for _, el := range r.Array() {
			if s := text(el); s != "" {
				out = append(out, s)
			}
		}
		return out
	case r.Type == gjson.String && strings.TrimSpace(r.Str) != "":
		return []string{strings.TrimSpace(r.Str)}
	case r.Type == gjson.Number:
		return []string{r.Raw}
	}
	return nil
}

// truthy mirrors how the catalog has always chosen between regions and
// regione: empty strings, zero, false and null fall through.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.True, gjson.JSON:
		return true
	}
	return false
}

func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
