// Package regions maps the incentive portal's geographic codes to display
// names.
package regions

import (
	"sort"
	"strings"
)

// National is the implicit scope of a grant without region fields.
const National = "Nazionale"

// Foreign is the display name of code 587.
const Foreign = "Estero"

var byCode = map[string]string{
	"218": "Abruzzo",
	"219": "Basilicata",
	"220": "Calabria",
	"221": "Campania",
	"222": "Emilia-Romagna",
	"223": "Friuli-Venezia Giulia",
	"224": "Lazio",
	"225": "Liguria",
	"226": "Lombardia",
	"227": "Marche",
	"228": "Molise",
	"229": "Piemonte",
	"230": "Puglia",
	"231": "Sardegna",
	"232": "Sicilia",
	"233": "Toscana",
	"234": "Trentino-Alto Adige",
	"235": "Umbria",
	"236": "Valle d'Aosta",
	"237": "Veneto",
	"587": Foreign,
}

// Name resolves one code. Mapped codes return their name; unmapped
// non-numeric values pass through trimmed; unmapped numeric codes and blanks
// report ok=false.
func Name(code string) (string, bool) {
	c := strings.TrimSpace(code)
	if c == "" {
		return "", false
	}
	if n, ok := byCode[c]; ok {
		return n, true
	}
	if isNumeric(c) {
		return "", false
	}
	return c, true
}

// Names resolves a region list, inspecting at most limit codes (limit <= 0
// means all). An empty or fully dropped list is national scope.
func Names(codes []string, limit int) []string {
	if limit > 0 && len(codes) > limit {
		codes = codes[:limit]
	}
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		if n, ok := Name(c); ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return []string{National}
	}
	return names
}

// Options lists the region selector values: national first, the twenty
// regions alphabetically, foreign last.
func Options() []string {
	out := make([]string, 0, len(byCode)+1)
	for _, n := range byCode {
		if n != Foreign {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	out = append([]string{National}, out...)
	return append(out, Foreign)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
