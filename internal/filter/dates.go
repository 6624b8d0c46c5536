package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var italianMonths = map[string]time.Month{
	"gennaio":   time.January,
	"febbraio":  time.February,
	"marzo":     time.March,
	"aprile":    time.April,
	"maggio":    time.May,
	"giugno":    time.June,
	"luglio":    time.July,
	"agosto":    time.August,
	"settembre": time.September,
	"ottobre":   time.October,
	"novembre":  time.November,
	"dicembre":  time.December,
}

var shortMonths = []string{"", "gen", "feb", "mar", "apr", "mag", "giu", "lug", "ago", "set", "ott", "nov", "dic"}

var italianDateRe = regexp.MustCompile(
	`^(\d{1,2})\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})$`,
)

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseDeadline parses the deadline formats found in the document. Values
// without a zone are read as UTC. ok=false means unparseable.
func ParseDeadline(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if m := italianDateRe.FindStringSubmatch(strings.ToLower(s)); len(m) == 4 {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, italianMonths[m[2]], day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// FormatDate renders "02 gen 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%02d %s %d", t.Day(), shortMonths[t.Month()], t.Year())
}

// fallbackLabel is the first ten characters of an unparseable value.
func fallbackLabel(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 10 {
		r = r[:10]
	}
	return string(r)
}
