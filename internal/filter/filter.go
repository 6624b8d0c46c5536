// Package filter holds the pure predicates applied to grant records by the
// catalog.
package filter

import (
	"alsolved/internal/models"
	"alsolved/internal/regions"
	"strings"
	"time"
)

// ExpiringWindow is how close a deadline must be to flag "in scadenza".
const ExpiringWindow = 7 * 24 * time.Hour

// Status selects records by expiry.
type Status string

const (
	StatusAll     Status = ""
	StatusActive  Status = "attivi"
	StatusExpired Status = "scaduti"
)

// ParseStatus maps user input to a Status; anything unknown keeps all.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive
	case StatusExpired:
		return StatusExpired
	}
	return StatusAll
}

// Expiry is the derived lifecycle of a record at a given instant.
type Expiry struct {
	Expired      bool
	ExpiringSoon bool
	// Deadline is zero when the record has no parseable deadline.
	Deadline time.Time
	// Label is the display form of the deadline, empty when absent.
	Label string
}

// HasDeadline reports a parseable deadline.
func (e Expiry) HasDeadline() bool { return !e.Deadline.IsZero() }

// MatchText is a case-insensitive substring match on title or marketing
// text. The empty query matches everything.
func MatchText(g models.GrantRecord, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(g.Title), q) {
		return true
	}
	return g.MarketingText != "" && strings.Contains(strings.ToLower(g.MarketingText), q)
}

// MatchRegion is a case-insensitive contains-match of the selected region
// against the serialized regions field. It deliberately matches more than
// that field alone: the resolved display names are searched too, so coded
// records ("226") match their region ("Lombardia") and records without
// regions match "Nazionale". The empty selection matches everything.
func MatchRegion(g models.GrantRecord, region string) bool {
	if region == "" {
		return true
	}
	r := strings.ToLower(region)
	if strings.Contains(strings.ToLower(g.RegionField()), r) {
		return true
	}
	for _, name := range regions.Names(g.RegionCodes(), 0) {
		if strings.Contains(strings.ToLower(name), r) {
			return true
		}
	}
	return false
}

// Classify derives expiry. An explicit true flag wins; otherwise a parseable
// deadline strictly before now expires the record. Unparseable deadlines
// count as absent.
func Classify(g models.GrantRecord, now time.Time) Expiry {
	var e Expiry
	raw := g.DeadlineRaw()
	if raw != "" {
		if t, ok := ParseDeadline(raw); ok {
			e.Deadline = t
			e.Label = FormatDate(t)
		} else {
			e.Label = fallbackLabel(raw)
		}
	}

	if flag, ok := g.ExpiredFlag(); ok && flag {
		e.Expired = true
	} else if e.HasDeadline() {
		e.Expired = e.Deadline.Before(now)
	}

	if !e.Expired && e.HasDeadline() {
		e.ExpiringSoon = e.Deadline.Before(now.Add(ExpiringWindow))
	}
	return e
}

// MatchStatus keeps non-expired records for StatusActive, expired ones for
// StatusExpired and everything otherwise.
func MatchStatus(g models.GrantRecord, status Status, now time.Time) bool {
	switch status {
	case StatusActive:
		return !Classify(g, now).Expired
	case StatusExpired:
		return Classify(g, now).Expired
	}
	return true
}
