package catalog

import (
	"alsolved/internal/filter"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageSize is the catalog page size when none is configured.
const DefaultPageSize = 12

// State is the complete input of one catalog query. It is a value: every
// change produces a new State, and any filter change moves back to page 1.
type State struct {
	Query    string
	Region   string
	Status   filter.Status
	Page     int
	PageSize int
}

// NewState returns the first page with no filters.
func NewState(pageSize int) State {
	return State{Page: 1, PageSize: pageSize}.Normalize()
}

// Normalize clamps Page to >= 1 and PageSize to > 0 (default 12).
func (s State) Normalize() State {
	if s.Page < 1 {
		s.Page = 1
	}
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	return s
}

func (s State) WithQuery(q string) State {
	s.Query = q
	s.Page = 1
	return s.Normalize()
}

func (s State) WithRegion(r string) State {
	s.Region = r
	s.Page = 1
	return s.Normalize()
}

func (s State) WithStatus(st filter.Status) State {
	s.Status = st
	s.Page = 1
	return s.Normalize()
}

func (s State) WithPage(p int) State {
	s.Page = p
	return s.Normalize()
}

// Next and Prev move one page.
func (s State) Next() State { return s.WithPage(s.Page + 1) }
func (s State) Prev() State { return s.WithPage(s.Page - 1) }

// Filtered reports whether any filter is active.
func (s State) Filtered() bool {
	return s.Query != "" || s.Region != "" || s.Status != filter.StatusAll
}

// ParseState reads q, regione, stato and page from a query string.
func ParseState(v url.Values, pageSize int) State {
	s := NewState(pageSize).
		WithQuery(strings.TrimSpace(v.Get("q"))).
		WithRegion(strings.TrimSpace(v.Get("regione"))).
		WithStatus(filter.ParseStatus(v.Get("stato")))
	if p, err := strconv.Atoi(v.Get("page")); err == nil {
		s = s.WithPage(p)
	}
	return s
}

// Values is the inverse of ParseState; zero values are omitted.
func (s State) Values() url.Values {
	v := url.Values{}
	if s.Query != "" {
		v.Set("q", s.Query)
	}
	if s.Region != "" {
		v.Set("regione", s.Region)
	}
	if s.Status != filter.StatusAll {
		v.Set("stato", string(s.Status))
	}
	if s.Page > 1 {
		v.Set("page", strconv.Itoa(s.Page))
	}
	return v
}
