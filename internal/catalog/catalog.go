// Package catalog implements the grant listing pipeline (fetch, filter,
// paginate) and detail resolution over a grant document source.
package catalog

import (
	"alsolved/internal/filter"
	"alsolved/internal/logger"
	"alsolved/internal/metrics"
	"alsolved/internal/models"
	sentryutil "alsolved/internal/sentry"
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Lookup when no record has the identifier.
// It is terminal: callers render a not-found state and do not retry.
var ErrNotFound = errors.New("catalog: grant not found")

// ErrFetch marks lookups that failed because the document was unavailable.
var ErrFetch = errors.New("catalog: document unavailable")

// Source yields the full grant document. Implementations live in
// internal/datasource.
type Source interface {
	Fetch(ctx context.Context) ([]models.GrantRecord, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]models.GrantRecord, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]models.GrantRecord, error) { return f(ctx) }

// Result is one page of the filtered catalog.
type Result struct {
	Items   []models.GrantRecord `json:"items"`
	HasMore bool                 `json:"has_more"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
	// Failed is set when the document could not be fetched; the page is
	// then empty.
	Failed bool `json:"-"`
}

// Pipeline runs catalog queries against a Source.
type Pipeline struct {
	Source Source
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

func New(src Source) *Pipeline {
	return &Pipeline{Source: src, Now: time.Now}
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Run fetches the document, applies text, region and status filters in that
// order (source order preserved) and slices the requested page. A failed
// fetch is logged and yields an empty page without HasMore; it never
// returns an error.
func (p *Pipeline) Run(ctx context.Context, s State) Result {
	s = s.Normalize()
	all, err := p.Source.Fetch(ctx)
	if err != nil {
		logger.Error("catalog: fetch failed", map[string]interface{}{"error": err.Error(), "page": s.Page})
		sentryutil.CaptureErrorContext(ctx, err, map[string]string{"component": "catalog", "phase": "fetch"})
		metrics.CatalogQueries.WithLabelValues("fetch_error").Inc()
		return Result{Items: []models.GrantRecord{}, Page: s.Page, Failed: true}
	}

	filtered := Filter(all, s, p.now())
	res := Paginate(filtered, s.Page, s.PageSize)
	if len(res.Items) == 0 {
		metrics.CatalogQueries.WithLabelValues("empty").Inc()
	} else {
		metrics.CatalogQueries.WithLabelValues("ok").Inc()
	}
	return res
}

// Filter returns the records matching every predicate of s, in source order.
func Filter(all []models.GrantRecord, s State, now time.Time) []models.GrantRecord {
	out := make([]models.GrantRecord, 0, len(all))
	for _, g := range all {
		if !filter.MatchText(g, s.Query) {
			continue
		}
		if !filter.MatchRegion(g, s.Region) {
			continue
		}
		if !filter.MatchStatus(g, s.Status, now) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Paginate slices [(page-1)*size, page*size) and sets HasMore when records
// remain after the slice.
func Paginate(records []models.GrantRecord, page, size int) Result {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(records)
	res := Result{Items: []models.GrantRecord{}, Total: total, Page: page}
	pages := total / size
	if total%size != 0 {
		pages++
	}
	// Compared before multiplying so huge page numbers cannot overflow.
	if page-1 >= pages {
		return res
	}
	start := (page - 1) * size
	end := start + size
	if end > total || end < start {
		end = total
	}
	res.HasMore = end < total
	res.Items = append(res.Items, records[start:end]...)
	return res
}

// Lookup resolves a record by string-compared identifier.
func (p *Pipeline) Lookup(ctx context.Context, id string) (models.GrantRecord, error) {
	all, err := p.Source.Fetch(ctx)
	if err != nil {
		metrics.DetailLookups.WithLabelValues("fetch_error").Inc()
		return models.GrantRecord{}, fmt.Errorf("catalog: lookup %q: %w: %w", id, ErrFetch, err)
	}
	for _, g := range all {
		if g.ID.String() == id {
			metrics.DetailLookups.WithLabelValues("found").Inc()
			return g, nil
		}
	}
	metrics.DetailLookups.WithLabelValues("not_found").Inc()
	return models.GrantRecord{}, ErrNotFound
}

// IDs enumerates every identifier, in source order, for build-time page
// generation.
func (p *Pipeline) IDs(ctx context.Context) ([]string, error) {
	all, err := p.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list ids: %w: %w", ErrFetch, err)
	}
	ids := make([]string, 0, len(all))
	for _, g := range all {
		ids = append(ids, g.ID.String())
	}
	return ids, nil
}

// All returns the whole document, for pages that need every record.
func (p *Pipeline) All(ctx context.Context) ([]models.GrantRecord, error) {
	return p.Source.Fetch(ctx)
}
