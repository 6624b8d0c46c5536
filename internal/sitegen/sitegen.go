// Package sitegen writes the whole site as static files, one directory per
// route, for hosting under the configured base path.
package sitegen

import (
	"alsolved/internal/catalog"
	"alsolved/internal/handlers"
	"alsolved/internal/logger"
	"alsolved/internal/mailto"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options controls a build.
type Options struct {
	OutDir string
	// Workers bounds concurrent grant page renders; 0 means GOMAXPROCS.
	Workers int
}

// Summary reports what a build wrote.
type Summary struct {
	Files        int
	Grants       int
	CatalogPages int
	Duration     time.Duration
}

type builder struct {
	site *handlers.Site
	out  string
}

// Build renders every page of site into opts.OutDir. The document must be
// readable: a static site without grants is an error, not an empty catalog.
func Build(ctx context.Context, site *handlers.Site, opts Options) (Summary, error) {
	start := time.Now()
	if opts.OutDir == "" {
		return Summary{}, fmt.Errorf("sitegen: output directory required")
	}
	static := *site
	static.Static = true
	b := &builder{site: &static, out: opts.OutDir}

	all, err := static.Catalog.All(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("sitegen: load grants: %w", err)
	}
	sum := Summary{Grants: len(all)}

	pages := []struct {
		rel    string
		render func(w io.Writer) error
	}{
		{"index.html", func(w io.Writer) error { return static.Home(ctx, w) }},
		{"servizi/index.html", func(w io.Writer) error { return static.Page(w, "servizi") }},
		{"chi-siamo/index.html", func(w io.Writer) error { return static.Page(w, "chi-siamo") }},
		{"contatti/index.html", func(w io.Writer) error { return static.Contact(w, mailto.ContactForm{}, nil) }},
		{"404.html", static.NotFound},
		{"sitemap.xml", func(w io.Writer) error { return static.Sitemap(ctx, w) }},
		{"robots.txt", handlers.Robots},
		{"bandi.json", func(w io.Writer) error { return writeDocument(w, all) }},
	}
	for _, p := range pages {
		if err := b.write(p.rel, p.render); err != nil {
			return sum, err
		}
		sum.Files++
	}

	n, err := b.catalogPages(ctx)
	if err != nil {
		return sum, err
	}
	sum.CatalogPages = n
	sum.Files += n

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	written := make([]int, len(all))
	for i, rec := range all {
		id := rec.ID.String()
		dir, ok := grantDir(id)
		if !ok {
			logger.Warn("sitegen: grant skipped, id not usable as a path", map[string]interface{}{"id": id})
			continue
		}
		g.Go(func() error {
			if err := b.write(filepath.Join(dir, "index.html"), func(w io.Writer) error {
				return static.Detail(gctx, w, id)
			}); err != nil {
				return err
			}
			if err := b.write(filepath.Join(dir, "scheda.pdf"), func(w io.Writer) error {
				return static.Sheet(gctx, w, id)
			}); err != nil {
				return err
			}
			written[i] = 2
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	for _, c := range written {
		sum.Files += c
	}

	sum.Duration = time.Since(start)
	logger.Info("sitegen: build complete", map[string]interface{}{
		"out":           opts.OutDir,
		"files":         sum.Files,
		"grants":        sum.Grants,
		"catalog_pages": sum.CatalogPages,
		"duration_ms":   sum.Duration.Milliseconds(),
	})
	return sum, nil
}

// catalogPages writes catalogo/index.html and catalogo/pagina/N/index.html
// until the pipeline reports no further page.
func (b *builder) catalogPages(ctx context.Context) (int, error) {
	st := catalog.NewState(b.site.PageSize)
	count := 0
	for {
		rel := "catalogo/index.html"
		if st.Page > 1 {
			rel = fmt.Sprintf("catalogo/pagina/%d/index.html", st.Page)
		}
		var res catalog.Result
		err := b.write(rel, func(w io.Writer) error {
			var rerr error
			res, rerr = b.site.CatalogPage(ctx, w, st)
			return rerr
		})
		if err != nil {
			return count, err
		}
		count++
		if res.Failed {
			return count, fmt.Errorf("sitegen: catalog page %d: document unavailable", st.Page)
		}
		if !res.HasMore {
			return count, nil
		}
		st = st.Next()
	}
}

func (b *builder) write(rel string, render func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("sitegen: render %s: %w", rel, err)
	}
	path := filepath.Join(b.out, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sitegen: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("sitegen: %w", err)
	}
	return nil
}

// grantDir is the output directory of a grant, matching the escaped route.
func grantDir(id string) (string, bool) {
	seg := url.PathEscape(id)
	if seg == "" || seg == "." || seg == ".." {
		return "", false
	}
	return filepath.Join("catalogo", seg), true
}

func writeDocument(w io.Writer, all interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(all)
}
