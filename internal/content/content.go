// Package content loads the informational pages of the site (home, servizi,
// chi-siamo) from markdown files with YAML frontmatter.
package content

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

//go:embed pages/*.md
var embedded embed.FS

// Page is one informational page.
type Page struct {
	Slug        string `yaml:"slug"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Order       int    `yaml:"order"`
	Hero        string `yaml:"hero"`
	CTA         string `yaml:"cta"`

	// HTML is the rendered body. Pages are authored in this repository.
	HTML template.HTML `yaml:"-"`
}

var (
	pages []Page
	mu    sync.RWMutex
)

// LoadEmbedded loads the pages shipped with the binary.
func LoadEmbedded() error {
	return Load(embedded, "pages")
}

// Load reads every .md file of dir in fsys and replaces the loaded pages,
// sorted by order.
func Load(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Typographer))
	var loaded []Page
	seen := map[string]bool{}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		p, err := parsePage(data, md)
		if err != nil {
			return fmt.Errorf("content: %s: %w", e.Name(), err)
		}
		if p.Slug == "" {
			p.Slug = strings.TrimSuffix(e.Name(), ".md")
		}
		if seen[p.Slug] {
			return fmt.Errorf("content: duplicate slug %q", p.Slug)
		}
		seen[p.Slug] = true
		loaded = append(loaded, p)
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].Order < loaded[j].Order
	})

	mu.Lock()
	pages = loaded
	mu.Unlock()
	return nil
}

func parsePage(data []byte, md goldmark.Markdown) (Page, error) {
	content := strings.TrimPrefix(string(data), "\xef\xbb\xbf")

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[0]) != "" {
		return Page{}, fmt.Errorf("invalid frontmatter")
	}

	var p Page
	if err := yaml.Unmarshal([]byte(parts[1]), &p); err != nil {
		return Page{}, err
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(strings.TrimSpace(parts[2])), &buf); err != nil {
		return Page{}, err
	}
	p.HTML = template.HTML(buf.String())
	return p, nil
}

// All returns the pages sorted by order.
func All() []Page {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Page, len(pages))
	copy(out, pages)
	return out
}

// BySlug returns a page, or false when unknown.
func BySlug(slug string) (Page, bool) {
	mu.RLock()
	defer mu.RUnlock()
	for _, p := range pages {
		if p.Slug == slug {
			return p, true
		}
	}
	return Page{}, false
}
