// Package datasource loads the published grant document (bandi.json) from a
// local file or over HTTP, with caching and refresh around it.
package datasource

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"alsolved/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// DocumentName is the file name of the published document.
const DocumentName = "bandi.json"

// maxDocumentSize bounds what is read from a remote document.
const maxDocumentSize = 32 * 1024 * 1024

// Source yields the full grant document.
type Source interface {
	Fetch(ctx context.Context) ([]models.GrantRecord, error)
}

// Decode parses a JSON array of grant records. Records with an empty or
// duplicate id, and elements that are not valid records, are dropped.
func Decode(r io.Reader) ([]models.GrantRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("datasource: read document: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("datasource: document is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("datasource: document is not a JSON array")
	}

	out := []models.GrantRecord{}
	seen := make(map[string]bool)
	var malformed, noID, duplicate int
	doc.ForEach(func(_, v gjson.Result) bool {
		var g models.GrantRecord
		if !v.IsObject() || json.Unmarshal([]byte(v.Raw), &g) != nil {
			malformed++
			return true
		}
		id := g.ID.String()
		switch {
		case id == "":
			noID++
		case seen[id]:
			duplicate++
		default:
			seen[id] = true
			out = append(out, g)
		}
		return true
	})

	if malformed+noID+duplicate > 0 {
		logger.Warn("datasource: records dropped", map[string]interface{}{
			"malformed": malformed, "missing_id": noID, "duplicate_id": duplicate, "kept": len(out),
		})
	}
	return out, nil
}

// FileSource reads the document from disk on every Fetch.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context) ([]models.GrantRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("datasource: open %s: %w", s.Path, err)
	}
	defer f.Close()
	return Decode(f)
}

// HTTPSource downloads the document with retries.
type HTTPSource struct {
	// BaseURL is the site origin, or the full document URL when Name is empty.
	BaseURL  string
	BasePath string
	Name     string

	client *retryablehttp.Client
}

// NewHTTPSource builds a source for <baseURL><basePath>/<name>.
func NewHTTPSource(baseURL, basePath, name string) *HTTPSource {
	c := retryablehttp.NewClient()
	c.RetryMax = config.Cfg.FetchRetries
	c.HTTPClient.Timeout = config.Cfg.FetchTimeout
	c.Logger = retryLogger{}
	return &HTTPSource{BaseURL: baseURL, BasePath: basePath, Name: name, client: c}
}

// URL returns the address of the document.
func (s *HTTPSource) URL() string {
	base := strings.TrimSuffix(s.BaseURL, "/")
	if s.Name == "" {
		return base
	}
	return base + ResolvePath(s.BasePath, s.Name)
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]models.GrantRecord, error) {
	client := s.client
	if client == nil {
		client = NewHTTPSource(s.BaseURL, s.BasePath, s.Name).client
	}
	u := s.URL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("datasource: build request: %w", err)
	}
	req.Header.Set("User-Agent", config.Cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datasource: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("datasource: HTTP %d from %s", resp.StatusCode, u)
	}
	return Decode(io.LimitReader(resp.Body, maxDocumentSize))
}

// ResolvePath joins the deployment base path and a file name into an
// absolute URL path. "/AlSolved_Bandi" + "bandi.json" gives
// "/AlSolved_Bandi/bandi.json"; an empty base gives "/bandi.json".
func ResolvePath(basePath, name string) string {
	return path.Join("/", basePath, name)
}

// Open builds the source chain described by the configuration: a file or
// HTTP source, optionally behind Redis, always behind the in-memory cache.
func Open(ctx context.Context, cfg config.Config) (*Cache, error) {
	var src Source
	switch ds := cfg.DataSource; {
	case strings.HasPrefix(ds, "http://"), strings.HasPrefix(ds, "https://"):
		src = NewHTTPSource(ds, "", "")
	case ds == "":
		src = NewHTTPSource(cfg.BaseURL, cfg.BasePath, DocumentName)
	default:
		src = &FileSource{Path: ds}
	}

	if cfg.RedisURL != "" {
		rdb, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("datasource: redis unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			src = &RedisCache{Client: rdb, Key: "alsolved:" + DocumentName, TTL: cfg.RedisTTL, Next: src}
		}
	}

	logger.Info("datasource: configured", map[string]interface{}{
		"source": kind(src), "ttl": cfg.CacheTTL.String(), "stale_for": cfg.StaleFor.String(),
	})
	c := NewCache(src, cfg.CacheTTL)
	c.StaleFor = cfg.StaleFor
	return c, nil
}

func kind(src Source) string {
	switch s := src.(type) {
	case *FileSource:
		return "file"
	case *HTTPSource:
		return "http"
	case *RedisCache:
		return "redis+" + kind(s.Next)
	}
	return "custom"
}

// retryLogger routes retryablehttp's leveled messages to the site logger.
type retryLogger struct{}

func fields(kv []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[fmt.Sprint(kv[i])] = fmt.Sprint(kv[i+1])
	}
	return m
}

func (retryLogger) Error(msg string, kv ...interface{}) { logger.Error("http: "+msg, fields(kv)) }
func (retryLogger) Warn(msg string, kv ...interface{})  { logger.Warn("http: "+msg, fields(kv)) }
func (retryLogger) Info(msg string, kv ...interface{})  { logger.Debug("http: "+msg, fields(kv)) }
func (retryLogger) Debug(msg string, kv ...interface{}) { logger.Debug("http: "+msg, fields(kv)) }
