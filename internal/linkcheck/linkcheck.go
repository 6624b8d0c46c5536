// Package linkcheck verifies that the official page of each grant still
// answers, and looks for an archived copy when it does not.
package linkcheck

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"alsolved/internal/metrics"
	"alsolved/internal/models"
	sentryutil "alsolved/internal/sentry"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome for one grant.
type Result struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	WaybackURL string `json:"wayback_url,omitempty"`
}

// Checker holds the HTTP client and limits of a run.
type Checker struct {
	Client      *http.Client
	Concurrency int
	// Wayback is consulted for broken links; nil disables recovery.
	Wayback *Wayback
}

// New returns a checker with a 10s timeout and at most three redirects.
func New() *Checker {
	return &Checker{
		Client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		Concurrency: 5,
		Wayback:     NewWayback(),
	}
}

// CheckLink reports whether url answers 2xx/3xx. Servers that refuse HEAD
// are retried with GET.
func (c *Checker) CheckLink(ctx context.Context, url string) (bool, int, error) {
	status, err := c.probe(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.probe(ctx, http.MethodGet, url)
	}
	if err != nil {
		return false, 0, err
	}
	return status >= 200 && status < 400, status, nil
}

func (c *Checker) probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", config.Cfg.UserAgent)
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9")
	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckAll checks every grant with an http(s) url, in document order.
// Grants without a url are skipped.
func (c *Checker) CheckAll(ctx context.Context, grants []models.GrantRecord) []Result {
	var todo []models.GrantRecord
	for _, g := range grants {
		if strings.HasPrefix(g.URL, "http://") || strings.HasPrefix(g.URL, "https://") {
			todo = append(todo, g)
		}
	}
	results := make([]Result, len(todo))

	limit := c.Concurrency
	if limit <= 0 {
		limit = 5
	}
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, g := range todo {
		eg.Go(func() error {
			results[i] = c.check(ctx, g)
			return nil
		})
	}
	eg.Wait()

	broken := 0
	for _, r := range results {
		if !r.OK {
			broken++
		}
	}
	logger.Info("linkcheck: completed", map[string]interface{}{"broken": broken, "total": len(results)})
	return results
}

func (c *Checker) check(ctx context.Context, g models.GrantRecord) Result {
	r := Result{ID: g.ID.String(), URL: g.URL}
	ok, status, err := c.CheckLink(ctx, g.URL)
	r.OK, r.StatusCode = ok, status
	if err != nil {
		r.Error = err.Error()
	}
	if ok {
		metrics.LinkChecks.WithLabelValues("ok").Inc()
		logger.Debug("linkcheck: OK", map[string]interface{}{"id": r.ID, "url": r.URL})
		return r
	}

	outcome := "broken"
	if c.Wayback != nil {
		if archived, found := c.Wayback.Lookup(ctx, g.URL); found {
			r.WaybackURL = archived
			outcome = "archived"
		}
	}
	metrics.LinkChecks.WithLabelValues(outcome).Inc()
	logger.Warn("linkcheck: broken", map[string]interface{}{
		"id": r.ID, "url": r.URL, "status": status, "wayback": r.WaybackURL,
	})
	sentryutil.CaptureError(fmt.Errorf("broken link for grant %s: status %d", r.ID, status), map[string]string{
		"component": "linkcheck",
		"grant_id":  r.ID,
		"url":       r.URL,
	})
	return r
}
