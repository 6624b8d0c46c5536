package linkcheck

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// Wayback queries the Internet Archive availability API.
type Wayback struct {
	Endpoint string
	Client   *http.Client
}

func NewWayback() *Wayback {
	return &Wayback{
		Endpoint: "https://archive.org/wayback/available",
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup returns the closest archived snapshot of rawURL, if any.
func (w *Wayback) Lookup(ctx context.Context, rawURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?url="+url.QueryEscape(rawURL), nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", config.Cfg.UserAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		logger.Warn("wayback: request failed", map[string]interface{}{"url": rawURL, "error": err.Error()})
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", false
	}

	closest := gjson.GetBytes(body, "archived_snapshots.closest")
	if !closest.Get("available").Bool() {
		return "", false
	}
	archived := closest.Get("url").String()
	if archived == "" {
		return "", false
	}
	logger.Info("wayback: found archived snapshot", map[string]interface{}{
		"original": rawURL, "archived": archived, "timestamp": closest.Get("timestamp").String(),
	})
	return archived, true
}
