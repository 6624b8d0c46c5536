package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cfg is the global configuration loaded at startup.
var Cfg Config

// Config holds all application configuration.
type Config struct {
	// Server
	Port     string
	BaseURL  string
	BasePath string

	// Data source: local path or http(s) URL of bandi.json
	DataSource   string
	FetchRetries int
	FetchTimeout time.Duration
	UserAgent    string
	CacheTTL     time.Duration
	StaleFor     time.Duration

	// Refresh
	RefreshSchedule string
	WatchData       bool

	// Redis (optional shared cache of the data source)
	RedisURL string
	RedisTTL time.Duration

	// Catalog
	PageSize       int
	SearchDebounce time.Duration

	// Contacts
	ContactEmail string
	ConsultEmail string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string

	// Rate limiter
	RateLimitRPS   int
	RateLimitBurst int
	// TrustedProxies are the IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	GzipEnabled    bool
	MetricsEnabled bool
	LogLevel       string

	// Export
	ExportDB    string
	ExportLimit int
}

// Load reads .env (if present) and populates Cfg from environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables")
	}

	Cfg = Config{
		Port:     envOr("PORT", "8080"),
		BaseURL:  strings.TrimSuffix(envOr("BASE_URL", "https://alsolved.github.io"), "/"),
		BasePath: NormalizeBasePath(os.Getenv("BASE_PATH")),

		DataSource:   envOr("DATA_SOURCE", "public/bandi.json"),
		FetchRetries: envInt("FETCH_RETRIES", 3),
		FetchTimeout: envDuration("FETCH_TIMEOUT", 15*time.Second),
		UserAgent:    envOr("USER_AGENT", "Mozilla/5.0 (compatible; AlSolvedBot/1.0)"),
		CacheTTL:     envDuration("CACHE_TTL", 5*time.Minute),
		StaleFor:     envDuration("STALE_FOR", 24*time.Hour),

		RefreshSchedule: envOr("REFRESH_SCHEDULE", "@every 15m"),
		WatchData:       envBool("WATCH_DATA", true),

		RedisURL: os.Getenv("REDIS_URL"),
		RedisTTL: envDuration("REDIS_TTL", 10*time.Minute),

		PageSize:       envInt("PAGE_SIZE", 12),
		SearchDebounce: envDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),

		ContactEmail: envOr("CONTACT_EMAIL", "info@alsolved.it"),
		ConsultEmail: envOr("CONSULT_EMAIL", "consulenza@alsolved.com"),

		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "production"),
		SentryRelease:     envOr("SENTRY_RELEASE", "alsolved@1.0.0"),

		RateLimitRPS:   envInt("RATE_LIMIT_RPS", 30),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 60),
		TrustedProxies: envList("TRUSTED_PROXIES"),

		GzipEnabled:    envBool("GZIP_ENABLED", true),
		MetricsEnabled: envBool("METRICS_ENABLED", true),
		LogLevel:       envOr("LOG_LEVEL", "info"),

		ExportDB:    envOr("EXPORT_DB", "data/db/bandi.db"),
		ExportLimit: envInt("EXPORT_LIMIT", 200),
	}

	if Cfg.PageSize <= 0 {
		Cfg.PageSize = 12
	}

	log.Printf("config: loaded (port=%s, base_path=%q, data=%s, redis=%s)",
		Cfg.Port, Cfg.BasePath, Cfg.DataSource, maskRedis(Cfg.RedisURL))
}

// NormalizeBasePath turns "AlSolved_Bandi/", "/AlSolved_Bandi" or "" into
// "/AlSolved_Bandi" or "". Root is always the empty string.
func NormalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// Path joins the deployment base path with an absolute site path.
func (c Config) Path(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.BasePath + p
}

// URL returns the absolute public URL of a site path.
func (c Config) URL(p string) string {
	return c.BaseURL + c.Path(p)
}

func maskRedis(u string) string {
	if u == "" {
		return "(disabled)"
	}
	if i := strings.Index(u, "@"); i >= 0 {
		return "redis://***" + u[i:]
	}
	return u
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
