// Package sentryutil wires error reporting. Without SENTRY_DSN every call is
// a no-op.
package sentryutil

import (
	"alsolved/internal/config"
	"alsolved/internal/logger"
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

func clientOptions(cfg config.Config) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		Release:          cfg.SentryRelease,
		TracesSampleRate: 0.2,
		EnableTracing:    cfg.SentryDSN != "",
		BeforeSend:       scrub,
	}
}

// scrub drops client identity and query strings; filter values typed by
// visitors are not error context.
func scrub(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	if event.Request != nil {
		event.Request.QueryString = ""
		event.Request.Cookies = ""
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "X-Forwarded-For")
	}
	return event
}

func Init() {
	if err := sentry.Init(clientOptions(config.Cfg)); err != nil {
		logger.Warn("sentry: init failed (non-blocking)", map[string]interface{}{"error": err.Error()})
		return
	}
	if config.Cfg.SentryDSN == "" {
		logger.Info("sentry: SENTRY_DSN empty, error tracking disabled", nil)
		return
	}
	logger.Info("sentry: initialized", map[string]interface{}{"environment": config.Cfg.SentryEnvironment})
}

func Flush() { sentry.Flush(2 * time.Second) }

// WithRequestID returns ctx carrying a hub of its own, tagged with the
// request id, for CaptureErrorContext and the Recovery middleware.
func WithRequestID(ctx context.Context, id string) context.Context {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub = hub.Clone()
	hub.Scope().SetTag("request_id", id)
	return sentry.SetHubOnContext(ctx, hub)
}

// CaptureError reports err on the global hub.
func CaptureError(err error, tags map[string]string) {
	capture(sentry.CurrentHub(), err, tags)
}

// CaptureErrorContext reports err on the hub of ctx, so request scoped tags
// travel with it. It falls back to the global hub.
func CaptureErrorContext(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	capture(hub, err, tags)
}

func capture(hub *sentry.Hub, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
