package cmd

import (
	"alsolved/internal/catalog"
	"alsolved/internal/config"
	"alsolved/internal/content"
	"alsolved/internal/datasource"
	"alsolved/internal/handlers"
	"alsolved/internal/logger"
	"alsolved/internal/metrics"
	"alsolved/internal/middleware"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			config.Cfg.Port = port
		}
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			config.Cfg.DataSource = data
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "Listen port (default from PORT)")
	serveCmd.Flags().String("data", "", "Grant document: local path or http(s) URL (default from DATA_SOURCE)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	if err := content.LoadEmbedded(); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	cache, err := datasource.Open(ctx, config.Cfg)
	if err != nil {
		return err
	}

	site := handlers.NewSite(catalog.New(cache))
	site.Cache = cache

	refresher := datasource.NewRefresher(cache, config.Cfg.RefreshSchedule)
	if config.Cfg.RefreshSchedule != "" {
		if err := refresher.Start(ctx); err != nil {
			return err
		}
		defer refresher.Stop()
	}

	if path, ok := localDocument(config.Cfg.DataSource); ok && config.Cfg.WatchData {
		w := datasource.NewWatcher(path, 0, func() { refresher.Refresh(ctx) })
		if err := w.Start(ctx); err != nil {
			logger.Warn("serve: document watch disabled", map[string]interface{}{"error": err.Error()})
		} else {
			defer w.Close()
		}
	}

	limiter := handlers.NewRateLimiter(config.Cfg.RateLimitRPS, config.Cfg.RateLimitBurst)
	defer limiter.Stop()
	if err := limiter.TrustProxies(config.Cfg.TrustedProxies); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", handlers.Mount(site.Routes()))
	if config.Cfg.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Recovery → SecurityHeaders → RequestID → Metrics → Gzip (if enabled) → Rate Limiter
	var handler http.Handler = limiter.Middleware(mux)
	if config.Cfg.GzipEnabled {
		handler = middleware.Gzip(handler)
	}
	handler = middleware.Metrics(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(handler)

	srv := &http.Server{
		Addr:              ":" + config.Cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", map[string]interface{}{
			"port": config.Cfg.Port, "base_path": config.Cfg.BasePath,
		})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// localDocument reports whether the data source is a file on disk.
func localDocument(ds string) (string, bool) {
	if ds == "" || strings.HasPrefix(ds, "http://") || strings.HasPrefix(ds, "https://") {
		return "", false
	}
	return ds, true
}
