// Package api is the recordkit conversion service. It decodes raw
// payloads into records, encodes records back into their layout, applies
// character replacements and browses the record archive.
//
// All routes under /api/v1 require the X-API-Key header. /metrics is
// served without authentication for scraping.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ssargent/recordkit/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the HTTP handler with all routes configured
func NewRouter(config ServerConfig, deps Dependencies) http.Handler {
	server := NewServer(config, deps)
	metrics := server.deps.Metrics

	origins := config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(server.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Record-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Layouts
		r.Get("/layouts", metrics.InstrumentHandler("GET", "/api/v1/layouts", server.handleListLayouts))
		r.Get("/layouts/{name}", metrics.InstrumentHandler("GET", "/api/v1/layouts/{name}", server.handleGetLayout))
		r.Post("/layouts/{name}/decode", metrics.InstrumentHandler("POST", "/api/v1/layouts/{name}/decode", server.handleDecode))
		r.Post("/layouts/{name}/encode", metrics.InstrumentHandler("POST", "/api/v1/layouts/{name}/encode", server.handleEncode))

		// Character replacement
		r.Post("/replace/{type}", metrics.InstrumentHandler("POST", "/api/v1/replace/{type}", server.handleReplace))

		// Archive
		r.Get("/archive/{recordType}", metrics.InstrumentHandler("GET", "/api/v1/archive/{recordType}", server.handleListArchive))
		r.Get("/archive/{recordType}/{id}", metrics.InstrumentHandler("GET", "/api/v1/archive/{recordType}/{id}", server.handleGetArchive))
		r.Delete("/archive/{recordType}/{id}", metrics.InstrumentHandler("DELETE", "/api/v1/archive/{recordType}/{id}", server.handleDeleteArchive))
	})

	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, config ServerConfig, deps Dependencies) error {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if config.APIKey == "" {
		return errors.New("api key is required to start the server")
	}

	addr := net.JoinHostPort(config.Bind, strconv.Itoa(config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(config, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("starting recordkit server", "addr", addr, "layout_dir", config.LayoutDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	deps.Logger.Info("shutting down recordkit server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// requestLogger is chi's request logger writing through the service logger
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  printLogger{log: log},
		NoColor: true,
	})
}

// printLogger adapts Logger to chi's LoggerInterface
type printLogger struct {
	log logger.Logger
}

func (p printLogger) Print(v ...interface{}) {
	p.log.Info(strings.TrimSpace(fmt.Sprint(v...)))
}
