package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/auth"
	"exceptiontracker/src/handler"
	"exceptiontracker/src/metrics"
)

// NewRouter assembles the public endpoints and the authenticated exception API.
func NewRouter(svc handler.Workflow, q handler.Queries) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(auth.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})
	r.Handle("/metrics", metrics.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.PrincipalFromHeaders)
		r.Mount("/api/v1", handler.Routes(svc, q))
	})
	return r
}

// StartServer serves h until SIGINT or SIGTERM, then shuts down gracefully.
// onShutdown runs after the listener has stopped accepting requests.
func StartServer(cfg *Config, h http.Handler, onShutdown func(ctx context.Context)) {
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	if onShutdown != nil {
		onShutdown(ctx)
	}
}
