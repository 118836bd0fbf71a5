// Package server exposes the read-only status surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rtsp-timelapse/pkg/handlers"
)

// SetupRouter wires the status endpoints. timelapsesDir is served as static
// files under /timelapses.
func SetupRouter(h *handlers.Handlers, timelapsesDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.HandleHealth)
	r.Static("/timelapses", timelapsesDir)

	api := r.Group("/api")
	{
		api.GET("/status", h.HandleStatus)
		api.GET("/timelapses", h.HandleTimelapses)
		api.GET("/frames/latest", h.HandleLatestFrame)
		api.GET("/logs", h.HandleLog)
		api.POST("/generate", h.HandleForceGenerate)
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// StartServer serves r on addr until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, addr string, r *gin.Engine) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("status server stopped")
	return nil
}
