package api

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/filotkyc/engine/callback"
	"github.com/filotkyc/engine/identity"
	"github.com/filotkyc/engine/statemanager"
)

// ServerConfig configures the Echo server, trimmed from the teacher's
// http.ServerConfig to the fields this engine's HTTP surface actually
// uses; registry auto-registration is dropped (see DESIGN.md).
type ServerConfig struct {
	Addr            string
	BodyLimit       string
	ShutdownTimeout time.Duration
	// RateLimit caps requests per second per client IP; 0 disables it.
	RateLimit float64
}

// Handlers aggregates every route handler the router wires up.
type Handlers struct {
	Documents  *DocumentsHandler
	Verify     *VerificationHandler
	Callback   *callback.Handler
	Internal   *InternalHandler
	Health     *HealthHandler
	Metrics    *MetricsHandler
	Verifier   identity.Verifier
	ServiceKey string
	// States, if set, exposes the Worker Pool's recent-operations tracker
	// under /internal/operations for ops troubleshooting. Optional.
	States *statemanager.Manager
}

// NewEcho builds an Echo instance with the teacher's standard middleware
// stack (logger, recover, body limit, request ID) and every route in §6's
// HTTP Surface table wired to its handler.
func NewEcho(cfg ServerConfig, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if he, ok := err.(*echo.HTTPError); ok {
			_ = c.JSON(he.Code, map[string]any{"message": he.Message})
			return
		}
		_ = c.JSON(500, map[string]string{"message": err.Error()})
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	e.GET("/health", h.Health.Handle)
	e.GET("/metrics", h.Metrics.Handle)
	e.GET("/metrics/prom", h.Metrics.HandlePrometheus)

	user := e.Group("", RequireUser(h.Verifier))
	user.POST("/documents/upload", h.Documents.Upload)
	user.POST("/documents/:id/process", h.Documents.Process)
	user.GET("/documents/:id/result", h.Documents.Result)
	user.GET("/documents/:id/download", h.Documents.Download)
	user.POST("/verification/evaluate", h.Verify.Evaluate)
	user.GET("/verification/status/:docId", h.Verify.Status)
	user.POST("/verification/:docId/escalate", h.Verify.Escalate)

	internal := e.Group("/internal", RequireServiceKey(h.ServiceKey))
	internal.POST("/reviews/:reviewId/callback", h.Callback.Handle)
	internal.POST("/verification/result", h.Internal.Result)
	if h.States != nil {
		h.States.RegisterRoutes(internal.Group("/operations"))
	}

	return e
}

// StartAndWait runs e until ctx is cancelled, then shuts it down within
// cfg.ShutdownTimeout.
func StartAndWait(ctx context.Context, e *echo.Echo, cfg ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
