package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/queue"
	"github.com/filotkyc/engine/statemanager"
	"github.com/filotkyc/engine/storage"
)

// workerLivenessWindow is how recently the worker pool must have started or
// completed a document for /health to call it alive.
const workerLivenessWindow = 2 * time.Minute

// circuitBreaker is the subset of reviewer.Forwarder's public surface this
// handler needs; defined here so api does not import reviewer's HTTP/
// gobreaker machinery directly.
type circuitBreaker interface {
	CircuitOpen() bool
}

// HealthHandler implements GET /health: liveness plus the readiness probes
// the D.1 supplemented feature calls for (substrate, database, blob, worker
// pool liveness, reviewer circuit breaker state).
type HealthHandler struct {
	Substrate *queue.Substrate
	DB        *db.Pool
	Blob      *storage.Blob
	States    *statemanager.Manager
	Breaker   circuitBreaker
	Build     logging.BuildInfo
}

// Handle reports overall health as the conjunction of every dependency
// probe; any single probe failing still returns 200 with ok:false so load
// balancers can distinguish "degraded" from "unreachable".
func (h *HealthHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	redisErr := h.Substrate.Ping(ctx)
	dbErr := h.DB.Ping(ctx)
	blobErr := h.Blob.Ping(ctx)

	workerAlive := h.States == nil || h.States.RecentlyActive(workerLivenessWindow)
	circuitOpen := h.Breaker != nil && h.Breaker.CircuitOpen()

	ok := redisErr == nil && dbErr == nil && blobErr == nil && workerAlive

	resp := map[string]any{
		"ok":                  ok,
		"redisConnected":      redisErr == nil,
		"dbConnected":         dbErr == nil,
		"blobConnected":       blobErr == nil,
		"workerPoolAlive":     workerAlive,
		"reviewCircuitOpen":   circuitOpen,
		"goVersion":           h.Build.GoVersion,
		"modulePath":          h.Build.ModulePath,
		"moduleVersion":       h.Build.ModuleVersion,
	}
	if redisErr != nil {
		resp["redisError"] = redisErr.Error()
	}
	if dbErr != nil {
		resp["dbError"] = dbErr.Error()
	}
	if blobErr != nil {
		resp["blobError"] = blobErr.Error()
	}

	return c.JSON(http.StatusOK, resp)
}
