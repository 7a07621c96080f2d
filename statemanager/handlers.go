package statemanager

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires the worker pool's operation tracker under g: a list
// endpoint that can be scoped to one of this engine's tracked operation
// kinds via ?operation=, a lookup by the Document or ManualReview ID used
// as the tracking key, and aggregate stats.
func (m *Manager) RegisterRoutes(g *echo.Group) {
	g.GET("/state", m.handleListOperations)
	g.GET("/state/:id", m.handleGetOperation)
	g.GET("/state/stats", m.handleGetStats)
}

// handleListOperations returns tracked operations, optionally filtered to
// one kind, e.g. /state?operation=forward_review to see only review
// escalations and not document processing attempts.
func (m *Manager) handleListOperations(c echo.Context) error {
	return c.JSON(http.StatusOK, m.OperationsOfKind(c.QueryParam("operation")))
}

// handleGetOperation returns a single tracked operation by its Document or
// ManualReview ID.
func (m *Manager) handleGetOperation(c echo.Context) error {
	id := c.Param("id")
	op := m.GetOperation(id)
	if op == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "operation not found",
		})
	}
	return c.JSON(http.StatusOK, op)
}

// handleGetStats returns aggregated counts by status and operation kind.
func (m *Manager) handleGetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, m.GetStats())
}
