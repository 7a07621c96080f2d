package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/kycerr"
)

// writeErr renders any error through the kycerr taxonomy's HTTP mapping,
// falling back to 500 for anything unclassified.
func writeErr(c echo.Context, err error) error {
	kerr, ok := err.(*kycerr.Error)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		})
	}
	return c.JSON(kerr.HTTPStatus(), map[string]string{
		"code":    kerr.Code,
		"message": kerr.Message,
	})
}
