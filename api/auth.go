// Package api implements the HTTP Surface (§6): route handlers wiring the
// engine's components to Echo, plus the two auth middlewares the contract
// table calls "user" and "service-key + HMAC". Token/signature
// verification internals beyond that are a non-goal (spec.md §1); these
// middlewares do the minimum the contract requires and no more.
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/filotkyc/engine/identity"
)

// userContextKey/emailContextKey are the Echo context keys the auth
// middleware stores the resolved identity under.
const (
	userContextKey  = "filotkyc.subject"
	emailContextKey = "filotkyc.email"
)

// RequireUser verifies a bearer token via v and stamps the resolved subject
// on the Echo context for handlers to read via Subject(c). The User row
// itself is resolved lazily by the handler via
// UserRepository.GetOrCreateBySubject, per the §3 "created lazily on first
// successful auth-token verification" rule.
func RequireUser(v identity.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			principal, err := v.Verify(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(userContextKey, principal.Subject)
			c.Set(emailContextKey, principal.Email)
			return next(c)
		}
	}
}

// Subject returns the bearer token's subject stamped by RequireUser.
func Subject(c echo.Context) string {
	s, _ := c.Get(userContextKey).(string)
	return s
}

// Email returns the bearer token's email claim, if any, stamped by
// RequireUser.
func Email(c echo.Context) string {
	s, _ := c.Get(emailContextKey).(string)
	return s
}

// RequireServiceKey implements the "service-key + HMAC" auth cell for
// internal endpoints: a shared opaque key in `x-service-key`, checked
// before the per-payload HMAC the handler itself verifies.
func RequireServiceKey(serviceKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if serviceKey == "" {
				return next(c)
			}
			key := c.Request().Header.Get("x-service-key")
			if key == "" || key != serviceKey {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing service key")
			}
			return next(c)
		}
	}
}
