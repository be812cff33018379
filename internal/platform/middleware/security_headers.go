package middleware

import (
	"github.com/labstack/echo/v4"
)

// HeaderPolicy selects the optional response headers.
type HeaderPolicy struct {
	// HSTS pins clients to HTTPS. Leave it off for plain-HTTP development.
	HSTS bool
}

// SecurityHeaders marks every response as uncacheable and unembeddable.
// Appointment lists and calendar feeds name patients, so intermediaries must
// not keep copies.
func SecurityHeaders(policy HeaderPolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			if policy.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
