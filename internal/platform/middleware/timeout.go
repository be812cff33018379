package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout gives each request a context deadline. Handlers run on the
// request goroutine and see the deadline through their queries; when one
// gives up because the deadline passed, the client receives 504 instead of
// the handler's error. Paths under an exempt prefix carry no deadline.
func RequestTimeout(timeout time.Duration, exempt ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || hasAnyPrefix(c.Request().URL.Path, exempt) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && causedByDeadline(err) {
				return gatewayTimeout(c)
			}
			return err
		}
	}
}

// causedByDeadline looks through echo's HTTPError wrapper, which handlers
// use to hide internal failures behind a 500.
func causedByDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Internal != nil && errors.Is(he.Internal, context.DeadlineExceeded)
}

func gatewayTimeout(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(http.StatusGatewayTimeout, map[string]string{
		"message": "request processing exceeded the allowed time limit",
	})
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
