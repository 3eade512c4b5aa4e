// Package middleware provides Echo middleware for logging, metrics and security.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"useapi-go/internal/redact"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Query strings are logged with credential-like values redacted.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_in", req.ContentLength,
				"bytes_out", res.Size,
			}
			if req.URL.RawQuery != "" {
				attrs = append(attrs, "query", redact.String(req.URL.RawQuery))
			}
			if err != nil {
				attrs = append(attrs, "err", redact.Error(err))
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}
