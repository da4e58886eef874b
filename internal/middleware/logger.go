package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/logger"
)

// RequestLogger logs one line per request: method, path, status, latency,
// request id and the authenticated user when there is one.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			kv := []interface{}{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
			}
			if uid := UserID(c); uid != "" {
				kv = append(kv, "user_id", uid)
			}
			switch {
			case res.Status >= 500:
				log.Error("request", kv...)
			case res.Status >= 400:
				log.Warn("request", kv...)
			default:
				log.Info("request", kv...)
			}
			return nil
		}
	}
}
