package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/cardiosense/assessment-api/internal/config"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/middleware"
	"github.com/cardiosense/assessment-api/internal/repository"
)

// SharedRoute is the public share view; its responses are cached.
const SharedRoute = "/v1/shared/:token"

// notFound answers a missing or foreign resource. The redirect tells the
// client where to go instead of rendering an error page.
func notFound(c echo.Context, what, redirect string) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": what + " not found", "redirect": redirect})
}

// repoError maps repository sentinels onto responses. Anything unknown
// is a 500 with the generic message msg.
func repoError(c echo.Context, err error, what, redirect, msg string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrForbidden):
		return notFound(c, what, redirect)
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": what + " conflict"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
	}
}

func userIDOf(c echo.Context) string { return middleware.UserID(c) }

// SharedCache evicts cached share views when the assessment behind them
// goes away. A nil Redis client makes it a no-op.
type SharedCache struct {
	Cfg config.CacheConfig
	RDB *redis.Client
	Log *logger.Logger
}

func (s *SharedCache) Evict(ctx context.Context, tokens ...string) {
	if s == nil {
		return
	}
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if err := middleware.EvictCache(ctx, s.Cfg, s.RDB, SharedRoute, t); err != nil && s.Log != nil {
			s.Log.Warn("evict shared view failed", "error", err)
		}
	}
}
