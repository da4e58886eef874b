package middleware // reusable echo middleware: auth, roles, rate limiting, caching, request logs

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/utils"
)

// AccessCookie is the cookie browsers carry the access token in.
const AccessCookie = "access_token"

// LoginPath is where unauthenticated clients are sent.
const LoginPath = "/login"

// JWTAuth validates an HS256 access token taken from the Authorization
// header ("Bearer <jwt>") or, failing that, from the access_token cookie.
// The subject and role claims are stored under "user_id" and "role" for
// downstream handlers. Failures answer 401 with a redirect hint.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return unauthorized(c, "missing access token")
			}
			uid, role, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return unauthorized(c, "invalid token")
			}
			c.Set("user_id", uid)
			c.Set("role", role)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg, "redirect": LoginPath})
}
