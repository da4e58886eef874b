package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user id stored by JWTAuth, or "" for
// anonymous requests.
func UserID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok {
		return s
	}
	return ""
}

// Role returns the role claim stored by JWTAuth.
func Role(c echo.Context) string {
	s, _ := c.Get("role").(string)
	return s
}

// currentUserID is UserID with "anon" for anonymous callers, for use in
// rate limit keys.
func currentUserID(c echo.Context) string {
	if uid := UserID(c); uid != "" {
		return uid
	}
	return "anon"
}
