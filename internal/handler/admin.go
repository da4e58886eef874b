package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/format"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/repository"
)

// AdminHandler serves the role-gated /v1/admin endpoints.
type AdminHandler struct {
	Users       *repository.UserRepo
	Sessions    *repository.SessionRepo
	Messages    *repository.MessageRepo
	Assessments *repository.AssessmentRepo
	Log         *logger.Logger
}

// Stats handles GET /v1/admin/stats.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, err := h.Assessments.Stats(ctx)
	if err != nil {
		h.Log.Error("admin stats failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load stats"})
	}
	users, err := h.Users.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not count users"})
	}
	sessions, err := h.Sessions.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not count sessions"})
	}
	messages, err := h.Messages.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not count messages"})
	}

	avg := format.Placeholder
	if st.Total > 0 {
		avg = format.RiskPercent(st.AverageScore)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"users":           users,
		"sessions":        sessions,
		"messages":        messages,
		"assessments":     st.Total,
		"by_level":        st.ByLevel,
		"by_model":        st.ByModel,
		"average_score":   st.AverageScore,
		"average_percent": avg,
	})
}

type adminUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// ListUsers handles GET /v1/admin/users?limit=&offset=.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	us, err := h.Users.List(ctx, limit, offset)
	if err != nil {
		h.Log.Error("admin users failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list users"})
	}
	out := make([]adminUser, 0, len(us))
	for _, u := range us {
		out = append(out, adminUser{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, CreatedAt: format.FormatDateTime(u.CreatedAt)})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limit, "offset": offset})
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
