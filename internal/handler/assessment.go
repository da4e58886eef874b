package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/format"
	"github.com/cardiosense/assessment-api/internal/lifecycle"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/service"
	"github.com/cardiosense/assessment-api/internal/utils"
)

// AssessmentHandler serves the read side of assessments (results, coach,
// history, sharing) and plan deletion.
type AssessmentHandler struct {
	Assessments *repository.AssessmentRepo
	Plans       *repository.ActionPlanRepo
	Manager     *lifecycle.Manager
	Cache       *SharedCache
	Log         *logger.Logger
	Now         func() time.Time
}

func (h *AssessmentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// historyLimit caps GET /v1/history.
const historyLimit = 50

type coachView struct {
	Assessment   format.ResultView `json:"assessment"`
	CoachWelcome string            `json:"coach_welcome"`
	PlanText     string            `json:"plan_text"`
	Citations    []string          `json:"citations"`
	PlanPath     string            `json:"plan_path"`
}

// CoachView handles GET /v1/coach?assessment=<id>. Without an id the
// latest assessment is shown. Unlike the chat state, failures here are
// not softened.
func (h *AssessmentHandler) CoachView(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid := userIDOf(c)
	id := strings.TrimSpace(c.QueryParam("assessment"))
	a, err := h.lookup(ctx, uid, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrForbidden) {
			return notFound(c, "assessment", lifecycle.ChatPath)
		}
		h.Log.Error("coach view failed", "user_id", uid, "assessment_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load assessment"})
	}
	citations := a.Payload.Citations
	if citations == nil {
		citations = []string{}
	}
	return c.JSON(http.StatusOK, coachView{
		Assessment:   format.Result(a),
		CoachWelcome: service.CoachWelcome,
		PlanText:     a.Payload.PlanText,
		Citations:    citations,
		PlanPath:     lifecycle.CoachPath + "?assessment=" + a.ID,
	})
}

func (h *AssessmentHandler) lookup(ctx context.Context, userID, id string) (model.Assessment, error) {
	if id == "" {
		return h.Assessments.LatestByUser(ctx, userID)
	}
	return h.Assessments.GetForUser(ctx, userID, id)
}

// DeletePlan handles DELETE /v1/plans/:id. It removes exactly one
// assessment and tells the client to go back to the chat.
func (h *AssessmentHandler) DeletePlan(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	uid := userIDOf(c)
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	// the token has to be read before the row goes away
	var token string
	if a, err := h.Assessments.GetForUser(ctx, uid, id); err == nil && a.ShareToken != nil {
		token = *a.ShareToken
	}

	nav, err := h.Manager.DeletePlan(ctx, uid, id)
	if err != nil {
		h.Log.Warn("delete plan failed", "user_id", uid, "assessment_id", id, "error", err)
		return repoError(c, err, "assessment", "/history", "delete plan failed")
	}
	h.Cache.Evict(ctx, token)
	return c.JSON(http.StatusOK, echo.Map{"deleted": true, "redirect": nav.Path, "state": nav.State})
}

// ActivePlan handles GET /v1/plans/active: the legacy date-ranged plan.
func (h *AssessmentHandler) ActivePlan(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Plans.ActiveForUser(ctx, userIDOf(c), h.now())
	if err != nil {
		return repoError(c, err, "active plan", lifecycle.ChatPath, "could not load plan")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":            p.ID,
		"assessment_id": p.AssessmentID,
		"plan_text":     p.PlanText,
		"start_date":    format.FormatDate(p.StartDate),
		"end_date":      format.FormatDate(p.EndDate),
	})
}

// Result handles GET /v1/results/:id.
func (h *AssessmentHandler) Result(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	a, err := h.Assessments.GetForUser(ctx, userIDOf(c), c.Param("id"))
	if err != nil {
		return repoError(c, err, "assessment", "/history", "could not load assessment")
	}
	return c.JSON(http.StatusOK, format.Result(a))
}

// Share handles POST /v1/results/:id/share. Sharing twice returns the
// token issued the first time.
func (h *AssessmentHandler) Share(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	candidate, err := utils.NewShareToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	token, err := h.Assessments.SetShareToken(ctx, userIDOf(c), c.Param("id"), candidate)
	if err != nil {
		return repoError(c, err, "assessment", "/history", "share failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "path": "/shared/" + token})
}

// Shared handles GET /v1/shared/:token. It is public and the response
// goes through the Redis cache.
func (h *AssessmentHandler) Shared(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return notFound(c, "shared result", "/")
	}
	a, err := h.Assessments.GetByShareToken(ctx, token)
	if err != nil {
		return repoError(c, err, "shared result", "/", "could not load shared result")
	}
	v := format.Result(a)
	// the public view never exposes the raw profile
	v.Profile = model.Payload{}
	return c.JSON(http.StatusOK, v)
}

// History handles GET /v1/history.
func (h *AssessmentHandler) History(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	as, err := h.Assessments.ListByUser(ctx, userIDOf(c), historyLimit)
	if err != nil {
		h.Log.Error("history failed", "user_id", userIDOf(c), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load history"})
	}
	return c.JSON(http.StatusOK, format.BuildHistory(as))
}
