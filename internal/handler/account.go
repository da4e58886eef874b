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
)

// AccountHandler serves the dashboard and the per-user preferences.
type AccountHandler struct {
	Users       *repository.UserRepo
	Profiles    *repository.ProfileRepo
	Assessments *repository.AssessmentRepo
	Plans       *repository.ActionPlanRepo
	Manager     *lifecycle.Manager
	Log         *logger.Logger
}

type planSummary struct {
	AssessmentID string `json:"assessment_id"`
	PlanText     string `json:"plan_text"`
	EndDate      string `json:"end_date"`
}

type dashboard struct {
	Email       string             `json:"email"`
	DisplayName string             `json:"display_name,omitempty"`
	Preferences model.Preferences  `json:"preferences"`
	State       lifecycle.State    `json:"state"`
	Latest      *format.ResultView `json:"latest,omitempty"`
	Assessments int                `json:"assessments"`
	ActivePlan  *planSummary       `json:"active_plan,omitempty"`
	NextPath    string             `json:"next_path"`
}

// Dashboard handles GET /v1/app. Each section degrades independently:
// a failed read leaves its part empty and is logged.
func (h *AccountHandler) Dashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid := userIDOf(c)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user", "redirect": "/login"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load user"})
	}

	out := dashboard{Email: u.Email, Preferences: model.DefaultPreferences()}
	if p, err := h.Profiles.Get(ctx, uid); err == nil {
		out.DisplayName = p.DisplayName
		out.Preferences = p.Preferences
	} else {
		h.Log.Warn("dashboard: profile lookup failed", "user_id", uid, "error", err)
	}

	view := h.Manager.LoadState(ctx, uid)
	out.State = view.State
	out.NextPath = lifecycle.ChatPath
	if view.PlanPath != "" {
		out.NextPath = view.PlanPath
	}

	if as, err := h.Assessments.ListByUser(ctx, uid, historyLimit); err == nil {
		out.Assessments = len(as)
		if len(as) > 0 {
			v := format.Result(as[0])
			out.Latest = &v
		}
	} else {
		h.Log.Warn("dashboard: assessment lookup failed", "user_id", uid, "error", err)
	}

	if p, err := h.Plans.ActiveForUser(ctx, uid, time.Now().UTC()); err == nil {
		out.ActivePlan = &planSummary{AssessmentID: p.AssessmentID, PlanText: p.PlanText, EndDate: format.FormatDate(p.EndDate)}
	} else if !errors.Is(err, repository.ErrNotFound) {
		h.Log.Warn("dashboard: plan lookup failed", "user_id", uid, "error", err)
	}
	return c.JSON(http.StatusOK, out)
}

// GetPreferences handles GET /v1/preferences. Users without a stored
// profile see the defaults.
func (h *AccountHandler) GetPreferences(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Profiles.Get(ctx, userIDOf(c))
	if err != nil {
		h.Log.Warn("preferences lookup failed", "user_id", userIDOf(c), "error", err)
		return c.JSON(http.StatusOK, echo.Map{"preferences": model.DefaultPreferences()})
	}
	return c.JSON(http.StatusOK, echo.Map{"display_name": p.DisplayName, "preferences": p.Preferences})
}

type preferencesReq struct {
	DisplayName         *string `json:"display_name"`
	DisclaimerDismissed *bool   `json:"disclaimer_dismissed"`
	Theme               *string `json:"theme"`
}

// PutPreferences handles PUT /v1/preferences. Omitted fields keep their
// stored (or default) value.
func (h *AccountHandler) PutPreferences(c echo.Context) error {
	var req preferencesReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid := userIDOf(c)
	p, err := h.Profiles.Get(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load preferences"})
	}
	if req.Theme != nil {
		t := strings.ToLower(strings.TrimSpace(*req.Theme))
		if !model.ValidTheme(t) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "theme must be system, light or dark"})
		}
		p.Preferences.Theme = t
	}
	if req.DisclaimerDismissed != nil {
		p.Preferences.DisclaimerDismissed = *req.DisclaimerDismissed
	}
	if req.DisplayName != nil {
		p.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if err := h.Profiles.Upsert(ctx, &p); err != nil {
		h.Log.Error("preferences update failed", "user_id", uid, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not save preferences"})
	}
	return c.JSON(http.StatusOK, echo.Map{"display_name": p.DisplayName, "preferences": p.Preferences})
}
