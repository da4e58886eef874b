package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/agent"
	"github.com/cardiosense/assessment-api/internal/lifecycle"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/service"
)

// ChatHandler serves the chat API (/api/chat/*) and the lifecycle view
// of the chat page (/v1/chat/*).
type ChatHandler struct {
	Chat    *service.ChatService
	Manager *lifecycle.Manager
	Cache   *SharedCache
	Log     *logger.Logger
	// EngineTimeout bounds one chat turn end to end.
	EngineTimeout time.Duration
}

type messageReq struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

type coachReq struct {
	Content      string          `json:"content"`
	AssessmentID string          `json:"assessment_id"`
	History      []agent.Message `json:"history"`
}

func (h *ChatHandler) turnCtx(c echo.Context) (context.Context, context.CancelFunc) {
	d := h.EngineTimeout
	if d <= 0 {
		d = 90 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// Message handles POST /api/chat/message.
func (h *ChatHandler) Message(c echo.Context) error {
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.turnCtx(c)
	defer cancel()

	res, err := h.Chat.HandleMessage(ctx, userIDOf(c), req.Content, strings.TrimSpace(req.SessionID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "content required"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "assessment already exists", "redirect": "/coach"})
		case errors.Is(err, repository.ErrNotFound):
			return notFound(c, "session", lifecycle.ChatPath)
		}
		h.Log.Error("chat message failed", "user_id", userIDOf(c), "error", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error(), "session_id": res.SessionID})
	}
	return c.JSON(http.StatusOK, res)
}

// DeleteSession handles DELETE /api/chat/session/:id.
func (h *ChatHandler) DeleteSession(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	n, err := h.Chat.DeleteSession(ctx, userIDOf(c), c.Param("id"))
	if err != nil {
		return repoError(c, err, "session", lifecycle.ChatPath, "delete session failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true, "messages_deleted": n})
}

// Coach handles POST /api/chat/coach.
func (h *ChatHandler) Coach(c echo.Context) error {
	var req coachReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.AssessmentID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "assessment_id required"})
	}
	ctx, cancel := h.turnCtx(c)
	defer cancel()

	reply, err := h.Chat.Coach(ctx, userIDOf(c), req.AssessmentID, req.Content, req.History)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "content required"})
		case errors.Is(err, repository.ErrNotFound):
			return notFound(c, "assessment", "/app")
		}
		h.Log.Error("coach message failed", "user_id", userIDOf(c), "error", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"reply": reply})
}

// State handles GET /v1/chat/state. It always answers 200.
func (h *ChatHandler) State(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()
	return c.JSON(http.StatusOK, h.Manager.LoadState(ctx, userIDOf(c)))
}

// Send handles POST /v1/chat/send.
func (h *ChatHandler) Send(c echo.Context) error {
	var req messageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.turnCtx(c)
	defer cancel()

	out, err := h.Manager.SendMessage(ctx, userIDOf(c), req.Content, strings.TrimSpace(req.SessionID))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, out)
	case errors.Is(err, lifecycle.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrSendInFlight):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrBlocked):
		view := h.Manager.LoadState(ctx, userIDOf(c))
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error(), "state": view.State, "plan_path": view.PlanPath})
	case errors.Is(err, repository.ErrNotFound):
		return notFound(c, "session", lifecycle.ChatPath)
	default:
		h.Log.Error("chat send failed", "user_id", userIDOf(c), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "send failed"})
	}
}

// Reset handles POST /v1/chat/reset and DELETE /v1/users/reset-account.
// The response is always 200: partial failures are listed in
// result.errors and the view is reloaded either way.
func (h *ChatHandler) Reset(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	uid := userIDOf(c)
	tokens := h.shareTokens(ctx, uid)
	res := h.Manager.ResetAll(ctx, uid)
	h.Cache.Evict(ctx, tokens...)
	return c.JSON(http.StatusOK, echo.Map{
		"result": res,
		"view":   h.Manager.LoadState(ctx, uid),
	})
}

func (h *ChatHandler) shareTokens(ctx context.Context, userID string) []string {
	as, err := h.Chat.Assessments.ListByUser(ctx, userID, 0)
	if err != nil {
		h.Log.Warn("list share tokens failed", "user_id", userID, "error", err)
		return nil
	}
	var out []string
	for _, a := range as {
		if a.ShareToken != nil {
			out = append(out, *a.ShareToken)
		}
	}
	return out
}
