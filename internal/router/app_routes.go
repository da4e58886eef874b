package router

import (
	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/handler"
	"github.com/cardiosense/assessment-api/internal/middleware"
	"github.com/cardiosense/assessment-api/internal/model"
)

// Handlers groups the application handlers mounted by RegisterApp.
type Handlers struct {
	Chat       *handler.ChatHandler
	Assessment *handler.AssessmentHandler
	Account    *handler.AccountHandler
	Admin      *handler.AdminHandler
}

// RegisterApp registers the authenticated application surface, the chat
// API and the public share view. limit is applied to every authenticated
// route; cache sits in front of the share view only.
func RegisterApp(e *echo.Echo, h Handlers, jwtSecret string, limit, cache echo.MiddlewareFunc) {
	jwt := middleware.JWTAuth(jwtSecret)

	// chat API consumed by the lifecycle and by external clients
	api := e.Group("/api/chat", jwt, limit)
	api.POST("/message", h.Chat.Message)
	api.POST("/coach", h.Chat.Coach)
	api.DELETE("/session/:id", h.Chat.DeleteSession)

	g := e.Group("/v1", jwt, limit)
	g.GET("/app", h.Account.Dashboard)

	g.GET("/chat/state", h.Chat.State)
	g.POST("/chat/send", h.Chat.Send)
	g.POST("/chat/reset", h.Chat.Reset)

	g.GET("/coach", h.Assessment.CoachView)
	g.GET("/plans/active", h.Assessment.ActivePlan)
	g.DELETE("/plans/:id", h.Assessment.DeletePlan)

	g.GET("/history", h.Assessment.History)
	g.GET("/results/:id", h.Assessment.Result)
	g.POST("/results/:id/share", h.Assessment.Share)

	g.GET("/preferences", h.Account.GetPreferences)
	g.PUT("/preferences", h.Account.PutPreferences)
	g.DELETE("/users/reset-account", h.Chat.Reset)

	admin := e.Group("/v1/admin", jwt, middleware.RequireRole(model.RoleAdmin), limit)
	admin.GET("/stats", h.Admin.Stats)
	admin.GET("/users", h.Admin.ListUsers)

	e.GET(handler.SharedRoute, h.Assessment.Shared, cache)
}
