package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/cardiosense/assessment-api/internal/agent"
	"github.com/cardiosense/assessment-api/internal/config"
	"github.com/cardiosense/assessment-api/internal/database"
	"github.com/cardiosense/assessment-api/internal/handler"
	"github.com/cardiosense/assessment-api/internal/lifecycle"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/middleware"
	"github.com/cardiosense/assessment-api/internal/queue"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/router"
	"github.com/cardiosense/assessment-api/internal/service"
)

func main() {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg := config.Load()
	agentCfg, err := config.LoadAgentConfig()
	if err != nil {
		log.Fatalf("agent config: %v", err)
	}
	lifeCfg, err := config.LoadLifecycleConfig()
	if err != nil {
		log.Fatalf("lifecycle config: %v", err)
	}
	rateCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		lg.Fatal("open database", "driver", cfg.DBDriver, "error", err)
	}
	defer db.Close()

	// nil when Redis is unreachable; rate limiting, caching and the send
	// lock fall back to in-process implementations
	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable, using in-process fallbacks")
	}

	events := service.NewPublisher(cfg.RabbitURL, lg.With("component", "events"))
	if cfg.RabbitURL != "" {
		consumer := queue.NewAuditConsumer(cfg.RabbitURL, lg.With("component", "audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	engine := agent.New(agentCfg)
	if !engine.Enabled() {
		lg.Warn("engine disabled, chat answers with the unavailable reply")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	profiles := repository.NewProfileRepo(db)
	sessions := repository.NewSessionRepo(db)
	messages := repository.NewMessageRepo(db)
	assessments := repository.NewAssessmentRepo(db)
	plans := repository.NewActionPlanRepo(db)

	chat := &service.ChatService{
		Sessions:     sessions,
		Messages:     messages,
		Assessments:  assessments,
		Plans:        plans,
		Engine:       engine,
		Events:       events,
		Log:          lg.With("component", "chat"),
		HistoryLimit: lifeCfg.HistoryLimit,
	}
	store := lifecycle.RepoStore{Sessions: sessions, Messages: messages, Assessments: assessments, Plans: plans}
	manager := lifecycle.NewManager(store, chat, lifecycle.NewLocker(rdb), events, lg.With("component", "lifecycle"), lifeCfg)
	shared := &handler.SharedCache{Cfg: cacheCfg, RDB: rdb, Log: lg}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLogger(lg.With("component", "http")))

	limit := middleware.NewTokenBucket(rateCfg, rdb)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret, limit)
	router.RegisterApp(e, router.Handlers{
		Chat: &handler.ChatHandler{
			Chat: chat, Manager: manager, Cache: shared, Log: lg, EngineTimeout: agentCfg.Timeout + 5*time.Second,
		},
		Assessment: &handler.AssessmentHandler{
			Assessments: assessments, Plans: plans, Manager: manager, Cache: shared, Log: lg,
		},
		Account: &handler.AccountHandler{
			Users: users, Profiles: profiles, Assessments: assessments, Plans: plans, Manager: manager, Log: lg,
		},
		Admin: &handler.AdminHandler{
			Users: users, Sessions: sessions, Messages: messages, Assessments: assessments, Log: lg,
		},
	}, cfg.JWTSecret, limit, middleware.NewRedisCache(cacheCfg, rdb))

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", "error", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	lg.Info("stopped")
}
