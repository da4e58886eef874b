package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cardiosense/assessment-api/internal/agent"
	"github.com/cardiosense/assessment-api/internal/config"
	"github.com/cardiosense/assessment-api/internal/lifecycle"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/service"
	"github.com/cardiosense/assessment-api/internal/testutil"
)

type stubEngine struct {
	mu    sync.Mutex
	turns []agent.TurnResult
	err   error
	coach string
}

func (e *stubEngine) Turn(context.Context, []agent.Message) (agent.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return agent.TurnResult{}, e.err
	}
	if len(e.turns) == 0 {
		return agent.TurnResult{Reply: "¿Cuál es tu edad?"}, nil
	}
	t := e.turns[0]
	e.turns = e.turns[1:]
	return t, nil
}

func (e *stubEngine) Coach(_ context.Context, q string, _ agent.CoachContext, _ []agent.Message) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.coach + q, nil
}

type env struct {
	db       *sql.DB
	engine   *stubEngine
	chat     *ChatHandler
	assess   *AssessmentHandler
	account  *AccountHandler
	admin    *AdminHandler
	auth     *AuthHandler
	user     model.User
	stranger model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	eng := &stubEngine{coach: "coach: "}
	users := repository.NewUserRepo(db)
	chatSvc := &service.ChatService{
		Sessions:     repository.NewSessionRepo(db),
		Messages:     repository.NewMessageRepo(db),
		Assessments:  repository.NewAssessmentRepo(db),
		Plans:        repository.NewActionPlanRepo(db),
		Engine:       eng,
		Events:       service.NopPublisher{},
		Log:          logger.Nop(),
		HistoryLimit: 40,
	}
	store := lifecycle.RepoStore{Sessions: chatSvc.Sessions, Messages: chatSvc.Messages, Assessments: chatSvc.Assessments, Plans: chatSvc.Plans}
	mgr := lifecycle.NewManager(store, chatSvc, lifecycle.NewMemoryLocker(), nil, logger.Nop(),
		config.LifecycleConfig{RedirectDelay: 1500 * time.Millisecond, SendLockTTL: time.Minute, HistoryLimit: 40})
	cache := &SharedCache{Log: logger.Nop()}
	cfg := config.Config{Env: "test", JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: testutil.BcryptCost}

	return &env{
		db:       db,
		engine:   eng,
		chat:     &ChatHandler{Chat: chatSvc, Manager: mgr, Cache: cache, Log: logger.Nop()},
		assess:   &AssessmentHandler{Assessments: chatSvc.Assessments, Plans: chatSvc.Plans, Manager: mgr, Cache: cache, Log: logger.Nop()},
		account:  &AccountHandler{Users: users, Profiles: repository.NewProfileRepo(db), Assessments: chatSvc.Assessments, Plans: chatSvc.Plans, Manager: mgr, Log: logger.Nop()},
		admin:    &AdminHandler{Users: users, Sessions: chatSvc.Sessions, Messages: chatSvc.Messages, Assessments: chatSvc.Assessments, Log: logger.Nop()},
		auth:     NewAuthHandler(cfg, users, repository.NewTokenRepo(db)),
		user:     testutil.User(t, db, "ana@example.com", model.RoleUser),
		stranger: testutil.User(t, db, "otro@example.com", model.RoleUser),
	}
}

// call runs h against a fresh echo context authenticated as uid.
// params alternates name and value.
func call(t *testing.T, h echo.HandlerFunc, method, target, body, uid string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != "" {
		c.Set("user_id", uid)
		c.Set("role", model.RoleUser)
	}
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func predictionTurn(score float64) agent.TurnResult {
	w, h := 75.0, 170.0
	return agent.TurnResult{Reply: "Tu evaluación está lista", PredictionMade: true, Prediction: &agent.Prediction{
		RiskScore: score, RiskLevel: model.ClassifyRisk(score), ModelUsed: "diabetes",
		Payload: model.Payload{WeightKG: &w, HeightCM: &h, PlanText: "Camina 30 minutos al día.", Citations: []string{"OMS 2020"}},
	}}
}

func TestRegisterLoginAndMe(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.auth.Register, http.MethodPost, "/v1/auth/register", `{"email":" Nuevo@Example.com ","password":"abcdef"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got=%d body=%s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["redirect"] != "/app" {
		t.Fatalf("unexpected redirect: %v", body["redirect"])
	}
	if u := body["user"].(map[string]any); u["email"] != "nuevo@example.com" || u["role"] != model.RoleUser {
		t.Fatalf("unexpected user: %v", u)
	}

	rec = call(t, en.auth.Register, http.MethodPost, "/v1/auth/register", `{"email":"nuevo@example.com","password":"abcdef"}`, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: got=%d", rec.Code)
	}
	rec = call(t, en.auth.Register, http.MethodPost, "/v1/auth/register", `{"email":"x@example.com","password":"abc"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: got=%d", rec.Code)
	}

	rec = call(t, en.auth.Login, http.MethodPost, "/v1/auth/login", `{"email":"nuevo@example.com","password":"wrong!"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: got=%d", rec.Code)
	}
	rec = call(t, en.auth.Login, http.MethodPost, "/v1/auth/login", `{"email":"nuevo@example.com","password":"abcdef"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got=%d body=%s", rec.Code, rec.Body)
	}
	login := decode(t, rec)
	refresh := login["refresh"].(map[string]any)["token"].(string)
	uid := login["user"].(map[string]any)["id"].(string)

	rec = call(t, en.auth.Me, http.MethodGet, "/v1/auth/me", "", uid)
	if rec.Code != http.StatusOK || decode(t, rec)["email"] != "nuevo@example.com" {
		t.Fatalf("me: got=%d body=%s", rec.Code, rec.Body)
	}

	rec = call(t, en.auth.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: got=%d body=%s", rec.Code, rec.Body)
	}
	// rotated: the old token is spent
	rec = call(t, en.auth.Refresh, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`, "")
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["redirect"] != "/login" {
		t.Fatalf("reused refresh: got=%d body=%s", rec.Code, rec.Body)
	}
}

func TestChatStateWelcomeThenSend(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.chat.State, http.MethodGet, "/v1/chat/state", "", en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("state: got=%d", rec.Code)
	}
	var view lifecycle.View
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.State != lifecycle.StateWelcoming || len(view.Messages) != 1 || view.Messages[0].Content != lifecycle.WelcomeMessage {
		t.Fatalf("unexpected view: %+v", view)
	}

	rec = call(t, en.chat.Send, http.MethodPost, "/v1/chat/send", `{"content":"   "}`, en.user.ID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank send: got=%d", rec.Code)
	}

	rec = call(t, en.chat.Send, http.MethodPost, "/v1/chat/send", `{"content":"Hola"}`, en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("send: got=%d body=%s", rec.Code, rec.Body)
	}
	var first lifecycle.SendOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if first.State != lifecycle.StateCollecting || first.SessionID == "" {
		t.Fatalf("unexpected outcome: %+v", first)
	}

	en.engine.turns = []agent.TurnResult{predictionTurn(0.73)}
	rec = call(t, en.chat.Send, http.MethodPost, "/v1/chat/send", `{"content":"Peso 75 kg","session_id":"`+first.SessionID+`"}`, en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("predicting send: got=%d body=%s", rec.Code, rec.Body)
	}
	var second lifecycle.SendOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session not reused: %s vs %s", second.SessionID, first.SessionID)
	}
	if second.State != lifecycle.StatePredicted || second.Redirect == nil || second.Redirect.Path != "/coach?assessment="+second.AssessmentID {
		t.Fatalf("unexpected prediction outcome: %+v", second)
	}

	rec = call(t, en.chat.Send, http.MethodPost, "/v1/chat/send", `{"content":"otra vez"}`, en.user.ID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("blocked send: got=%d body=%s", rec.Code, rec.Body)
	}
	if decode(t, rec)["plan_path"] != "/coach?assessment="+second.AssessmentID {
		t.Fatalf("blocked response lacks plan path: %s", rec.Body)
	}
}

func TestChatMessageEndpoint(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":""}`, en.user.ID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty content: got=%d", rec.Code)
	}

	rec = call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":"Hola"}`, en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("message: got=%d body=%s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["prediction_made"] != false || body["session_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	if hist := body["history"].([]any); len(hist) != 2 {
		t.Fatalf("history: got=%d want=2", len(hist))
	}

	en.engine.err = errors.New("engine timeout")
	rec = call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":"Sigo"}`, en.user.ID)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("engine failure: got=%d", rec.Code)
	}
	en.engine.err = nil

	testutil.Assessment(t, en.db, en.user.ID, 0.4)
	rec = call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":"Hola"}`, en.user.ID)
	if rec.Code != http.StatusConflict {
		t.Fatalf("message with assessment: got=%d", rec.Code)
	}
}

func TestDeleteSessionOwnership(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":"Hola"}`, en.user.ID)
	sid := decode(t, rec)["session_id"].(string)

	rec = call(t, en.chat.DeleteSession, http.MethodDelete, "/api/chat/session/"+sid, "", en.stranger.ID, "id", sid)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: got=%d", rec.Code)
	}
	rec = call(t, en.chat.DeleteSession, http.MethodDelete, "/api/chat/session/"+sid, "", en.user.ID, "id", sid)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: got=%d body=%s", rec.Code, rec.Body)
	}
	if n := decode(t, rec)["messages_deleted"].(float64); n != 2 {
		t.Fatalf("messages_deleted: got=%v want=2", n)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	en := newEnv(t)
	call(t, en.chat.Message, http.MethodPost, "/api/chat/message", `{"content":"Hola"}`, en.user.ID)
	testutil.Assessment(t, en.db, en.user.ID, 0.8)

	for i := 0; i < 2; i++ {
		rec := call(t, en.chat.Reset, http.MethodDelete, "/v1/users/reset-account", "", en.user.ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("reset %d: got=%d", i, rec.Code)
		}
		var out struct {
			Result lifecycle.ResetResult `json:"result"`
			View   lifecycle.View        `json:"view"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out.Result.Errors) != 0 {
			t.Fatalf("reset %d errors: %v", i, out.Result.Errors)
		}
		if out.View.State != lifecycle.StateWelcoming {
			t.Fatalf("reset %d view: %s", i, out.View.State)
		}
		if i == 1 && (out.Result.AssessmentsDeleted != 0 || out.Result.MessagesDeleted != 0) {
			t.Fatalf("second reset deleted rows: %+v", out.Result)
		}
	}
}

func TestCoachViewAndDeletePlan(t *testing.T) {
	en := newEnv(t)
	a := testutil.Assessment(t, en.db, en.user.ID, 0.73)

	rec := call(t, en.assess.CoachView, http.MethodGet, "/v1/coach?assessment="+a.ID, "", en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("coach view: got=%d body=%s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	res := body["assessment"].(map[string]any)
	if res["risk_percent"] != "73" || res["bmi"] != "26.0" || res["bmi_category"] != "Sobrepeso" {
		t.Fatalf("unexpected result view: %v", res)
	}
	if body["coach_welcome"] != service.CoachWelcome {
		t.Fatalf("coach welcome missing")
	}

	rec = call(t, en.assess.CoachView, http.MethodGet, "/v1/coach", "", en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("coach view latest: got=%d", rec.Code)
	}
	rec = call(t, en.assess.CoachView, http.MethodGet, "/v1/coach?assessment="+a.ID, "", en.stranger.ID)
	if rec.Code != http.StatusNotFound || decode(t, rec)["redirect"] != "/chat" {
		t.Fatalf("foreign coach view: got=%d body=%s", rec.Code, rec.Body)
	}

	rec = call(t, en.assess.DeletePlan, http.MethodDelete, "/v1/plans/"+a.ID, "", en.stranger.ID, "id", a.ID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: got=%d", rec.Code)
	}
	rec = call(t, en.assess.DeletePlan, http.MethodDelete, "/v1/plans/"+a.ID, "", en.user.ID, "id", a.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete plan: got=%d body=%s", rec.Code, rec.Body)
	}
	body = decode(t, rec)
	if body["redirect"] != "/chat" || body["state"] != string(lifecycle.StateWelcoming) {
		t.Fatalf("unexpected navigation: %v", body)
	}

	rec = call(t, en.chat.State, http.MethodGet, "/v1/chat/state", "", en.user.ID)
	if decode(t, rec)["state"] != string(lifecycle.StateWelcoming) {
		t.Fatalf("state after delete: %s", rec.Body)
	}
}

func TestCoachChat(t *testing.T) {
	en := newEnv(t)
	a := testutil.Assessment(t, en.db, en.user.ID, 0.5)

	rec := call(t, en.chat.Coach, http.MethodPost, "/api/chat/coach", `{"content":"¿Qué como?","assessment_id":"`+a.ID+`"}`, en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("coach: got=%d body=%s", rec.Code, rec.Body)
	}
	if decode(t, rec)["reply"] != "coach: ¿Qué como?" {
		t.Fatalf("unexpected reply: %s", rec.Body)
	}
	rec = call(t, en.chat.Coach, http.MethodPost, "/api/chat/coach", `{"content":"hola","assessment_id":"`+a.ID+`"}`, en.stranger.ID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign coach: got=%d", rec.Code)
	}
}

func TestShareAndPublicView(t *testing.T) {
	en := newEnv(t)
	a := testutil.Assessment(t, en.db, en.user.ID, 0.25)

	rec := call(t, en.assess.Share, http.MethodPost, "/v1/results/"+a.ID+"/share", "", en.user.ID, "id", a.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("share: got=%d body=%s", rec.Code, rec.Body)
	}
	token := decode(t, rec)["token"].(string)

	rec = call(t, en.assess.Share, http.MethodPost, "/v1/results/"+a.ID+"/share", "", en.user.ID, "id", a.ID)
	if decode(t, rec)["token"] != token {
		t.Fatalf("second share issued a new token")
	}

	rec = call(t, en.assess.Shared, http.MethodGet, "/v1/shared/"+token, "", "", "token", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("shared: got=%d", rec.Code)
	}
	body := decode(t, rec)
	if body["risk_level"] != string(model.RiskLow) || body["shared"] != true {
		t.Fatalf("unexpected shared view: %v", body)
	}
	if prof := body["profile"].(map[string]any); len(prof) != 0 {
		t.Fatalf("shared view leaked profile: %v", prof)
	}

	rec = call(t, en.assess.Shared, http.MethodGet, "/v1/shared/nope", "", "", "token", "nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown token: got=%d", rec.Code)
	}
	rec = call(t, en.assess.Result, http.MethodGet, "/v1/results/"+a.ID, "", en.stranger.ID, "id", a.ID)
	if rec.Code != http.StatusNotFound || decode(t, rec)["redirect"] != "/history" {
		t.Fatalf("foreign result: got=%d body=%s", rec.Code, rec.Body)
	}
}

func TestHistoryAndDashboard(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.assess.History, http.MethodGet, "/v1/history", "", en.user.ID)
	if rec.Code != http.StatusOK || decode(t, rec)["average_percent"] != "—" {
		t.Fatalf("empty history: got=%d body=%s", rec.Code, rec.Body)
	}

	testutil.Assessment(t, en.db, en.user.ID, 0.2)
	testutil.Assessment(t, en.db, en.user.ID, 0.4)
	rec = call(t, en.assess.History, http.MethodGet, "/v1/history", "", en.user.ID)
	body := decode(t, rec)
	if body["count"].(float64) != 2 || body["average_percent"] != "30" {
		t.Fatalf("history: %v", body)
	}

	rec = call(t, en.account.Dashboard, http.MethodGet, "/v1/app", "", en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: got=%d body=%s", rec.Code, rec.Body)
	}
	body = decode(t, rec)
	if body["state"] != string(lifecycle.StateBlocked) || body["assessments"].(float64) != 2 {
		t.Fatalf("dashboard: %v", body)
	}
	if prefs := body["preferences"].(map[string]any); prefs["theme"] != model.ThemeSystem || prefs["disclaimer_dismissed"] != false {
		t.Fatalf("default preferences: %v", prefs)
	}
}

func TestPreferences(t *testing.T) {
	en := newEnv(t)

	rec := call(t, en.account.GetPreferences, http.MethodGet, "/v1/preferences", "", en.user.ID)
	prefs := decode(t, rec)["preferences"].(map[string]any)
	if prefs["theme"] != "system" || prefs["disclaimer_dismissed"] != false {
		t.Fatalf("defaults: %v", prefs)
	}

	rec = call(t, en.account.PutPreferences, http.MethodPut, "/v1/preferences", `{"theme":"neon"}`, en.user.ID)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid theme: got=%d", rec.Code)
	}
	rec = call(t, en.account.PutPreferences, http.MethodPut, "/v1/preferences", `{"theme":"Dark","disclaimer_dismissed":true}`, en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: got=%d body=%s", rec.Code, rec.Body)
	}
	rec = call(t, en.account.PutPreferences, http.MethodPut, "/v1/preferences", `{"display_name":"Ana"}`, en.user.ID)
	body := decode(t, rec)
	prefs = body["preferences"].(map[string]any)
	if body["display_name"] != "Ana" || prefs["theme"] != "dark" || prefs["disclaimer_dismissed"] != true {
		t.Fatalf("partial update lost fields: %v", body)
	}

	// other users keep the defaults
	rec = call(t, en.account.GetPreferences, http.MethodGet, "/v1/preferences", "", en.stranger.ID)
	if decode(t, rec)["preferences"].(map[string]any)["theme"] != "system" {
		t.Fatalf("preferences leaked across users")
	}
}

func TestAdminStatsAndUsers(t *testing.T) {
	en := newEnv(t)
	testutil.Assessment(t, en.db, en.user.ID, 0.2)
	testutil.Assessment(t, en.db, en.stranger.ID, 0.7)

	rec := call(t, en.admin.Stats, http.MethodGet, "/v1/admin/stats", "", en.user.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: got=%d body=%s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["users"].(float64) != 2 || body["assessments"].(float64) != 2 {
		t.Fatalf("stats: %v", body)
	}
	levels := body["by_level"].(map[string]any)
	if levels["low"].(float64) != 1 || levels["high"].(float64) != 1 {
		t.Fatalf("by_level: %v", levels)
	}

	rec = call(t, en.admin.ListUsers, http.MethodGet, "/v1/admin/users?limit=1", "", en.user.ID)
	body = decode(t, rec)
	if items := body["items"].([]any); len(items) != 1 {
		t.Fatalf("limit ignored: %v", body)
	}
}
