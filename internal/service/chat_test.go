package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/cardiosense/assessment-api/internal/agent"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/queue"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/testutil"
)

type fakeEngine struct {
	turns    []agent.TurnResult
	err      error
	calls    int
	lastSeen []agent.Message
	coachCtx agent.CoachContext
}

func (f *fakeEngine) Turn(_ context.Context, history []agent.Message) (agent.TurnResult, error) {
	f.lastSeen = history
	if f.err != nil {
		return agent.TurnResult{}, f.err
	}
	res := f.turns[f.calls]
	f.calls++
	return res, nil
}

func (f *fakeEngine) Coach(_ context.Context, q string, a agent.CoachContext, _ []agent.Message) (string, error) {
	f.coachCtx = a
	return "respuesta: " + q, nil
}

type recordingPublisher struct{ events []queue.LifecycleEvent }

func (r *recordingPublisher) Publish(_ context.Context, ev queue.LifecycleEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func newChatService(db *sql.DB, eng Engine, pub Publisher) *ChatService {
	return &ChatService{
		Sessions:     repository.NewSessionRepo(db),
		Messages:     repository.NewMessageRepo(db),
		Assessments:  repository.NewAssessmentRepo(db),
		Plans:        repository.NewActionPlanRepo(db),
		Engine:       eng,
		Events:       pub,
		Log:          logger.Nop(),
		HistoryLimit: 40,
	}
}

func TestHandleMessageReusesSessionAndStoresPrediction(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	u := testutil.User(t, db, "chat@example.com", model.RoleUser)

	c := 0.2
	eng := &fakeEngine{turns: []agent.TurnResult{
		{Reply: "¿Cuánto mides?"},
		{Reply: "Listo, calculé tu riesgo.", PredictionMade: true, Prediction: &agent.Prediction{
			RiskScore: 0.73,
			RiskLevel: model.RiskHigh,
			ModelUsed: "cardiovascular",
			Drivers:   model.Drivers{model.ScoredFactor{Feature: "bmi", Contribution: &c, Impact: model.ImpactIncreases}},
			Payload:   model.Payload{PlanText: "Camina a diario."},
		}},
	}}
	pub := &recordingPublisher{}
	svc := newChatService(db, eng, pub)

	first, err := svc.HandleMessage(ctx, u.ID, "Tengo 35 años", "")
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if first.SessionID == "" || first.PredictionMade || first.AssessmentID != "" {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if len(first.History) != 2 || first.Response.Role != model.MessageRoleAssistant {
		t.Fatalf("unexpected first history: %+v", first.History)
	}

	second, err := svc.HandleMessage(ctx, u.ID, "Mido 170cm y peso 75kg", first.SessionID)
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session not reused: %s vs %s", second.SessionID, first.SessionID)
	}
	if len(eng.lastSeen) != 3 {
		t.Fatalf("engine should see the stored transcript, got %d messages", len(eng.lastSeen))
	}
	if !second.PredictionMade || second.AssessmentID == "" || second.ModelUsed != "cardiovascular" {
		t.Fatalf("prediction not reported: %+v", second)
	}

	session, err := repository.NewSessionRepo(db).GetByUser(ctx, u.ID)
	if err != nil || session.AssessmentID == nil || *session.AssessmentID != second.AssessmentID {
		t.Fatalf("assessment not linked: %+v err=%v", session, err)
	}
	plan, err := repository.NewActionPlanRepo(db).ActiveForUser(ctx, u.ID, session.CreatedAt)
	if err != nil || plan.PlanText != "Camina a diario." {
		t.Fatalf("legacy plan not written: %+v err=%v", plan, err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != queue.EventAssessmentCreated {
		t.Fatalf("unexpected events: %+v", pub.events)
	}

	if _, err := svc.HandleMessage(ctx, u.ID, "otra vez", first.SessionID); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("blocked user accepted: %v", err)
	}
	if eng.calls != 2 {
		t.Fatalf("engine called for a blocked user")
	}
}

func TestHandleMessageRejectsForeignSession(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	owner := testutil.User(t, db, "owner@example.com", model.RoleUser)
	other := testutil.User(t, db, "other@example.com", model.RoleUser)
	eng := &fakeEngine{turns: []agent.TurnResult{{Reply: "hola"}, {Reply: "hola"}}}
	svc := newChatService(db, eng, NopPublisher{})

	res, err := svc.HandleMessage(ctx, owner.ID, "hola", "")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, err := svc.HandleMessage(ctx, other.ID, "hola", res.SessionID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign session accepted: %v", err)
	}

	stale, err := svc.HandleMessage(ctx, other.ID, "hola", "gone")
	if err != nil || stale.SessionID == "" || stale.SessionID == res.SessionID {
		t.Fatalf("stale session id should fall back to own session: %+v err=%v", stale, err)
	}
}

func TestHandleMessageEngineFailureKeepsUserMessage(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	u := testutil.User(t, db, "fail@example.com", model.RoleUser)
	svc := newChatService(db, &fakeEngine{err: agent.ErrUnavailable}, NopPublisher{})

	if _, err := svc.HandleMessage(ctx, u.ID, "   ", ""); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("blank content: %v", err)
	}
	_, err := svc.HandleMessage(ctx, u.ID, "hola", "")
	if !errors.Is(err, agent.ErrUnavailable) {
		t.Fatalf("got=%v want=%v", err, agent.ErrUnavailable)
	}
	s, err := repository.NewSessionRepo(db).GetByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByUser: %v", err)
	}
	msgs, _ := repository.NewMessageRepo(db).ListBySession(ctx, s.ID, 0)
	if len(msgs) != 1 || msgs[0].Role != model.MessageRoleUser {
		t.Fatalf("unexpected transcript after failure: %+v", msgs)
	}
}

func TestCoachUsesOwnedAssessment(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	u := testutil.User(t, db, "coach@example.com", model.RoleUser)
	other := testutil.User(t, db, "x@example.com", model.RoleUser)
	a := testutil.Assessment(t, db, u.ID, 0.4)
	eng := &fakeEngine{}
	svc := newChatService(db, eng, NopPublisher{})

	reply, err := svc.Coach(ctx, u.ID, a.ID, "¿Cuánto camino?", nil)
	if err != nil || reply != "respuesta: ¿Cuánto camino?" {
		t.Fatalf("Coach: %q %v", reply, err)
	}
	if eng.coachCtx.PlanText != "Camina 30 minutos al día." || eng.coachCtx.Payload.PlanText != "" {
		t.Fatalf("unexpected coach context: %+v", eng.coachCtx)
	}
	if _, err := svc.Coach(ctx, other.ID, a.ID, "hola", nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("foreign assessment: %v", err)
	}
}
