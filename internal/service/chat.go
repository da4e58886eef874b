package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardiosense/assessment-api/internal/agent"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/queue"
	"github.com/cardiosense/assessment-api/internal/repository"
)

// CoachWelcome seeds the coach transcript. Like the chat welcome it is
// never stored.
const CoachWelcome = "¡Hola! Soy tu coach de salud CardioSense. Estoy aquí para ayudarte a seguir tu plan personalizado. ¿Tienes alguna pregunta sobre tus recomendaciones?"

// ErrEmptyContent is returned for a blank message.
var ErrEmptyContent = errors.New("content is empty")

// Engine is the part of the agent client the chat service needs.
type Engine interface {
	Turn(ctx context.Context, history []agent.Message) (agent.TurnResult, error)
	Coach(ctx context.Context, question string, a agent.CoachContext, history []agent.Message) (string, error)
}

// MessageResult is the answer of one chat turn.
type MessageResult struct {
	Reply          string              `json:"reply"`
	Response       model.ChatMessage   `json:"response"`
	SessionID      string              `json:"session_id"`
	ModelUsed      string              `json:"model_used,omitempty"`
	AssessmentID   string              `json:"assessment_id,omitempty"`
	PredictionMade bool                `json:"prediction_made"`
	History        []model.ChatMessage `json:"history"`
}

type ChatService struct {
	Sessions     *repository.SessionRepo
	Messages     *repository.MessageRepo
	Assessments  *repository.AssessmentRepo
	Plans        *repository.ActionPlanRepo
	Engine       Engine
	Events       Publisher
	Log          *logger.Logger
	HistoryLimit int
	Now          func() time.Time
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleMessage runs one turn for userID:
//  1. refuse when the user already holds an assessment (ErrConflict)
//  2. resolve the user's single session
//  3. store the user message and load the recent transcript
//  4. ask the engine for the next reply and store it
//  5. on a prediction, store the assessment, link it to the session,
//     write the legacy plan row and publish assessment.created
//
// A sessionID owned by someone else yields ErrNotFound. An unknown one
// (for example left over from before a reset) falls back to the user's
// session. Engine failures are returned after the user message is stored.
func (s *ChatService) HandleMessage(ctx context.Context, userID, content, sessionID string) (MessageResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return MessageResult{}, ErrEmptyContent
	}
	exists, err := s.Assessments.ExistsForUser(ctx, userID)
	if err != nil {
		return MessageResult{}, fmt.Errorf("check assessment: %w", err)
	}
	if exists {
		return MessageResult{}, repository.ErrConflict
	}

	session, err := s.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return MessageResult{}, err
	}
	if _, err := s.Messages.Append(ctx, session.ID, model.MessageRoleUser, content); err != nil {
		return MessageResult{}, fmt.Errorf("save user message: %w", err)
	}
	history, err := s.Messages.ListBySession(ctx, session.ID, s.HistoryLimit)
	if err != nil {
		return MessageResult{}, fmt.Errorf("load history: %w", err)
	}

	turn, err := s.Engine.Turn(ctx, toAgentMessages(history))
	if err != nil {
		return MessageResult{SessionID: session.ID}, fmt.Errorf("engine turn: %w", err)
	}
	reply, err := s.Messages.Append(ctx, session.ID, model.MessageRoleAssistant, turn.Reply)
	if err != nil {
		return MessageResult{}, fmt.Errorf("save reply: %w", err)
	}

	res := MessageResult{
		Reply:     turn.Reply,
		Response:  reply,
		SessionID: session.ID,
	}
	if turn.PredictionMade && turn.Prediction != nil {
		a, err := s.storePrediction(ctx, userID, session.ID, *turn.Prediction)
		if err != nil {
			return MessageResult{}, err
		}
		res.PredictionMade = true
		res.ModelUsed = a.ModelUsed
		res.AssessmentID = a.ID
	}

	res.History, err = s.Messages.ListBySession(ctx, session.ID, 0)
	if err != nil {
		return MessageResult{}, fmt.Errorf("reload history: %w", err)
	}
	return res, nil
}

func (s *ChatService) resolveSession(ctx context.Context, userID, sessionID string) (model.ChatSession, error) {
	if sessionID != "" {
		existing, err := s.Sessions.GetByID(ctx, sessionID)
		switch {
		case err == nil && existing.UserID != userID:
			return model.ChatSession{}, repository.ErrNotFound
		case err == nil:
			return existing, nil
		case !errors.Is(err, repository.ErrNotFound):
			return model.ChatSession{}, fmt.Errorf("load session: %w", err)
		}
	}
	session, created, err := s.Sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return model.ChatSession{}, fmt.Errorf("get or create session: %w", err)
	}
	if created {
		s.Log.Debug("chat session created", "user_id", userID, "session_id", session.ID)
	}
	return session, nil
}

func (s *ChatService) storePrediction(ctx context.Context, userID, sessionID string, p agent.Prediction) (model.Assessment, error) {
	now := s.now()
	a := model.Assessment{
		UserID:    userID,
		RiskScore: p.RiskScore,
		RiskLevel: p.RiskLevel,
		ModelUsed: p.ModelUsed,
		Drivers:   p.Drivers,
		Payload:   p.Payload,
		CreatedAt: now,
	}
	if err := s.Assessments.Create(ctx, &a); err != nil {
		return model.Assessment{}, fmt.Errorf("save assessment: %w", err)
	}
	if err := s.Sessions.LinkAssessment(ctx, sessionID, a.ID); err != nil {
		s.Log.Warn("link assessment to session failed", "session_id", sessionID, "assessment_id", a.ID, "error", err)
	}
	plan := model.ActionPlan{
		UserID:       userID,
		AssessmentID: a.ID,
		PlanText:     a.Payload.PlanText,
		StartDate:    now,
		EndDate:      now.Add(model.ActionPlanWindow),
	}
	if err := s.Plans.Create(ctx, &plan); err != nil {
		s.Log.Warn("save action plan failed", "assessment_id", a.ID, "error", err)
	}

	ev := queue.LifecycleEvent{
		Type:         queue.EventAssessmentCreated,
		UserID:       userID,
		AssessmentID: a.ID,
		SessionID:    sessionID,
		RiskScore:    a.RiskScore,
		RiskLevel:    string(a.RiskLevel),
		ModelUsed:    a.ModelUsed,
		OccurredAt:   now,
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.Log.Warn("publish assessment.created failed", "assessment_id", a.ID, "error", err)
	}
	s.Log.Info("assessment stored", "user_id", userID, "assessment_id", a.ID, "risk_level", a.RiskLevel, "model", a.ModelUsed)
	return a, nil
}

// DeleteSession removes one session owned by userID with its messages
// and returns how many messages went with it.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	return s.Sessions.DeleteForUser(ctx, userID, sessionID)
}

// Coach answers a question about one of the user's assessments. The
// history is the client's in-memory coach transcript; it is not stored.
func (s *ChatService) Coach(ctx context.Context, userID, assessmentID, content string, history []agent.Message) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	a, err := s.Assessments.GetForUser(ctx, userID, assessmentID)
	if err != nil {
		return "", err
	}
	reply, err := s.Engine.Coach(ctx, content, CoachContextFor(a), history)
	if err != nil {
		return "", fmt.Errorf("engine coach: %w", err)
	}
	return reply, nil
}

// CoachContextFor builds the engine's view of an assessment.
func CoachContextFor(a model.Assessment) agent.CoachContext {
	profile := a.Payload
	profile.PlanText = ""
	profile.Citations = nil
	return agent.CoachContext{
		RiskScore: a.RiskScore,
		RiskLevel: a.RiskLevel,
		ModelUsed: a.ModelUsed,
		Drivers:   a.Drivers,
		PlanText:  a.Payload.PlanText,
		Payload:   profile,
	}
}

func toAgentMessages(msgs []model.ChatMessage) []agent.Message {
	out := make([]agent.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
