package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardiosense/assessment-api/internal/config"
	"github.com/cardiosense/assessment-api/internal/logger"
	"github.com/cardiosense/assessment-api/internal/model"
	"github.com/cardiosense/assessment-api/internal/queue"
	"github.com/cardiosense/assessment-api/internal/repository"
	"github.com/cardiosense/assessment-api/internal/service"
)

// ChatAPI is the chat message and session endpoints. The server wires
// service.ChatService in directly.
type ChatAPI interface {
	HandleMessage(ctx context.Context, userID, content, sessionID string) (service.MessageResult, error)
	DeleteSession(ctx context.Context, userID, sessionID string) (int64, error)
}

type Manager struct {
	store  Store
	chat   ChatAPI
	locks  Locker
	events service.Publisher
	log    *logger.Logger
	cfg    config.LifecycleConfig
	now    func() time.Time
}

func NewManager(store Store, chat ChatAPI, locks Locker, events service.Publisher, log *logger.Logger, cfg config.LifecycleConfig) *Manager {
	if events == nil {
		events = service.NopPublisher{}
	}
	return &Manager{store: store, chat: chat, locks: locks, events: events, log: log, cfg: cfg, now: time.Now}
}

// LoadState derives the user's view from stored rows. Read errors never
// propagate; they degrade to the Welcoming view.
func (m *Manager) LoadState(ctx context.Context, userID string) View {
	now := m.now().UTC()

	latest, err := m.store.LatestAssessment(ctx, userID)
	blocked := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		m.log.Warn("load state: assessment lookup failed", "user_id", userID, "error", err)
		return welcomingView("", now)
	}

	session, err := m.store.SessionForUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			m.log.Warn("load state: session lookup failed", "user_id", userID, "error", err)
			return welcomingView("", now)
		}
		if blocked {
			return blockedView(latest.ID, "", nil)
		}
		// Empty: entering the page synthesizes the welcome.
		return welcomingView("", now)
	}

	msgs, err := m.store.Transcript(ctx, session.ID, m.cfg.HistoryLimit)
	if err != nil {
		m.log.Warn("load state: transcript lookup failed", "user_id", userID, "session_id", session.ID, "error", err)
		return welcomingView(session.ID, now)
	}
	switch {
	case blocked:
		return blockedView(latest.ID, session.ID, msgs)
	case len(msgs) == 0:
		return welcomingView(session.ID, now)
	default:
		return View{
			State:        StateCollecting,
			SessionID:    session.ID,
			Messages:     msgs,
			Persisted:    len(msgs),
			InputEnabled: true,
		}
	}
}

func welcomingView(sessionID string, now time.Time) View {
	return View{
		State:        StateWelcoming,
		SessionID:    sessionID,
		Messages:     []model.ChatMessage{welcomeEntry(now)},
		InputEnabled: true,
	}
}

func blockedView(assessmentID, sessionID string, msgs []model.ChatMessage) View {
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return View{
		State:        StateBlocked,
		SessionID:    sessionID,
		Messages:     msgs,
		Persisted:    len(msgs),
		AssessmentID: assessmentID,
		PlanPath:     CoachRedirect(assessmentID, 0).Path,
	}
}

// SendMessage submits text for userID. It is refused without calling the
// chat API when the text is blank (ErrEmptyMessage), another send for the
// same user has not finished (ErrSendInFlight) or an assessment exists
// (ErrBlocked). A chat API failure is not an error: the outcome carries
// an inline error entry and the user may resend.
func (m *Manager) SendMessage(ctx context.Context, userID, text, sessionID string) (SendOutcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendOutcome{}, ErrEmptyMessage
	}
	release, ok, err := m.locks.TryLock(ctx, userID, m.cfg.SendLockTTL)
	if err != nil {
		return SendOutcome{}, fmt.Errorf("acquire send lock: %w", err)
	}
	if !ok {
		return SendOutcome{}, ErrSendInFlight
	}
	defer release()

	if _, err := m.store.LatestAssessment(ctx, userID); err == nil {
		return SendOutcome{}, ErrBlocked
	} else if !errors.Is(err, repository.ErrNotFound) {
		// The chat API re-checks and answers ErrConflict.
		m.log.Warn("send: assessment lookup failed", "user_id", userID, "error", err)
	}

	res, err := m.chat.HandleMessage(ctx, userID, text, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return SendOutcome{}, ErrBlocked
		}
		if errors.Is(err, repository.ErrNotFound) {
			return SendOutcome{}, err
		}
		m.log.Warn("send: chat api failed", "user_id", userID, "error", err)
		return m.failedOutcome(ctx, res.SessionID, sessionID, text, err), nil
	}

	out := SendOutcome{
		State:      StateCollecting,
		Reply:      res.Reply,
		SessionID:  res.SessionID,
		ModelUsed:  res.ModelUsed,
		Prediction: res.PredictionMade,
		Messages:   res.History,
	}
	if res.PredictionMade && res.AssessmentID != "" {
		r := CoachRedirect(res.AssessmentID, m.cfg.RedirectDelay)
		out.State = StatePredicted
		out.AssessmentID = res.AssessmentID
		out.Redirect = &r
	}
	return out, nil
}

// failedOutcome builds the transcript shown after a chat API failure:
// the stored transcript (which already holds the user message when the
// API got that far) followed by the inline error entry. When nothing was
// stored the user message is shown as a pending local entry.
func (m *Manager) failedOutcome(ctx context.Context, storedSID, requestedSID, text string, cause error) SendOutcome {
	now := m.now().UTC()
	sid := storedSID
	if sid == "" {
		sid = requestedSID
	}
	var msgs []model.ChatMessage
	if storedSID != "" {
		stored, err := m.store.Transcript(ctx, storedSID, m.cfg.HistoryLimit)
		if err != nil {
			m.log.Warn("send: transcript reload failed", "session_id", storedSID, "error", err)
		} else {
			msgs = stored
		}
	}
	if msgs == nil {
		msgs = []model.ChatMessage{{ID: "pending", SessionID: sid, Role: model.MessageRoleUser, Content: text, CreatedAt: now}}
	}
	return SendOutcome{
		State:     StateCollecting,
		SessionID: sid,
		Messages:  append(msgs, errorEntry(cause, now)),
		Failed:    true,
	}
}

// ResetAll removes every session, message, assessment and legacy plan of
// the user in two independent phases:
//
//	phase 1: delete each session through the chat API
//	phase 2: bulk delete the remaining rows directly
//
// A failure in one step is recorded in Errors and the remaining steps
// still run. Calling it again on a clean account reports zero deletions.
func (m *Manager) ResetAll(ctx context.Context, userID string) ResetResult {
	res := m.cleanup(ctx, userID)
	if len(res.Errors) > 0 {
		m.log.Warn("reset finished with errors", "user_id", userID, "errors", res.Errors)
	} else {
		m.log.Info("reset finished", "user_id", userID,
			"sessions", res.SessionsDeleted, "messages", res.MessagesDeleted, "assessments", res.AssessmentsDeleted)
	}
	m.publish(ctx, queue.LifecycleEvent{
		Type:               queue.EventAccountReset,
		UserID:             userID,
		SessionsDeleted:    res.SessionsDeleted,
		MessagesDeleted:    res.MessagesDeleted,
		AssessmentsDeleted: res.AssessmentsDeleted,
		Errors:             res.Errors,
	})
	return res
}

func (m *Manager) cleanup(ctx context.Context, userID string) ResetResult {
	res := m.clearTranscript(ctx, userID)
	m.step(ctx, userID, &res, "assessments", m.store.DeleteAssessmentsByUser, &res.AssessmentsDeleted)
	m.step(ctx, userID, &res, "action plans", m.store.DeletePlansByUser, nil)
	return res
}

// clearTranscript removes the user's session and messages, first through
// the chat API and then directly. Assessments and legacy plans are left
// alone.
func (m *Manager) clearTranscript(ctx context.Context, userID string) ResetResult {
	res := ResetResult{Errors: []string{}}

	session, err := m.store.SessionForUser(ctx, userID)
	switch {
	case err == nil:
		n, err := m.chat.DeleteSession(ctx, userID, session.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			res.Errors = append(res.Errors, fmt.Sprintf("phase 1: delete session %s: %v", session.ID, err))
		} else if err == nil {
			res.SessionsDeleted++
			res.MessagesDeleted += n
		}
	case !errors.Is(err, repository.ErrNotFound):
		res.Errors = append(res.Errors, fmt.Sprintf("phase 1: list sessions: %v", err))
	}

	m.step(ctx, userID, &res, "messages", m.store.DeleteMessagesByUser, &res.MessagesDeleted)
	m.step(ctx, userID, &res, "sessions", m.store.DeleteSessionsByUser, &res.SessionsDeleted)
	return res
}

// step runs one phase 2 bulk delete, recording a failure instead of
// stopping.
func (m *Manager) step(ctx context.Context, userID string, res *ResetResult, name string, fn func(context.Context, string) (int64, error), into *int64) {
	n, err := fn(ctx, userID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("phase 2: delete %s: %v", name, err))
		return
	}
	if into != nil {
		*into += n
	}
}

// DeletePlan deletes exactly one assessment of the user. On failure the
// error is returned and nothing else is touched. On success the
// transcript is cleared as well (best effort) so the next load starts at
// Welcoming, and the client is sent to the chat. Other assessments and
// their legacy plans are kept; when one remains the navigation reports
// Blocked.
func (m *Manager) DeletePlan(ctx context.Context, userID, assessmentID string) (Navigation, error) {
	if err := m.store.DeleteAssessment(ctx, userID, assessmentID); err != nil {
		return Navigation{}, err
	}
	if _, err := m.store.DeletePlansForAssessment(ctx, userID, assessmentID); err != nil {
		m.log.Warn("delete plan: legacy plan cleanup failed", "assessment_id", assessmentID, "error", err)
	}
	if cleanup := m.clearTranscript(ctx, userID); len(cleanup.Errors) > 0 {
		m.log.Warn("delete plan: transcript cleanup incomplete", "assessment_id", assessmentID, "errors", cleanup.Errors)
	}
	m.publish(ctx, queue.LifecycleEvent{Type: queue.EventPlanDeleted, UserID: userID, AssessmentID: assessmentID})
	// an older assessment left behind keeps the chat blocked
	if _, err := m.store.LatestAssessment(ctx, userID); err == nil {
		return Navigation{Path: ChatPath, State: StateBlocked}, nil
	}
	return Navigation{Path: ChatPath, State: StateWelcoming}, nil
}

func (m *Manager) publish(ctx context.Context, ev queue.LifecycleEvent) {
	ev.OccurredAt = m.now().UTC()
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("publish lifecycle event failed", "type", ev.Type, "error", err)
	}
}
