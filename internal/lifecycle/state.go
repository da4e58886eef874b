// Package lifecycle drives a user's single assessment session from an
// empty transcript to a stored prediction, and back again when the plan
// is deleted or the account is reset.
//
// The states are derived from stored rows on every load:
//
//	Empty      no session row exists
//	Welcoming  zero persisted messages; a local welcome message is shown
//	Collecting at least one message and no assessment
//	Predicted  the last send produced an assessment (redirect pending)
//	Blocked    an assessment exists; sending is refused until it is deleted
//
// Assessment existence alone decides Blocked. The session's assessment
// link only selects which transcript to display.
package lifecycle

import (
	"errors"
	"net/url"
	"time"

	"github.com/cardiosense/assessment-api/internal/model"
)

type State string

const (
	StateEmpty      State = "empty"
	StateWelcoming  State = "welcoming"
	StateCollecting State = "collecting"
	StatePredicted  State = "predicted"
	StateBlocked    State = "blocked"
)

// WelcomeMessageID marks the synthesized welcome entry.
const WelcomeMessageID = "welcome"

// WelcomeMessage seeds an empty transcript. It is never stored.
const WelcomeMessage = "¡Hola! Soy tu asistente de salud CardioSense 🩺\n\n" +
	"Voy a ayudarte a evaluar tu riesgo cardiometabólico de manera conversacional. " +
	"Solo cuéntame sobre ti de forma natural, como si conversáramos.\n\n" +
	"Por ejemplo, puedes decirme: \"Tengo 35 años, mido 170cm, peso 75kg y mi cintura mide 85cm. " +
	"Duermo unas 7 horas y hago ejercicio 3 veces por semana.\"\n\n" +
	"¿Qué me puedes contar sobre ti?"

// ErrorPrefix starts the transcript entry shown when a send fails.
const ErrorPrefix = "Lo siento, hubo un error: "

// Paths the client navigates to.
const (
	ChatPath  = "/chat"
	CoachPath = "/coach"
)

var (
	ErrBlocked      = errors.New("an assessment already exists; delete it to start a new one")
	ErrEmptyMessage = errors.New("message is empty")
	ErrSendInFlight = errors.New("a message is already being sent")
)

// Redirect is a delayed client navigation.
type Redirect struct {
	Path  string        `json:"path"`
	After time.Duration `json:"-"`
	// AfterMS mirrors After for JSON clients.
	AfterMS int64 `json:"after_ms"`
}

// CoachRedirect points at the plan view of assessmentID.
func CoachRedirect(assessmentID string, after time.Duration) Redirect {
	return Redirect{
		Path:    CoachPath + "?assessment=" + url.QueryEscape(assessmentID),
		After:   after,
		AfterMS: after.Milliseconds(),
	}
}

// View is what the chat page renders after a load.
type View struct {
	State        State               `json:"state"`
	SessionID    string              `json:"session_id,omitempty"`
	Messages     []model.ChatMessage `json:"messages"`
	Persisted    int                 `json:"persisted"`
	AssessmentID string              `json:"assessment_id,omitempty"`
	PlanPath     string              `json:"plan_path,omitempty"`
	InputEnabled bool                `json:"input_enabled"`
}

// SendOutcome is the result of one accepted send. When the chat API
// fails, Failed is set and Messages ends with the error entry.
type SendOutcome struct {
	State        State               `json:"state"`
	Reply        string              `json:"reply"`
	SessionID    string              `json:"session_id,omitempty"`
	ModelUsed    string              `json:"model_used,omitempty"`
	AssessmentID string              `json:"assessment_id,omitempty"`
	Prediction   bool                `json:"prediction_made"`
	Messages     []model.ChatMessage `json:"messages"`
	Redirect     *Redirect           `json:"redirect,omitempty"`
	Failed       bool                `json:"failed,omitempty"`
}

// ResetResult records what a reset removed and which steps failed.
type ResetResult struct {
	SessionsDeleted    int64    `json:"sessions_deleted"`
	MessagesDeleted    int64    `json:"messages_deleted"`
	AssessmentsDeleted int64    `json:"assessments_deleted"`
	Errors             []string `json:"errors"`
}

// Navigation is where the client goes after a successful action.
type Navigation struct {
	Path  string `json:"path"`
	State State  `json:"state"`
}

func welcomeEntry(now time.Time) model.ChatMessage {
	return model.ChatMessage{
		ID:        WelcomeMessageID,
		Role:      model.MessageRoleAssistant,
		Content:   WelcomeMessage,
		CreatedAt: now,
	}
}

func errorEntry(err error, now time.Time) model.ChatMessage {
	return model.ChatMessage{
		ID:        "error",
		Role:      model.MessageRoleAssistant,
		Content:   ErrorPrefix + err.Error(),
		CreatedAt: now,
	}
}
