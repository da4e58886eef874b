// Package queue defines the lifecycle events exchanged over RabbitMQ and
// the audit consumer that records them.
package queue

import "time"

// LifecycleQueue is the durable queue every lifecycle event goes to.
const LifecycleQueue = "cardiosense.lifecycle"

// Event types.
const (
	EventAssessmentCreated = "assessment.created"
	EventPlanDeleted       = "plan.deleted"
	EventAccountReset      = "account.reset"
)

// LifecycleEvent is published when a user's assessment lifecycle moves:
// a prediction is stored, a plan is deleted or the account is reset. It
// carries enough for the audit log without querying the database.
type LifecycleEvent struct {
	Type               string    `json:"type"`
	UserID             string    `json:"user_id"`
	AssessmentID       string    `json:"assessment_id,omitempty"`
	SessionID          string    `json:"session_id,omitempty"`
	RiskScore          float64   `json:"risk_score,omitempty"`
	RiskLevel          string    `json:"risk_level,omitempty"`
	ModelUsed          string    `json:"model_used,omitempty"`
	SessionsDeleted    int64     `json:"sessions_deleted,omitempty"`
	MessagesDeleted    int64     `json:"messages_deleted,omitempty"`
	AssessmentsDeleted int64     `json:"assessments_deleted,omitempty"`
	Errors             []string  `json:"errors,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}
