package model

import "time"

// Message roles stored in chat_messages.role.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ChatSession is the single conversation transcript a user owns. The
// chat_sessions.user_id column is unique, so there is never more than
// one row per user.
//
// Fields:
//
//	ID           – primary key (uuid string).
//	UserID       – owner of the session.
//	AssessmentID – assessment produced by this transcript, if any. The
//	               assessment may have been deleted since; treat it as a hint.
//	CreatedAt    – creation timestamp.
type ChatSession struct {
	ID           string    // chat_sessions.id
	UserID       string    // chat_sessions.user_id
	AssessmentID *string   // chat_sessions.assessment_id (nullable)
	CreatedAt    time.Time // chat_sessions.created_at
}

// ChatMessage is one append-only transcript entry.
type ChatMessage struct {
	ID        string    `json:"id"`         // chat_messages.id
	SessionID string    `json:"session_id"` // chat_messages.session_id
	Role      string    `json:"role"`       // chat_messages.role
	Content   string    `json:"content"`    // chat_messages.content
	CreatedAt time.Time `json:"created_at"` // chat_messages.created_at
}
