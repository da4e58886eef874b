package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/assessment-api/internal/model"
)

// MessageRepo manages the append-only chat_messages table.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Append stores one transcript entry and returns it.
func (r *MessageRepo) Append(ctx context.Context, sessionID, role, content string) (model.ChatMessage, error) {
	m := model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return model.ChatMessage{}, err
	}
	return m, nil
}

// ListBySession returns the transcript oldest first. A positive limit
// keeps only the most recent limit messages.
func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	q := `SELECT id, session_id, role, content, created_at FROM chat_messages
	      WHERE session_id = ? ORDER BY created_at, id`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT id, session_id, role, content, created_at FROM (
	           SELECT id, session_id, role, content, created_at FROM chat_messages
	           WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	         ) recent ORDER BY created_at, id`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteByUser removes every message in any session of the user.
func (r *MessageRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE user_id = ?)", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of messages across all users.
func (r *MessageRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages").Scan(&n)
	return n, err
}
