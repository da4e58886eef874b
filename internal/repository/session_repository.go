package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/assessment-api/internal/model"
)

// SessionRepo manages chat_sessions. The user_id column is unique, so
// every lookup by user returns at most one row.
type SessionRepo struct{ db *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionColumns = "id, user_id, assessment_id, created_at"

func scanSession(row interface{ Scan(...any) error }) (model.ChatSession, error) {
	var (
		s  model.ChatSession
		as sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &as, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ChatSession{}, ErrNotFound
		}
		return model.ChatSession{}, err
	}
	if as.Valid && as.String != "" {
		v := as.String
		s.AssessmentID = &v
	}
	return s, nil
}

// GetByUser returns the user's session or ErrNotFound.
func (r *SessionRepo) GetByUser(ctx context.Context, userID string) (model.ChatSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE user_id = ?", userID))
}

// GetByID returns a session by id or ErrNotFound.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (model.ChatSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE id = ?", id))
}

// GetOrCreate returns the user's session, creating it when missing. The
// boolean reports whether this call inserted the row. Two concurrent
// callers both end up with the same session: the loser of the insert
// race hits the unique key and re-reads.
func (r *SessionRepo) GetOrCreate(ctx context.Context, userID string) (model.ChatSession, bool, error) {
	s, err := r.GetByUser(ctx, userID)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.ChatSession{}, false, err
	}
	s = model.ChatSession{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC()}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (id, user_id, assessment_id, created_at) VALUES (?, ?, NULL, ?)",
		s.ID, s.UserID, s.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			s, err = r.GetByUser(ctx, userID)
			return s, false, err
		}
		return model.ChatSession{}, false, err
	}
	return s, true, nil
}

// LinkAssessment records which assessment the session produced.
func (r *SessionRepo) LinkAssessment(ctx context.Context, sessionID, assessmentID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE chat_sessions SET assessment_id = ? WHERE id = ?", assessmentID, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForUser removes one session owned by userID together with its
// messages and returns the number of messages removed. A session owned
// by someone else yields ErrNotFound.
func (r *SessionRepo) DeleteForUser(ctx context.Context, userID, sessionID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var owner string
	err = tx.QueryRowContext(ctx, "SELECT user_id FROM chat_sessions WHERE id = ?", sessionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, err
	}
	msgs, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", sessionID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return msgs, nil
}

// DeleteByUser removes every session row of the user. Messages must be
// removed first (MessageRepo.DeleteByUser) to be counted.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the number of sessions across all users.
func (r *SessionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_sessions").Scan(&n)
	return n, err
}
