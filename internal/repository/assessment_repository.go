package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/assessment-api/internal/model"
)

// AssessmentRepo manages the assessments table. Drivers and payload are
// stored as JSON text; drivers are resolved into the tagged union on read.
type AssessmentRepo struct{ db *sql.DB }

func NewAssessmentRepo(db *sql.DB) *AssessmentRepo { return &AssessmentRepo{db: db} }

const assessmentColumns = "id, user_id, risk_score, risk_level, model_used, drivers, payload, share_token, created_at"

func scanAssessment(row interface{ Scan(...any) error }) (model.Assessment, error) {
	var (
		a       model.Assessment
		level   string
		drivers string
		payload string
		token   sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.RiskScore, &level, &a.ModelUsed, &drivers, &payload, &token, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Assessment{}, ErrNotFound
		}
		return model.Assessment{}, err
	}
	a.RiskLevel = model.RiskLevel(level)
	if drivers != "" {
		if err := json.Unmarshal([]byte(drivers), &a.Drivers); err != nil {
			return model.Assessment{}, fmt.Errorf("assessment %s drivers: %w", a.ID, err)
		}
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return model.Assessment{}, fmt.Errorf("assessment %s payload: %w", a.ID, err)
		}
	}
	if token.Valid && token.String != "" {
		v := token.String
		a.ShareToken = &v
	}
	return a, nil
}

// Create inserts a. ID and CreatedAt are filled in when empty.
func (r *AssessmentRepo) Create(ctx context.Context, a *model.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if !a.RiskLevel.Valid() {
		a.RiskLevel = model.ClassifyRisk(a.RiskScore)
	}
	drivers, err := json.Marshal(a.Drivers)
	if err != nil {
		return err
	}
	if a.Drivers == nil {
		drivers = []byte("[]")
	}
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO assessments ("+assessmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.UserID, a.RiskScore, string(a.RiskLevel), a.ModelUsed, string(drivers), string(payload), a.ShareToken, a.CreatedAt)
	return err
}

// GetByID fetches an assessment regardless of owner.
func (r *AssessmentRepo) GetByID(ctx context.Context, id string) (model.Assessment, error) {
	return scanAssessment(r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE id = ?", id))
}

// GetForUser fetches an assessment owned by userID. Rows owned by others
// are reported as ErrNotFound.
func (r *AssessmentRepo) GetForUser(ctx context.Context, userID, id string) (model.Assessment, error) {
	return scanAssessment(r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE id = ? AND user_id = ?", id, userID))
}

// GetByShareToken fetches the assessment published under token.
func (r *AssessmentRepo) GetByShareToken(ctx context.Context, token string) (model.Assessment, error) {
	return scanAssessment(r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE share_token = ?", token))
}

// LatestByUser returns the newest assessment of the user or ErrNotFound.
func (r *AssessmentRepo) LatestByUser(ctx context.Context, userID string) (model.Assessment, error) {
	return scanAssessment(r.db.QueryRowContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1", userID))
}

// ExistsForUser reports whether the user holds any assessment.
func (r *AssessmentRepo) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments WHERE user_id = ?", userID).Scan(&n)
	return n > 0, err
}

// ListByUser returns the user's assessments newest first.
func (r *AssessmentRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assessmentColumns+" FROM assessments WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?", userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetShareToken stores token on an assessment owned by userID unless one
// is already set, and returns the token in effect.
func (r *AssessmentRepo) SetShareToken(ctx context.Context, userID, id, token string) (string, error) {
	a, err := r.GetForUser(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if a.ShareToken != nil {
		return *a.ShareToken, nil
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE assessments SET share_token = ? WHERE id = ? AND user_id = ? AND share_token IS NULL", token, id, userID)
	if err != nil {
		return "", err
	}
	a, err = r.GetForUser(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if a.ShareToken == nil {
		return "", ErrConflict
	}
	return *a.ShareToken, nil
}

// DeleteForUser deletes exactly one assessment owned by userID.
func (r *AssessmentRepo) DeleteForUser(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM assessments WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUser removes every assessment of the user.
func (r *AssessmentRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM assessments WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LevelStats is the admin breakdown of stored assessments.
type LevelStats struct {
	Total        int64            `json:"total"`
	ByLevel      map[string]int64 `json:"by_level"`
	AverageScore float64          `json:"average_score"`
	ByModel      map[string]int64 `json:"by_model"`
}

// Stats aggregates every assessment by level and model.
func (r *AssessmentRepo) Stats(ctx context.Context) (LevelStats, error) {
	st := LevelStats{ByLevel: map[string]int64{}, ByModel: map[string]int64{}}
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), AVG(risk_score) FROM assessments").Scan(&st.Total, &avg); err != nil {
		return st, err
	}
	st.AverageScore = avg.Float64

	group := func(col string, into map[string]int64) error {
		rows, err := r.db.QueryContext(ctx, "SELECT "+col+", COUNT(*) FROM assessments GROUP BY "+col)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				k string
				n int64
			)
			if err := rows.Scan(&k, &n); err != nil {
				return err
			}
			into[k] = n
		}
		return rows.Err()
	}
	if err := group("risk_level", st.ByLevel); err != nil {
		return st, err
	}
	if err := group("model_used", st.ByModel); err != nil {
		return st, err
	}
	return st, nil
}
