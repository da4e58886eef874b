package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cardiosense/assessment-api/internal/model"
)

// ActionPlanRepo manages the legacy action_plans table.
type ActionPlanRepo struct{ db *sql.DB }

func NewActionPlanRepo(db *sql.DB) *ActionPlanRepo { return &ActionPlanRepo{db: db} }

// Create inserts a plan. ID and CreatedAt are filled in when empty.
func (r *ActionPlanRepo) Create(ctx context.Context, p *model.ActionPlan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO action_plans (id, user_id, assessment_id, plan_text, start_date, end_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.AssessmentID, p.PlanText, p.StartDate.UTC(), p.EndDate.UTC(), p.CreatedAt)
	return err
}

// ActiveForUser returns the newest plan whose window covers now, or
// ErrNotFound.
func (r *ActionPlanRepo) ActiveForUser(ctx context.Context, userID string, now time.Time) (model.ActionPlan, error) {
	var p model.ActionPlan
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, assessment_id, plan_text, start_date, end_date, created_at
		 FROM action_plans WHERE user_id = ? AND end_date >= ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID, now.UTC(),
	).Scan(&p.ID, &p.UserID, &p.AssessmentID, &p.PlanText, &p.StartDate, &p.EndDate, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return model.ActionPlan{}, ErrNotFound
	}
	return p, err
}

// DeleteByAssessment removes the plans generated for one assessment.
func (r *ActionPlanRepo) DeleteByAssessment(ctx context.Context, userID, assessmentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM action_plans WHERE user_id = ? AND assessment_id = ?", userID, assessmentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByUser removes every plan of the user.
func (r *ActionPlanRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM action_plans WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
