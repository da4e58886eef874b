package model

import "time"

// ActionPlanWindow is how long a legacy action plan stays active.
const ActionPlanWindow = 30 * 24 * time.Hour

// ActionPlan is the legacy, date-ranged view of a generated plan. A row
// is written next to every assessment; the plan is "active" while
// EndDate has not passed. Lifecycle gating never looks at this table.
type ActionPlan struct {
	ID           string    // action_plans.id
	UserID       string    // action_plans.user_id
	AssessmentID string    // action_plans.assessment_id
	PlanText     string    // action_plans.plan_text
	StartDate    time.Time // action_plans.start_date
	EndDate      time.Time // action_plans.end_date
	CreatedAt    time.Time // action_plans.created_at
}

// Active reports whether the plan window still covers now.
func (p ActionPlan) Active(now time.Time) bool { return !now.After(p.EndDate) }
