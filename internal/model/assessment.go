package model

import "time"

// RiskLevel is the categorical risk stored in assessments.risk_level.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Risk cutoffs shared by classification and rendering.
const (
	ModerateRiskThreshold = 0.3
	HighRiskThreshold     = 0.6
	ReferralThreshold     = 0.70
)

// ClassifyRisk maps a score in [0,1] onto a RiskLevel. Scores below
// 0.3 are low, scores below 0.6 are moderate, everything else is high.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score < ModerateRiskThreshold:
		return RiskLow
	case score < HighRiskThreshold:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// Valid reports whether l is one of the three known levels.
func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskModerate || l == RiskHigh
}

// Assessment is the structured outcome of a completed chat session.
//
// Fields:
//
//	ID         – primary key (uuid string).
//	UserID     – owner.
//	RiskScore  – model probability in [0,1].
//	RiskLevel  – low, moderate or high.
//	ModelUsed  – engine model label ("cardiovascular" or "diabetes").
//	Drivers    – ordered contributing factors.
//	Payload    – collected profile, plan text and citations.
//	ShareToken – opaque token for the public results view (nullable).
//	CreatedAt  – creation timestamp.
type Assessment struct {
	ID         string    // assessments.id
	UserID     string    // assessments.user_id
	RiskScore  float64   // assessments.risk_score
	RiskLevel  RiskLevel // assessments.risk_level
	ModelUsed  string    // assessments.model_used
	Drivers    Drivers   // assessments.drivers (JSON)
	Payload    Payload   // assessments.payload (JSON)
	ShareToken *string   // assessments.share_token (nullable)
	CreatedAt  time.Time // assessments.created_at
}

// NeedsReferral reports whether the score is high enough to recommend a
// professional consultation.
func (a Assessment) NeedsReferral() bool { return a.RiskScore >= ReferralThreshold }

// Payload holds the raw profile fields the conversation collected plus
// the generated plan. Numeric fields are pointers so "not provided" and
// zero stay distinguishable.
type Payload struct {
	Age           *int     `json:"age,omitempty"`
	Sex           string   `json:"sex,omitempty"`
	HeightCM      *float64 `json:"height_cm,omitempty"`
	WeightKG      *float64 `json:"weight_kg,omitempty"`
	WaistCM       *float64 `json:"waist_cm,omitempty"`
	SleepHours    *float64 `json:"sleep_hours,omitempty"`
	Smoking       string   `json:"smoking,omitempty"`
	ActivityLevel string   `json:"activity_level,omitempty"`
	Diet          string   `json:"diet,omitempty"`
	PlanText      string   `json:"plan_text,omitempty"`
	Citations     []string `json:"citations,omitempty"`
}
