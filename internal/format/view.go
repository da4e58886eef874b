package format

import (
	"time"

	"github.com/cardiosense/assessment-api/internal/model"
)

// maxDisplayedDrivers caps the factor list in result views.
const maxDisplayedDrivers = 5

// DriverView is one rendered contributing factor.
type DriverView struct {
	Kind         string   `json:"kind"`
	Label        string   `json:"label"`
	Feature      string   `json:"feature,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	Contribution *float64 `json:"contribution,omitempty"`
	Impact       string   `json:"impact,omitempty"`
	ImpactLevel  string   `json:"impact_level"`
	Reduces      bool     `json:"reduces"`
}

// ResultView is the rendered form of an assessment shared by the results,
// coach, history and public share views.
type ResultView struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Date            string          `json:"date"`
	RiskScore       float64         `json:"risk_score"`
	RiskPercent     string          `json:"risk_percent"`
	RiskLevel       model.RiskLevel `json:"risk_level"`
	RiskLabel       string          `json:"risk_label"`
	RiskDescription string          `json:"risk_description"`
	NeedsReferral   bool            `json:"needs_referral"`
	ModelUsed       string          `json:"model_used,omitempty"`
	BMI             string          `json:"bmi"`
	BMICategory     string          `json:"bmi_category"`
	Drivers         []DriverView    `json:"drivers"`
	Profile         model.Payload   `json:"profile"`
	PlanText        string          `json:"plan_text,omitempty"`
	Citations       []string        `json:"citations,omitempty"`
	Shared          bool            `json:"shared"`
}

// Result renders an assessment. The stored level wins over the score
// when it is valid so that views agree with what the engine reported.
func Result(a model.Assessment) ResultView {
	level := a.RiskLevel
	if !level.Valid() {
		level = RiskLevel(a.RiskScore)
	}
	v := ResultView{
		ID:              a.ID,
		CreatedAt:       a.CreatedAt,
		Date:            FormatDate(a.CreatedAt),
		RiskScore:       a.RiskScore,
		RiskPercent:     RiskPercent(a.RiskScore),
		RiskLevel:       level,
		RiskLabel:       RiskLabel(level),
		RiskDescription: RiskDescription(level),
		NeedsReferral:   a.NeedsReferral(),
		ModelUsed:       a.ModelUsed,
		BMI:             Placeholder,
		BMICategory:     Placeholder,
		Drivers:         Drivers(a.Drivers),
		Profile:         a.Payload,
		PlanText:        a.Payload.PlanText,
		Citations:       a.Payload.Citations,
		Shared:          a.ShareToken != nil,
	}
	v.Profile.PlanText = ""
	v.Profile.Citations = nil
	if a.Payload.WeightKG != nil && a.Payload.HeightCM != nil {
		v.BMI = FormatBMI(*a.Payload.WeightKG, *a.Payload.HeightCM)
		v.BMICategory = BMICategory(*a.Payload.WeightKG, *a.Payload.HeightCM)
	}
	return v
}

// Drivers renders at most the first five factors.
func Drivers(ds model.Drivers) []DriverView {
	n := len(ds)
	if n > maxDisplayedDrivers {
		n = maxDisplayedDrivers
	}
	out := make([]DriverView, 0, n)
	for _, d := range ds[:n] {
		switch f := d.(type) {
		case model.NamedFactor:
			out = append(out, DriverView{Kind: "named", Label: f.Label(), ImpactLevel: ImpactLevel(nil)})
		case model.ScoredFactor:
			out = append(out, DriverView{
				Kind:         "scored",
				Label:        f.Label(),
				Feature:      f.Feature,
				Value:        f.Value,
				Contribution: f.Contribution,
				Impact:       f.Impact,
				ImpactLevel:  ImpactLevel(f.Contribution),
				Reduces:      f.ContributionOrZero() < 0,
			})
		}
	}
	return out
}

// TrendPoint is one entry of the history chart.
type TrendPoint struct {
	AssessmentID string    `json:"assessment_id"`
	CreatedAt    time.Time `json:"created_at"`
	Score        float64   `json:"score"`
	Percent      string    `json:"percent"`
	Date         string    `json:"date"`
}

// History summarizes a user's assessments, newest first.
type History struct {
	Count          int          `json:"count"`
	AveragePercent string       `json:"average_percent"`
	Trend          []TrendPoint `json:"trend"`
	Items          []ResultView `json:"items"`
}

// BuildHistory renders items in the given order and the trend oldest first.
func BuildHistory(as []model.Assessment) History {
	h := History{Count: len(as), AveragePercent: Placeholder, Items: make([]ResultView, 0, len(as)), Trend: make([]TrendPoint, 0, len(as))}
	if len(as) == 0 {
		return h
	}
	var sum float64
	for _, a := range as {
		sum += a.RiskScore
		h.Items = append(h.Items, Result(a))
	}
	h.AveragePercent = RiskPercent(sum / float64(len(as)))
	for i := len(as) - 1; i >= 0; i-- {
		a := as[i]
		h.Trend = append(h.Trend, TrendPoint{
			AssessmentID: a.ID,
			CreatedAt:    a.CreatedAt,
			Score:        a.RiskScore,
			Percent:      RiskPercent(a.RiskScore),
			Date:         FormatShortDate(a.CreatedAt),
		})
	}
	return h
}
