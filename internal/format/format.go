// Package format renders assessment values for display: risk percentages
// and labels, BMI, driver impact and Chilean-Spanish dates. Every helper
// returns Placeholder for missing or invalid input instead of failing.
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cardiosense/assessment-api/internal/model"
)

// Placeholder is shown wherever a value cannot be computed.
const Placeholder = "—"

// Impact cutoffs on the absolute driver contribution.
const (
	HighImpactThreshold     = 0.15
	ModerateImpactThreshold = 0.08
)

func invalid(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// RiskPercent renders a score in [0,1] as an integer percentage without
// the sign: 0.73 -> "73".
func RiskPercent(score float64) string {
	if invalid(score) {
		return Placeholder
	}
	return decimal.NewFromFloat(score).Shift(2).Round(0).String()
}

// RiskLevel classifies a raw score.
func RiskLevel(score float64) model.RiskLevel { return model.ClassifyRisk(score) }

// RiskLabel is the display label of a level.
func RiskLabel(level model.RiskLevel) string {
	switch level {
	case model.RiskLow:
		return "Riesgo Bajo"
	case model.RiskModerate:
		return "Riesgo Moderado"
	case model.RiskHigh:
		return "Riesgo Alto"
	default:
		return Placeholder
	}
}

// RiskDescription is the one-line explanation shown under the gauge.
func RiskDescription(level model.RiskLevel) string {
	switch level {
	case model.RiskLow:
		return "Tu riesgo cardiometabólico es bajo. Mantén tus hábitos saludables."
	case model.RiskModerate:
		return "Tu riesgo cardiometabólico es moderado. Pequeños cambios pueden marcar una gran diferencia."
	case model.RiskHigh:
		return "Tu riesgo cardiometabólico es alto. Te recomendamos consultar con un profesional de la salud."
	default:
		return ""
	}
}

// ImpactLevel buckets a signed contribution by magnitude. A nil
// contribution is "Bajo".
func ImpactLevel(contribution *float64) string {
	if contribution == nil || invalid(*contribution) {
		return "Bajo"
	}
	abs := math.Abs(*contribution)
	switch {
	case abs >= HighImpactThreshold:
		return "Alto"
	case abs >= ModerateImpactThreshold:
		return "Moderado"
	default:
		return "Bajo"
	}
}

// FormatPercentage renders a ratio as a percentage with the given number
// of decimals: (0.1234, 1) -> "12.3%".
func FormatPercentage(value float64, decimals int32) string {
	if invalid(value) {
		return Placeholder
	}
	return decimal.NewFromFloat(value).Shift(2).StringFixed(decimals) + "%"
}

// FormatNumber renders value with a fixed number of decimals.
func FormatNumber(value float64, decimals int32) string {
	if invalid(value) {
		return Placeholder
	}
	return decimal.NewFromFloat(value).StringFixed(decimals)
}

// BMI computes weight / height², returning false for any non-positive or
// non-finite input.
func BMI(weightKG, heightCM float64) (float64, bool) {
	if invalid(weightKG) || invalid(heightCM) || weightKG <= 0 || heightCM <= 0 {
		return 0, false
	}
	m := heightCM / 100
	bmi := weightKG / (m * m)
	if invalid(bmi) {
		return 0, false
	}
	return bmi, true
}

// FormatBMI renders the BMI with one decimal: (75, 170) -> "26.0".
func FormatBMI(weightKG, heightCM float64) string {
	bmi, ok := BMI(weightKG, heightCM)
	if !ok {
		return Placeholder
	}
	return decimal.NewFromFloat(bmi).StringFixed(1)
}

// BMICategory names the WHO band of the BMI: (75, 170) -> "Sobrepeso".
func BMICategory(weightKG, heightCM float64) string {
	bmi, ok := BMI(weightKG, heightCM)
	if !ok {
		return Placeholder
	}
	switch {
	case bmi < 18.5:
		return "Bajo peso"
	case bmi < 25:
		return "Normal"
	case bmi < 30:
		return "Sobrepeso"
	default:
		return "Obesidad"
	}
}

var monthsES = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatDate renders a long Spanish date: "16 de octubre de 2026".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return fmt.Sprintf("%d de %s de %d", t.Day(), monthsES[t.Month()-1], t.Year())
}

// FormatDateTime appends the 24h time to FormatDate.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return fmt.Sprintf("%s, %02d:%02d", FormatDate(t), t.Hour(), t.Minute())
}

// FormatShortDate renders dd-mm-yyyy.
func FormatShortDate(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.Format("02-01-2006")
}
