package format

import (
	"math"
	"testing"
	"time"

	"github.com/cardiosense/assessment-api/internal/model"
)

func TestRiskPercent(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0.73:       "73",
		0:          "0",
		1:          "100",
		0.255:      "26",
		0.1:        "10",
		math.NaN(): Placeholder,
	}
	for in, want := range cases {
		if got := RiskPercent(in); got != want {
			t.Fatalf("RiskPercent(%v): got=%q want=%q", in, got, want)
		}
	}
}

func TestRiskLabelFollowsThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  string
	}{
		{0.1, "Riesgo Bajo"},
		{0.3, "Riesgo Moderado"},
		{0.45, "Riesgo Moderado"},
		{0.6, "Riesgo Alto"},
		{0.73, "Riesgo Alto"},
	}
	for _, tc := range cases {
		if got := RiskLabel(RiskLevel(tc.score)); got != tc.want {
			t.Fatalf("score %v: got=%q want=%q", tc.score, got, tc.want)
		}
	}
}

func TestFormatBMI(t *testing.T) {
	t.Parallel()

	if got := FormatBMI(75, 170); got != "26.0" {
		t.Fatalf("FormatBMI(75,170): got=%q", got)
	}
	if got := BMICategory(75, 170); got != "Sobrepeso" {
		t.Fatalf("BMICategory(75,170): got=%q", got)
	}
	invalidInputs := [][2]float64{
		{0, 170},
		{75, 0},
		{-1, 170},
		{math.NaN(), 170},
		{75, math.NaN()},
	}
	for _, in := range invalidInputs {
		if got := FormatBMI(in[0], in[1]); got != Placeholder {
			t.Fatalf("FormatBMI(%v,%v): got=%q want placeholder", in[0], in[1], got)
		}
		if got := BMICategory(in[0], in[1]); got != Placeholder {
			t.Fatalf("BMICategory(%v,%v): got=%q want placeholder", in[0], in[1], got)
		}
	}
}

func TestBMICategoryBands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		weight float64
		want   string
	}{
		{50, "Bajo peso"},
		{60, "Normal"},
		{80, "Sobrepeso"},
		{95, "Obesidad"},
	}
	for _, tc := range cases {
		if got := BMICategory(tc.weight, 175); got != tc.want {
			t.Fatalf("BMICategory(%v,175): got=%q want=%q", tc.weight, got, tc.want)
		}
	}
}

func TestImpactLevel(t *testing.T) {
	t.Parallel()

	f := func(v float64) *float64 { return &v }
	cases := []struct {
		in   *float64
		want string
	}{
		{nil, "Bajo"},
		{f(0.02), "Bajo"},
		{f(0.08), "Moderado"},
		{f(-0.1), "Moderado"},
		{f(0.15), "Alto"},
		{f(-0.4), "Alto"},
	}
	for _, tc := range cases {
		if got := ImpactLevel(tc.in); got != tc.want {
			t.Fatalf("ImpactLevel(%v): got=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestFormatPercentageAndNumber(t *testing.T) {
	t.Parallel()

	if got := FormatPercentage(0.1234, 1); got != "12.3%" {
		t.Fatalf("FormatPercentage: got=%q", got)
	}
	if got := FormatPercentage(math.NaN(), 1); got != Placeholder {
		t.Fatalf("FormatPercentage(NaN): got=%q", got)
	}
	if got := FormatNumber(7, 1); got != "7.0" {
		t.Fatalf("FormatNumber: got=%q", got)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	d := time.Date(2026, time.October, 6, 9, 5, 0, 0, time.UTC)
	if got := FormatDate(d); got != "6 de octubre de 2026" {
		t.Fatalf("FormatDate: got=%q", got)
	}
	if got := FormatDateTime(d); got != "6 de octubre de 2026, 09:05" {
		t.Fatalf("FormatDateTime: got=%q", got)
	}
	if got := FormatShortDate(d); got != "06-10-2026" {
		t.Fatalf("FormatShortDate: got=%q", got)
	}
	if got := FormatDate(time.Time{}); got != Placeholder {
		t.Fatalf("zero date: got=%q", got)
	}
}

func TestResultView(t *testing.T) {
	t.Parallel()

	w, h := 75.0, 170.0
	c := -0.2
	a := model.Assessment{
		ID:        "a1",
		RiskScore: 0.73,
		RiskLevel: "",
		Drivers: model.Drivers{
			model.ScoredFactor{Feature: "sleep", Contribution: &c},
			model.NamedFactor{Description: "Edad"},
		},
		Payload:   model.Payload{WeightKG: &w, HeightCM: &h, PlanText: "Camina", Citations: []string{"OMS"}},
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	v := Result(a)
	if v.RiskPercent != "73" || v.RiskLevel != model.RiskHigh || !v.NeedsReferral {
		t.Fatalf("unexpected risk fields: %+v", v)
	}
	if v.BMI != "26.0" || v.BMICategory != "Sobrepeso" {
		t.Fatalf("unexpected bmi: %q %q", v.BMI, v.BMICategory)
	}
	if len(v.Drivers) != 2 || !v.Drivers[0].Reduces || v.Drivers[0].ImpactLevel != "Alto" {
		t.Fatalf("unexpected drivers: %+v", v.Drivers)
	}
	if v.PlanText != "Camina" || v.Profile.PlanText != "" {
		t.Fatalf("plan text should move out of profile: %+v", v)
	}
}

func TestBuildHistory(t *testing.T) {
	t.Parallel()

	newest := model.Assessment{ID: "b", RiskScore: 0.5, CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	oldest := model.Assessment{ID: "a", RiskScore: 0.3, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := BuildHistory([]model.Assessment{newest, oldest})
	if h.Count != 2 || h.AveragePercent != "40" {
		t.Fatalf("unexpected summary: %+v", h)
	}
	if h.Trend[0].AssessmentID != "a" || h.Items[0].ID != "b" {
		t.Fatalf("unexpected ordering: trend=%+v items[0]=%s", h.Trend, h.Items[0].ID)
	}

	empty := BuildHistory(nil)
	if empty.Count != 0 || empty.AveragePercent != Placeholder {
		t.Fatalf("unexpected empty history: %+v", empty)
	}
}
