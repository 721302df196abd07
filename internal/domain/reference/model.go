package reference

import "math"

// BPCategory is one blood pressure band. Low is inclusive, High exclusive.
type BPCategory struct {
	Name  string `json:"name"`
	Low   int    `json:"low"`
	High  int    `json:"high"`
	Color string `json:"color"`
}

// AgeRiskPoint is one point on the age risk curve.
type AgeRiskPoint struct {
	Age  int     `json:"age"`
	Risk float64 `json:"risk"`
}

// RiskBand is one gauge segment. Max is the upper edge of the segment.
type RiskBand struct {
	Level string  `json:"level"`
	Label string  `json:"label"`
	Max   float64 `json:"max"`
	Color string  `json:"color"`
}

// RiskFactorRule describes one scoring rule for display purposes.
type RiskFactorRule struct {
	Code      string  `json:"code"`
	Label     string  `json:"label"`
	Condition string  `json:"condition"`
	Weight    float64 `json:"weight"`
}

var bpCategories = []BPCategory{
	{Name: "Normal", Low: 90, High: 120, Color: "green"},
	{Name: "Elevated", Low: 120, High: 130, Color: "yellow"},
	{Name: "High Stage 1", Low: 130, High: 140, Color: "orange"},
	{Name: "High Stage 2", Low: 140, High: 180, Color: "red"},
	{Name: "Crisis", Low: 180, High: 200, Color: "darkred"},
}

var riskBands = []RiskBand{
	{Level: "low", Label: "Low", Max: 0.3, Color: "green"},
	{Level: "moderate", Label: "Moderate", Max: 0.7, Color: "yellow"},
	{Level: "high", Label: "High", Max: 1.0, Color: "red"},
}

var riskFactorRules = []RiskFactorRule{
	{Code: "age-over-55", Label: "Age", Condition: "age over 55", Weight: 0.20},
	{Code: "age-over-45", Label: "Age", Condition: "age over 45", Weight: 0.10},
	{Code: "bp-over-140", Label: "Blood pressure", Condition: "resting blood pressure over 140 mm Hg", Weight: 0.15},
	{Code: "bp-over-130", Label: "Blood pressure", Condition: "resting blood pressure over 130 mm Hg", Weight: 0.10},
	{Code: "chol-over-240", Label: "Cholesterol", Condition: "serum cholesterol over 240 mg/dl", Weight: 0.15},
	{Code: "chol-over-200", Label: "Cholesterol", Condition: "serum cholesterol over 200 mg/dl", Weight: 0.10},
	{Code: "chest-pain", Label: "Chest pain", Condition: "non-anginal or asymptomatic chest pain", Weight: 0.10},
	{Code: "diabetes", Label: "Diabetes", Condition: "fasting blood sugar over 120 mg/dl", Weight: 0.10},
	{Code: "exercise-angina", Label: "Exercise angina", Condition: "exercise induced angina", Weight: 0.10},
	{Code: "st-depression", Label: "ST depression", Condition: "exercise ST depression over 1.0", Weight: 0.10},
	{Code: "major-vessels", Label: "Major vessels", Condition: "one or more major vessels colored by fluoroscopy", Weight: 0.10},
	{Code: "thalassemia", Label: "Thalassemia", Condition: "fixed or reversible thalassemia defect", Weight: 0.10},
}

// BloodPressureCategories returns the blood pressure bands in ascending order.
func BloodPressureCategories() []BPCategory {
	out := make([]BPCategory, len(bpCategories))
	copy(out, bpCategories)
	return out
}

// ClassifyBloodPressure maps a reading onto its band. Readings below the
// lowest band edge count as Normal, readings at or above 180 as Crisis.
func ClassifyBloodPressure(bp int) BPCategory {
	if bp < bpCategories[0].High {
		return bpCategories[0]
	}
	for _, c := range bpCategories[1:] {
		if bp < c.High {
			return c
		}
	}
	return bpCategories[len(bpCategories)-1]
}

// AgeRiskCurve returns the relative risk curve for ages 20 through 75 in
// five-year steps.
func AgeRiskCurve() []AgeRiskPoint {
	points := make([]AgeRiskPoint, 0, 12)
	for age := 20; age < 80; age += 5 {
		points = append(points, AgeRiskPoint{Age: age, Risk: RelativeRiskForAge(age)})
	}
	return points
}

// RelativeRiskForAge computes the population-level relative risk for an age,
// capped at 0.9.
func RelativeRiskForAge(age int) float64 {
	return math.Min(0.9, float64(age-20)/60*0.7)
}

// RiskBands returns the gauge segments in ascending order.
func RiskBands() []RiskBand {
	out := make([]RiskBand, len(riskBands))
	copy(out, riskBands)
	return out
}

// BandForScore maps a score onto its gauge segment. Band edges belong to the
// lower segment, matching the scoring engine's strict thresholds.
func BandForScore(score float64) RiskBand {
	for _, b := range riskBands[:len(riskBands)-1] {
		if score <= b.Max {
			return b
		}
	}
	return riskBands[len(riskBands)-1]
}

// RiskFactorCatalog returns the scoring rule table.
func RiskFactorCatalog() []RiskFactorRule {
	out := make([]RiskFactorRule, len(riskFactorRules))
	copy(out, riskFactorRules)
	return out
}
