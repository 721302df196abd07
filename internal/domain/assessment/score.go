package assessment

import (
	"fmt"
	"math"
	"strings"
)

// Method identifies the rule set encoded by Evaluate. Bump when the rules change.
const Method = "heartrisk-additive-v1"

// Rule weights. The score is a plain float64 accumulation in rule order,
// capped at maxScore.
const (
	weightAgeOver55      = 0.20
	weightAgeOver45      = 0.10
	weightBPOver140      = 0.15
	weightBPOver130      = 0.10
	weightCholOver240    = 0.15
	weightCholOver200    = 0.10
	weightChestPain      = 0.10
	weightDiabetes       = 0.10
	weightExerciseAngina = 0.10
	weightSTDepression   = 0.10
	weightVessels        = 0.10
	weightThalassemia    = 0.10

	maxScore = 0.95
)

// Band thresholds. Comparison is strictly greater-than on the accumulated
// float, so a run of 0.10 weights summing "to 0.3" lands in the moderate band.
const (
	moderateThreshold = 0.3
	highThreshold     = 0.7
)

// Guidance text per risk level.
const (
	RecommendationHigh     = "Please consult with a healthcare professional immediately."
	RecommendationModerate = "Consider lifestyle changes and regular health checkups."
	RecommendationLow      = "Maintain your healthy lifestyle!"
)

// Evaluate scores a patient input against the additive guideline rules.
// Sex and max heart rate are recorded with the input but carry no weight.
func Evaluate(in Input) Result {
	var (
		score   float64
		factors []Factor
	)
	add := func(code, label, detail string, weight float64) {
		score += weight
		factors = append(factors, Factor{Code: code, Label: label, Detail: detail, Weight: weight})
	}

	switch {
	case in.Age > 55:
		add("age-over-55", "Age", "age over 55", weightAgeOver55)
	case in.Age > 45:
		add("age-over-45", "Age", "age over 45", weightAgeOver45)
	}
	switch {
	case in.RestingBP > 140:
		add("bp-over-140", "Blood pressure", "resting blood pressure over 140 mm Hg", weightBPOver140)
	case in.RestingBP > 130:
		add("bp-over-130", "Blood pressure", "resting blood pressure over 130 mm Hg", weightBPOver130)
	}
	switch {
	case in.Cholesterol > 240:
		add("chol-over-240", "Cholesterol", "serum cholesterol over 240 mg/dl", weightCholOver240)
	case in.Cholesterol > 200:
		add("chol-over-200", "Cholesterol", "serum cholesterol over 200 mg/dl", weightCholOver200)
	}
	if in.ChestPainType == ChestPainNonAnginal || in.ChestPainType == ChestPainAsymptomatic {
		add("chest-pain", "Chest pain", "non-anginal or asymptomatic chest pain", weightChestPain)
	}
	if in.FastingBloodSugar {
		add("diabetes", "Diabetes", "fasting blood sugar over 120 mg/dl", weightDiabetes)
	}
	if in.ExerciseAngina {
		add("exercise-angina", "Exercise angina", "exercise induced angina", weightExerciseAngina)
	}
	if in.STDepression > 1.0 {
		add("st-depression", "ST depression", "exercise ST depression over 1.0", weightSTDepression)
	}
	if in.MajorVessels > 0 {
		add("major-vessels", "Major vessels", "one or more major vessels colored by fluoroscopy", weightVessels)
	}
	if in.Thalassemia == ThalassemiaFixedDefect || in.Thalassemia == ThalassemiaReversibleDefect {
		add("thalassemia", "Thalassemia", "fixed or reversible thalassemia defect", weightThalassemia)
	}

	score = math.Min(maxScore, score)
	level := RiskLevelFor(score)

	return Result{
		Score:          score,
		Percent:        math.Round(score*1000) / 10,
		RiskLevel:      level,
		Summary:        summaryLine(level, score),
		Recommendation: RecommendationFor(level),
		Factors:        factors,
		Method:         Method,
	}
}

// RiskLevelFor maps a score onto its band.
func RiskLevelFor(score float64) string {
	switch {
	case score > highThreshold:
		return RiskHigh
	case score > moderateThreshold:
		return RiskModerate
	default:
		return RiskLow
	}
}

// RecommendationFor returns the guidance text for a risk level.
func RecommendationFor(level string) string {
	switch level {
	case RiskHigh:
		return RecommendationHigh
	case RiskModerate:
		return RecommendationModerate
	default:
		return RecommendationLow
	}
}

func summaryLine(level string, score float64) string {
	return fmt.Sprintf("%s RISK: %.1f%% probability of heart disease", strings.ToUpper(level), score*100)
}
