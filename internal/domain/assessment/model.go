package assessment

import (
	"time"

	"github.com/google/uuid"

	"github.com/heartrisk/heartrisk/internal/platform/fhir"
)

// Chest pain type codes (UCI heart disease feature set).
const (
	ChestPainTypicalAngina  = 0
	ChestPainAtypicalAngina = 1
	ChestPainNonAnginal     = 2
	ChestPainAsymptomatic   = 3
)

// Thalassemia codes.
const (
	ThalassemiaNormal           = 0
	ThalassemiaFixedDefect      = 1
	ThalassemiaReversibleDefect = 2
)

// Risk levels produced by the scoring engine.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// Input is a single patient risk submission. It exists for the duration of a
// calculation; it is only stored when the caller explicitly creates an
// assessment record.
type Input struct {
	Age               int     `json:"age" form:"age" validate:"gte=20,lte=100"`
	Sex               string  `json:"sex" form:"sex" validate:"required,oneof=male female"`
	RestingBP         int     `json:"resting_bp" form:"resting_bp" validate:"gte=80,lte=200"`
	Cholesterol       int     `json:"cholesterol" form:"cholesterol" validate:"gte=100,lte=600"`
	MaxHeartRate      int     `json:"max_heart_rate" form:"max_heart_rate" validate:"gte=60,lte=220"`
	STDepression      float64 `json:"st_depression" form:"st_depression" validate:"gte=0,lte=6"`
	ChestPainType     int     `json:"chest_pain_type" form:"chest_pain_type" validate:"gte=0,lte=3"`
	FastingBloodSugar bool    `json:"fasting_blood_sugar" form:"fasting_blood_sugar"`
	ExerciseAngina    bool    `json:"exercise_angina" form:"exercise_angina"`
	MajorVessels      int     `json:"major_vessels" form:"major_vessels" validate:"gte=0,lte=3"`
	Thalassemia       int     `json:"thalassemia" form:"thalassemia" validate:"gte=0,lte=2"`
}

// DefaultInput returns the form defaults for a new submission.
func DefaultInput() Input {
	return Input{
		Age:           50,
		Sex:           "male",
		RestingBP:     120,
		Cholesterol:   200,
		MaxHeartRate:  150,
		STDepression:  1.0,
		ChestPainType: ChestPainTypicalAngina,
		MajorVessels:  0,
		Thalassemia:   ThalassemiaNormal,
	}
}

// Factor is a single rule that contributed to a score.
type Factor struct {
	Code   string  `json:"code"`
	Label  string  `json:"label"`
	Detail string  `json:"detail"`
	Weight float64 `json:"weight"`
}

// Result is the outcome of evaluating an Input. Factor weights may sum past
// Score when the cap applies.
type Result struct {
	Score          float64  `json:"score"`
	Percent        float64  `json:"percent"`
	RiskLevel      string   `json:"risk_level"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	Factors        []Factor `json:"factors"`
	Method         string   `json:"method"`
}

// Assessment maps to the assessment table (FHIR RiskAssessment resource).
type Assessment struct {
	ID                uuid.UUID `db:"id" json:"id"`
	FHIRID            string    `db:"fhir_id" json:"fhir_id"`
	Status            string    `db:"status" json:"status"`
	Age               int       `db:"age" json:"age"`
	Sex               string    `db:"sex" json:"sex"`
	RestingBP         int       `db:"resting_bp" json:"resting_bp"`
	Cholesterol       int       `db:"cholesterol" json:"cholesterol"`
	MaxHeartRate      int       `db:"max_heart_rate" json:"max_heart_rate"`
	STDepression      float64   `db:"st_depression" json:"st_depression"`
	ChestPainType     int       `db:"chest_pain_type" json:"chest_pain_type"`
	FastingBloodSugar bool      `db:"fasting_blood_sugar" json:"fasting_blood_sugar"`
	ExerciseAngina    bool      `db:"exercise_angina" json:"exercise_angina"`
	MajorVessels      int       `db:"major_vessels" json:"major_vessels"`
	Thalassemia       int       `db:"thalassemia" json:"thalassemia"`
	Score             float64   `db:"score" json:"score"`
	RiskLevel         string    `db:"risk_level" json:"risk_level"`
	Recommendation    string    `db:"recommendation" json:"recommendation"`
	SubjectRef        *string   `db:"subject_ref" json:"subject_ref,omitempty"`
	Note              *string   `db:"note" json:"note,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Input reconstructs the submission the assessment was computed from.
func (a *Assessment) Input() Input {
	return Input{
		Age:               a.Age,
		Sex:               a.Sex,
		RestingBP:         a.RestingBP,
		Cholesterol:       a.Cholesterol,
		MaxHeartRate:      a.MaxHeartRate,
		STDepression:      a.STDepression,
		ChestPainType:     a.ChestPainType,
		FastingBloodSugar: a.FastingBloodSugar,
		ExerciseAngina:    a.ExerciseAngina,
		MajorVessels:      a.MajorVessels,
		Thalassemia:       a.Thalassemia,
	}
}

// setInput copies submission fields onto the record.
func (a *Assessment) setInput(in Input) {
	a.Age = in.Age
	a.Sex = in.Sex
	a.RestingBP = in.RestingBP
	a.Cholesterol = in.Cholesterol
	a.MaxHeartRate = in.MaxHeartRate
	a.STDepression = in.STDepression
	a.ChestPainType = in.ChestPainType
	a.FastingBloodSugar = in.FastingBloodSugar
	a.ExerciseAngina = in.ExerciseAngina
	a.MajorVessels = in.MajorVessels
	a.Thalassemia = in.Thalassemia
}

// riskProbabilitySystem is the HL7 qualitative risk code system.
const riskProbabilitySystem = "http://terminology.hl7.org/CodeSystem/risk-probability"

func (a *Assessment) ToFHIR() map[string]interface{} {
	subject := fhir.Reference{Display: "Anonymous patient"}
	if a.SubjectRef != nil {
		subject = fhir.Reference{Reference: *a.SubjectRef}
	}
	result := map[string]interface{}{
		"resourceType": "RiskAssessment",
		"id":           a.FHIRID,
		"status":       a.Status,
		"method": fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: Method}},
			Text:   "Additive guideline risk score",
		},
		"subject":            subject,
		"occurrenceDateTime": a.CreatedAt.Format(time.RFC3339),
		"prediction": []map[string]interface{}{{
			"outcome":            fhir.CodeableConcept{Text: "Heart disease"},
			"probabilityDecimal": a.Score,
			"qualitativeRisk": fhir.CodeableConcept{
				Coding: []fhir.Coding{{System: riskProbabilitySystem, Code: a.RiskLevel}},
			},
			"rationale": a.Recommendation,
		}},
		"meta": fhir.Meta{LastUpdated: a.UpdatedAt},
	}
	if a.Note != nil {
		result["note"] = []map[string]string{{"text": *a.Note}}
	}
	return result
}
