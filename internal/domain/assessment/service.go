package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrHistoryDisabled is returned by history operations when the service runs
// without a configured database.
var ErrHistoryDisabled = errors.New("assessment history is not configured")

// MetricsRecorder records assessment outcomes for the metrics endpoint.
type MetricsRecorder interface {
	RecordAssessment(riskLevel string, score float64)
}

// Service provides risk computation and assessment history.
type Service struct {
	repo    Repository // nil when history is disabled
	metrics MetricsRecorder
}

// NewService creates the assessment service. repo may be nil, which disables
// history operations while keeping calculation available.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetMetrics attaches an optional outcome recorder.
func (s *Service) SetMetrics(m MetricsRecorder) { s.metrics = m }

// HistoryEnabled reports whether assessments can be stored and queried.
func (s *Service) HistoryEnabled() bool { return s.repo != nil }

// RiskAssessment status codes (FHIR observation-status value set).
var validStatuses = map[string]bool{
	"registered": true, "preliminary": true, "final": true, "amended": true,
	"corrected": true, "cancelled": true, "entered-in-error": true, "unknown": true,
}

func validateInput(in Input) error {
	if in.Age < 20 || in.Age > 100 {
		return fmt.Errorf("age must be between 20 and 100")
	}
	if in.Sex != "male" && in.Sex != "female" {
		return fmt.Errorf("sex must be male or female")
	}
	if in.RestingBP < 80 || in.RestingBP > 200 {
		return fmt.Errorf("resting_bp must be between 80 and 200")
	}
	if in.Cholesterol < 100 || in.Cholesterol > 600 {
		return fmt.Errorf("cholesterol must be between 100 and 600")
	}
	if in.MaxHeartRate < 60 || in.MaxHeartRate > 220 {
		return fmt.Errorf("max_heart_rate must be between 60 and 220")
	}
	if in.STDepression < 0 || in.STDepression > 6 {
		return fmt.Errorf("st_depression must be between 0.0 and 6.0")
	}
	if in.ChestPainType < ChestPainTypicalAngina || in.ChestPainType > ChestPainAsymptomatic {
		return fmt.Errorf("chest_pain_type must be between 0 and 3")
	}
	if in.MajorVessels < 0 || in.MajorVessels > 3 {
		return fmt.Errorf("major_vessels must be between 0 and 3")
	}
	if in.Thalassemia < ThalassemiaNormal || in.Thalassemia > ThalassemiaReversibleDefect {
		return fmt.Errorf("thalassemia must be between 0 and 2")
	}
	return nil
}

// Calculate scores an input without storing anything.
func (s *Service) Calculate(ctx context.Context, in Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	r := Evaluate(in)
	if s.metrics != nil {
		s.metrics.RecordAssessment(r.RiskLevel, r.Score)
	}
	return &r, nil
}

// Create scores an input and stores the assessment.
func (s *Service) Create(ctx context.Context, in Input, subjectRef, note *string) (*Assessment, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	r := Evaluate(in)

	a := &Assessment{
		Status:         "final",
		Score:          r.Score,
		RiskLevel:      r.RiskLevel,
		Recommendation: r.Recommendation,
		SubjectRef:     subjectRef,
		Note:           note,
	}
	a.setInput(in)
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("store assessment: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAssessment(r.RiskLevel, r.Score)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByFHIRID(ctx context.Context, fhirID string) (*Assessment, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.repo.GetByFHIRID(ctx, fhirID)
}

// Update changes the record's status, subject reference, and note. Inputs and
// the computed score stay as stored.
func (s *Service) Update(ctx context.Context, id uuid.UUID, status string, subjectRef, note *string) (*Assessment, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status != "" {
		if !validStatuses[status] {
			return nil, fmt.Errorf("invalid status: %s", status)
		}
		a.Status = status
	}
	if subjectRef != nil {
		a.SubjectRef = subjectRef
	}
	if note != nil {
		a.Note = note
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update assessment: %w", err)
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if s.repo == nil {
		return ErrHistoryDisabled
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Assessment, int, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryDisabled
	}
	if filter.RiskLevel != "" && filter.RiskLevel != RiskLow && filter.RiskLevel != RiskModerate && filter.RiskLevel != RiskHigh {
		return nil, 0, fmt.Errorf("invalid risk_level: %s", filter.RiskLevel)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryDisabled
	}
	return s.repo.Search(ctx, params, limit, offset)
}
