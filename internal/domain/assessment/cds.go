package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/heartrisk/heartrisk/internal/platform/fhir"
	"github.com/heartrisk/heartrisk/pkg/validation"
)

// CDSServiceID identifies the hook service in discovery.
const CDSServiceID = "heart-disease-risk"

// RegisterCDS wires the risk engine into the CDS Hooks surface. The hook
// context carries the patient risk fields directly; omitted fields take the
// form defaults.
func RegisterCDS(hooks *fhir.CDSHooksHandler, svc *Service, baseURL string, logger zerolog.Logger) {
	hooks.RegisterService(fhir.CDSService{
		Hook:              "patient-view",
		Title:             "Heart Disease Risk Assessment",
		Description:       "Scores heart disease risk from clinical fields supplied in the hook context.",
		ID:                CDSServiceID,
		UsageRequirements: "context carries age, sex, resting_bp, cholesterol, max_heart_rate, st_depression, chest_pain_type, fasting_blood_sugar, exercise_angina, major_vessels, thalassemia",
	}, hookHandler(svc, baseURL))

	hooks.RegisterFeedbackHandler(CDSServiceID, func(_ context.Context, serviceID string, fb fhir.CDSFeedbackRequest) error {
		logger.Info().
			Str("service", serviceID).
			Str("card", fb.Card).
			Str("outcome", fb.Outcome).
			Msg("cds feedback")
		return nil
	})
}

func hookHandler(svc *Service, baseURL string) fhir.ServiceHandler {
	return func(ctx context.Context, req fhir.CDSHookRequest) (*fhir.CDSHookResponse, error) {
		in, err := inputFromHookContext(req.Context)
		if err != nil {
			return nil, err
		}
		if msgs := validation.Messages(validation.ValidateStruct(in)); len(msgs) > 0 {
			return nil, fmt.Errorf("invalid context: %s", strings.Join(msgs, "; "))
		}
		r, err := svc.Calculate(ctx, in)
		if err != nil {
			return nil, err
		}

		card := fhir.CDSCard{
			Summary:   r.Summary,
			Detail:    cardDetail(r),
			Indicator: indicatorFor(r.RiskLevel),
			Source:    fhir.CDSSource{Label: "HeartRisk", URL: baseURL},
			Links: []fhir.CDSLink{{
				Label: "Heart health analysis",
				URL:   baseURL + "/analysis",
				Type:  "absolute",
			}},
		}
		return &fhir.CDSHookResponse{Cards: []fhir.CDSCard{card}}, nil
	}
}

// inputFromHookContext decodes the hook context into an Input on top of the
// form defaults. Standard context keys like patientId pass through unused.
func inputFromHookContext(ctxMap map[string]interface{}) (Input, error) {
	in := DefaultInput()
	raw, err := json.Marshal(ctxMap)
	if err != nil {
		return in, fmt.Errorf("encode context: %w", err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("invalid context: %w", err)
	}
	return in, nil
}

func cardDetail(r *Result) string {
	if len(r.Factors) == 0 {
		return r.Recommendation + "\n\nNo contributing risk factors identified."
	}
	var b strings.Builder
	b.WriteString(r.Recommendation)
	b.WriteString("\n\nContributing factors:\n")
	for _, f := range r.Factors {
		fmt.Fprintf(&b, "- %s (+%.2f)\n", f.Detail, f.Weight)
	}
	return b.String()
}

func indicatorFor(level string) string {
	switch level {
	case RiskHigh:
		return "critical"
	case RiskModerate:
		return "warning"
	default:
		return "info"
	}
}
