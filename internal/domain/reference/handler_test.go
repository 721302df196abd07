package reference

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(), echo.New()
}

func TestHandler_BloodPressureCategories(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.BloodPressureCategories(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Categories []BPCategory `json:"categories"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Categories) != 5 {
		t.Errorf("expected 5 categories, got %d", len(resp.Categories))
	}
}

func TestHandler_BloodPressureCategories_WithReading(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?bp=145", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.BloodPressureCategories(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["your_category"] != "High Stage 2" {
		t.Errorf("your_category = %v, want High Stage 2", resp["your_category"])
	}
	if resp["your_bp"] != float64(145) {
		t.Errorf("your_bp = %v, want 145", resp["your_bp"])
	}
}

func TestHandler_BloodPressureCategories_BadReading(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?bp=high", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := h.BloodPressureCategories(c)
	if err == nil {
		t.Fatal("expected error for non-integer bp")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_AgeRiskCurve(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.AgeRiskCurve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Points []AgeRiskPoint `json:"points"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Points) != 12 {
		t.Errorf("expected 12 points, got %d", len(resp.Points))
	}
}

func TestHandler_RiskBands(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.RiskBands(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Bands []RiskBand `json:"bands"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Bands) != 3 {
		t.Errorf("expected 3 bands, got %d", len(resp.Bands))
	}
}

func TestHandler_RiskFactors(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.RiskFactors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Factors []RiskFactorRule `json:"factors"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Factors) != 12 {
		t.Errorf("expected 12 rules, got %d", len(resp.Factors))
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"GET:/api/v1/reference/blood-pressure-categories",
		"GET:/api/v1/reference/age-risk-curve",
		"GET:/api/v1/reference/risk-bands",
		"GET:/api/v1/reference/risk-factors",
	}
	for _, path := range expected {
		if !routePaths[path] {
			t.Errorf("missing expected route: %s", path)
		}
	}
}
