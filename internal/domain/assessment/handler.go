package assessment

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/heartrisk/heartrisk/internal/platform/auth"
	"github.com/heartrisk/heartrisk/internal/platform/fhir"
	"github.com/heartrisk/heartrisk/pkg/pagination"
	"github.com/heartrisk/heartrisk/pkg/validation"
)

// Handler provides HTTP handlers for the assessment domain.
type Handler struct {
	svc *Service
}

// NewHandler creates a new assessment handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers REST and FHIR routes.
func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	api.POST("/assessments/calculate", h.Calculate)
	api.POST("/assessments", h.CreateAssessment)
	api.GET("/assessments", h.ListAssessments)
	api.GET("/assessments/:id", h.GetAssessment)

	admin := auth.RequireRole("admin")
	api.PUT("/assessments/:id", h.UpdateAssessment, admin)
	api.DELETE("/assessments/:id", h.DeleteAssessment, admin)

	fhirGroup.GET("/RiskAssessment", h.SearchFHIR)
	fhirGroup.POST("/RiskAssessment/_search", h.SearchFHIR)
	fhirGroup.POST("/RiskAssessment/$calculate", h.CalculateFHIR)
	fhirGroup.GET("/RiskAssessment/:id", h.GetFHIR)
	fhirGroup.DELETE("/RiskAssessment/:id", h.DeleteFHIR, admin)
}

// CreateRequest is the body for stored assessments.
type CreateRequest struct {
	Input
	SubjectRef *string `json:"subject_ref,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// UpdateRequest changes status, subject reference, or note.
type UpdateRequest struct {
	Status     string  `json:"status,omitempty"`
	SubjectRef *string `json:"subject_ref,omitempty"`
	Note       *string `json:"note,omitempty"`
}

type listQuery struct {
	RiskLevel string `query:"risk_level" validate:"omitempty,risk_level"`
	From      string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To        string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// -- REST Handlers --

func (h *Handler) Calculate(c echo.Context) error {
	in := DefaultInput()
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if msgs := validation.Messages(validation.ValidateStruct(in)); len(msgs) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
	}
	r, err := h.svc.Calculate(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateAssessment(c echo.Context) error {
	req := CreateRequest{Input: DefaultInput()}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if msgs := validation.Messages(validation.ValidateStruct(req.Input)); len(msgs) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
	}
	a, err := h.svc.Create(c.Request().Context(), req.Input, req.SubjectRef, req.Note)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAssessments(c echo.Context) error {
	var q listQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if msgs := validation.Messages(validation.ValidateStruct(q)); len(msgs) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
	}

	filter := ListFilter{RiskLevel: q.RiskLevel}
	if q.From != "" {
		t, _ := time.Parse("2006-01-02", q.From)
		filter.From = &t
	}
	if q.To != "" {
		// Inclusive date bound.
		t, _ := time.Parse("2006-01-02", q.To)
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &t
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Update(c.Request().Context(), id, req.Status, req.SubjectRef, req.Note)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
		}
		if strings.Contains(err.Error(), "invalid status") {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAssessment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// -- FHIR Handlers --

func (h *Handler) SearchFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := fhir.ExtractSearchParams(c)
	if sort := c.QueryParam("_sort"); sort != "" {
		params["_sort"] = sort
	}
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return c.JSON(http.StatusServiceUnavailable, fhir.NotSupportedOutcome(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	resources := make([]interface{}, len(items))
	for i, item := range items {
		resources[i] = item.ToFHIR()
	}
	bundle := fhir.NewSearchBundleWithLinks(resources, fhir.SearchBundleParams{
		BaseURL:  "/fhir/RiskAssessment",
		QueryStr: c.QueryString(),
		Count:    pg.Limit,
		Offset:   pg.Offset,
		Total:    total,
	})
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) GetFHIR(c echo.Context) error {
	a, err := h.svc.GetByFHIRID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return c.JSON(http.StatusServiceUnavailable, fhir.NotSupportedOutcome(err.Error()))
		}
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("RiskAssessment", c.Param("id")))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, a.ToFHIR())
}

// CalculateFHIR scores an input and returns a transient RiskAssessment that is
// never stored.
func (h *Handler) CalculateFHIR(c echo.Context) error {
	in := DefaultInput()
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	if msgs := validation.Messages(validation.ValidateStruct(in)); len(msgs) > 0 {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(strings.Join(msgs, "; ")))
	}
	r, err := h.svc.Calculate(c.Request().Context(), in)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}

	now := time.Now().UTC()
	transient := &Assessment{
		Status:         "preliminary",
		Score:          r.Score,
		RiskLevel:      r.RiskLevel,
		Recommendation: r.Recommendation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	transient.setInput(in)
	resource := transient.ToFHIR()
	delete(resource, "id")
	return c.JSON(http.StatusOK, resource)
}

func (h *Handler) DeleteFHIR(c echo.Context) error {
	a, err := h.svc.GetByFHIRID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			return c.JSON(http.StatusServiceUnavailable, fhir.NotSupportedOutcome(err.Error()))
		}
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("RiskAssessment", c.Param("id")))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	if err := h.svc.Delete(c.Request().Context(), a.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
