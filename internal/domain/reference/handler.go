package reference

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves the static clinical reference catalogs.
type Handler struct{}

// NewHandler creates a new reference handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers the reference routes. The data never changes, so
// callers typically mount these behind the response cache.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reference/blood-pressure-categories", h.BloodPressureCategories)
	api.GET("/reference/age-risk-curve", h.AgeRiskCurve)
	api.GET("/reference/risk-bands", h.RiskBands)
	api.GET("/reference/risk-factors", h.RiskFactors)
}

// BloodPressureCategories returns the BP bands. With ?bp=N the response also
// classifies the supplied reading.
func (h *Handler) BloodPressureCategories(c echo.Context) error {
	resp := map[string]interface{}{
		"categories": BloodPressureCategories(),
	}
	if raw := c.QueryParam("bp"); raw != "" {
		bp, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "bp must be an integer")
		}
		resp["your_bp"] = bp
		resp["your_category"] = ClassifyBloodPressure(bp).Name
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) AgeRiskCurve(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"points": AgeRiskCurve(),
	})
}

func (h *Handler) RiskBands(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bands": RiskBands(),
	})
}

func (h *Handler) RiskFactors(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"factors": RiskFactorCatalog(),
	})
}
