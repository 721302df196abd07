package fhir

import (
	"github.com/labstack/echo/v4"
)

// MIMEFHIRJSON is the FHIR JSON media type.
const MIMEFHIRJSON = "application/fhir+json; charset=UTF-8"

// ContentType marks every response on the group as FHIR JSON, including
// OperationOutcome error bodies. echo's JSON writer keeps a Content-Type
// that was set before serialization.
func ContentType() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderContentType, MIMEFHIRJSON)
			return next(c)
		}
	}
}
