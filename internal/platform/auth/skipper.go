package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths that bypass authentication. These are
// infrastructure endpoints (health checks, metrics), FHIR discovery, the CDS
// Hooks surface called by EHR clients, and the browser UI.
var publicPaths = map[string]bool{
	"/":                          true,
	"/assess":                    true,
	"/analysis":                  true,
	"/about":                     true,
	"/health":                    true,
	"/health/db":                 true,
	"/metrics":                   true,
	"/fhir/metadata":             true,
	"/cds-services":              true,
	"/cds-services/:id":          true,
	"/cds-services/:id/feedback": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
// Pass it as the Skipper on JWTConfig so that discovery and UI endpoints stay
// reachable without a bearer token.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
