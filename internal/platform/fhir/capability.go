package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SearchParam describes a search parameter for use with the CapabilityBuilder.
type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// OperationCapability describes a resource-level operation (e.g. $calculate).
type OperationCapability struct {
	Name          string `json:"name"`
	Definition    string `json:"definition"`
	Documentation string `json:"documentation,omitempty"`
}

// CapabilityConfig holds top-level server metadata for the CapabilityStatement.
type CapabilityConfig struct {
	ServerName       string
	ServerVersion    string
	FHIRVersion      string
	Description      string
	BaseURL          string
	SupportedFormats []string
}

type resourceEntry struct {
	resourceType string
	interactions []string
	searchParams []SearchParam
	operations   []OperationCapability
	versioning   string
}

// CapabilityBuilder accumulates resource registrations and builds a dynamic
// FHIR CapabilityStatement. Domains call AddResource during server
// initialization so the /fhir/metadata response reflects only what is
// actually available.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	resources map[string]*resourceEntry
	config    CapabilityConfig
}

// NewCapabilityBuilder creates a builder, applying defaults for empty fields.
func NewCapabilityBuilder(cfg CapabilityConfig) *CapabilityBuilder {
	if cfg.ServerName == "" {
		cfg.ServerName = "HeartRisk"
	}
	if cfg.FHIRVersion == "" {
		cfg.FHIRVersion = "4.0.1"
	}
	if cfg.Description == "" {
		cfg.Description = "Heart disease risk assessment FHIR service"
	}
	if len(cfg.SupportedFormats) == 0 {
		cfg.SupportedFormats = []string{"application/fhir+json"}
	}
	return &CapabilityBuilder{
		resources: make(map[string]*resourceEntry),
		config:    cfg,
	}
}

// AddResource registers a FHIR resource type with the given interactions and
// search parameters. If the resource type was already registered, the new
// interactions and search parameters are merged with the existing ones.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, searchParams []SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.resources[resourceType]
	if !ok {
		entry = &resourceEntry{
			resourceType: resourceType,
			versioning:   "no-version",
		}
		b.resources[resourceType] = entry
	}

	existing := make(map[string]bool, len(entry.interactions))
	for _, i := range entry.interactions {
		existing[i] = true
	}
	for _, i := range interactions {
		if !existing[i] {
			entry.interactions = append(entry.interactions, i)
			existing[i] = true
		}
	}

	existingParams := make(map[string]bool, len(entry.searchParams))
	for _, p := range entry.searchParams {
		existingParams[p.Name] = true
	}
	for _, p := range searchParams {
		if !existingParams[p.Name] {
			entry.searchParams = append(entry.searchParams, p)
			existingParams[p.Name] = true
		}
	}
}

// AddOperation registers a resource-level operation for an already-registered
// resource type. Unknown types are ignored.
func (b *CapabilityBuilder) AddOperation(resourceType string, op OperationCapability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.resources[resourceType]
	if !ok {
		return
	}
	entry.operations = append(entry.operations, op)
}

// ResourceCount returns the number of registered resource types.
func (b *CapabilityBuilder) ResourceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.resources)
}

// GetResourceTypes returns a sorted list of registered resource type names.
func (b *CapabilityBuilder) GetResourceTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build constructs the full CapabilityStatement as a map suitable for JSON
// serialization. Resources are sorted alphabetically by type.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		resources = append(resources, b.buildResourceEntry(b.resources[rt]))
	}

	rest := map[string]interface{}{
		"mode":     "server",
		"resource": resources,
		"security": b.buildSecurity(),
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  b.config.FHIRVersion,
		"format":       b.config.SupportedFormats,
		"software": map[string]string{
			"name":    b.config.ServerName,
			"version": b.config.ServerVersion,
		},
		"implementation": map[string]string{
			"description": b.config.Description,
			"url":         b.config.BaseURL,
		},
		"rest": []map[string]interface{}{rest},
	}
}

func (b *CapabilityBuilder) buildResourceEntry(entry *resourceEntry) map[string]interface{} {
	res := map[string]interface{}{
		"type":       entry.resourceType,
		"versioning": entry.versioning,
	}

	if len(entry.interactions) > 0 {
		interactions := make([]map[string]string, len(entry.interactions))
		for i, code := range entry.interactions {
			interactions[i] = map[string]string{"code": code}
		}
		res["interaction"] = interactions
	}

	if len(entry.searchParams) > 0 {
		params := make([]map[string]string, len(entry.searchParams))
		for i, sp := range entry.searchParams {
			p := map[string]string{
				"name": sp.Name,
				"type": sp.Type,
			}
			if sp.Documentation != "" {
				p["documentation"] = sp.Documentation
			}
			params[i] = p
		}
		res["searchParam"] = params
	}

	if len(entry.operations) > 0 {
		ops := make([]map[string]interface{}, len(entry.operations))
		for i, op := range entry.operations {
			o := map[string]interface{}{
				"name":       op.Name,
				"definition": op.Definition,
			}
			if op.Documentation != "" {
				o["documentation"] = op.Documentation
			}
			ops[i] = o
		}
		res["operation"] = ops
	}

	return res
}

// buildSecurity declares bearer-token (JWT) access on the REST surface.
func (b *CapabilityBuilder) buildSecurity() map[string]interface{} {
	return map[string]interface{}{
		"cors": true,
		"service": []map[string]interface{}{
			{
				"coding": []map[string]string{
					{
						"system":  "http://terminology.hl7.org/CodeSystem/restful-security-service",
						"code":    "OAuth",
						"display": "OAuth",
					},
				},
				"text": "Bearer token (JWT)",
			},
		},
	}
}

// CapabilityHandler serves the CapabilityStatement.
type CapabilityHandler struct {
	builder *CapabilityBuilder
}

// NewCapabilityHandler creates a handler backed by the given builder.
func NewCapabilityHandler(builder *CapabilityBuilder) *CapabilityHandler {
	return &CapabilityHandler{builder: builder}
}

// RegisterRoutes registers the metadata endpoint on the provided Echo group.
func (h *CapabilityHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/metadata", h.GetMetadata)
}

// GetMetadata returns the full CapabilityStatement.
func (h *CapabilityHandler) GetMetadata(c echo.Context) error {
	return c.JSON(http.StatusOK, h.builder.Build())
}
