package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCapabilityBuilder_Defaults(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{BaseURL: "http://localhost:8080/fhir"})

	cs := b.Build()
	if cs["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", cs["resourceType"])
	}
	if cs["fhirVersion"] != "4.0.1" {
		t.Errorf("expected fhirVersion 4.0.1, got %v", cs["fhirVersion"])
	}
	if cs["kind"] != "instance" {
		t.Errorf("expected kind instance, got %v", cs["kind"])
	}
	if cs["status"] != "active" {
		t.Errorf("expected status active, got %v", cs["status"])
	}

	formats := cs["format"].([]string)
	if len(formats) != 1 || formats[0] != "application/fhir+json" {
		t.Errorf("expected format [application/fhir+json], got %v", formats)
	}

	software := cs["software"].(map[string]string)
	if software["name"] != "HeartRisk" {
		t.Errorf("expected default software name HeartRisk, got %s", software["name"])
	}
}

func TestCapabilityBuilder_AddResource(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{
		ServerName:    "risk-server",
		ServerVersion: "0.1.0",
		BaseURL:       "http://localhost:8080/fhir",
	})

	b.AddResource("RiskAssessment", []string{"read", "search-type", "delete"}, []SearchParam{
		{Name: "date", Type: "date"},
		{Name: "probability", Type: "number"},
		{Name: "risk", Type: "token"},
	})

	if b.ResourceCount() != 1 {
		t.Fatalf("expected 1 resource, got %d", b.ResourceCount())
	}

	cs := b.Build()
	software := cs["software"].(map[string]string)
	if software["name"] != "risk-server" {
		t.Errorf("expected software name risk-server, got %s", software["name"])
	}
	if software["version"] != "0.1.0" {
		t.Errorf("expected version 0.1.0, got %s", software["version"])
	}

	rest := cs["rest"].([]map[string]interface{})
	if len(rest) != 1 {
		t.Fatalf("expected 1 rest entry, got %d", len(rest))
	}
	resources := rest[0]["resource"].([]map[string]interface{})
	if len(resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(resources))
	}
	if resources[0]["type"] != "RiskAssessment" {
		t.Errorf("expected RiskAssessment, got %v", resources[0]["type"])
	}

	interactions := resources[0]["interaction"].([]map[string]string)
	if len(interactions) != 3 {
		t.Errorf("expected 3 interactions, got %d", len(interactions))
	}
	params := resources[0]["searchParam"].([]map[string]string)
	if len(params) != 3 {
		t.Errorf("expected 3 search params, got %d", len(params))
	}
}

func TestCapabilityBuilder_Build_SortedResources(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})

	b.AddResource("RiskAssessment", []string{"read"}, nil)
	b.AddResource("Patient", []string{"read"}, nil)

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(resources))
	}

	// Resources should be sorted alphabetically
	if resources[0]["type"] != "Patient" {
		t.Errorf("expected first resource Patient, got %v", resources[0]["type"])
	}
	if resources[1]["type"] != "RiskAssessment" {
		t.Errorf("expected second resource RiskAssessment, got %v", resources[1]["type"])
	}
}

func TestCapabilityBuilder_MergeResources(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})

	// First registration
	b.AddResource("RiskAssessment", []string{"read", "search-type"}, []SearchParam{
		{Name: "risk", Type: "token"},
	})

	// Second registration adds more interactions and search params
	b.AddResource("RiskAssessment", []string{"read", "delete"}, []SearchParam{
		{Name: "risk", Type: "token"},
		{Name: "date", Type: "date"},
	})

	if b.ResourceCount() != 1 {
		t.Fatalf("expected 1 resource after merge, got %d", b.ResourceCount())
	}

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})

	// Deduplicated interactions: read, search-type, delete
	interactions := resources[0]["interaction"].([]map[string]string)
	if len(interactions) != 3 {
		t.Errorf("expected 3 merged interactions, got %d", len(interactions))
	}

	// Deduplicated search params: risk, date
	params := resources[0]["searchParam"].([]map[string]string)
	if len(params) != 2 {
		t.Errorf("expected 2 merged search params, got %d", len(params))
	}
}

func TestCapabilityBuilder_AddOperation(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{BaseURL: "http://localhost:8080/fhir"})
	b.AddResource("RiskAssessment", []string{"read", "search-type"}, nil)
	b.AddOperation("RiskAssessment", OperationCapability{
		Name:          "calculate",
		Definition:    "http://localhost:8080/fhir/OperationDefinition/RiskAssessment-calculate",
		Documentation: "Computes a heart disease risk assessment from clinical inputs",
	})

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})

	ops, ok := resources[0]["operation"].([]map[string]interface{})
	if !ok {
		t.Fatal("expected operation section to be present")
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	if ops[0]["name"] != "calculate" {
		t.Errorf("expected operation name calculate, got %v", ops[0]["name"])
	}
	if ops[0]["definition"] != "http://localhost:8080/fhir/OperationDefinition/RiskAssessment-calculate" {
		t.Errorf("unexpected definition: %v", ops[0]["definition"])
	}
	if ops[0]["documentation"] == "" {
		t.Error("expected operation documentation")
	}
}

func TestCapabilityBuilder_AddOperation_UnknownResource(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	// Resource was never registered; operation registration is a no-op
	b.AddOperation("Ghost", OperationCapability{Name: "calculate"})

	if b.ResourceCount() != 0 {
		t.Errorf("expected 0 resources, got %d", b.ResourceCount())
	}
}

func TestCapabilityBuilder_SecuritySection(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	b.AddResource("RiskAssessment", []string{"read"}, nil)

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	security := rest[0]["security"].(map[string]interface{})

	if security["cors"] != true {
		t.Error("expected cors to be true")
	}

	services := security["service"].([]map[string]interface{})
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(services))
	}
	codings := services[0]["coding"].([]map[string]string)
	if codings[0]["code"] != "OAuth" {
		t.Errorf("expected OAuth, got %s", codings[0]["code"])
	}
	if codings[0]["system"] != "http://terminology.hl7.org/CodeSystem/restful-security-service" {
		t.Errorf("unexpected system: %s", codings[0]["system"])
	}
	if services[0]["text"] != "Bearer token (JWT)" {
		t.Errorf("unexpected service text: %v", services[0]["text"])
	}
}

func TestCapabilityBuilder_EmptyBuild(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})

	cs := b.Build()

	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	if len(resources) != 0 {
		t.Errorf("expected 0 resources, got %d", len(resources))
	}
}

func TestCapabilityBuilder_SearchParamDocumentation(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	b.AddResource("RiskAssessment", []string{"search-type"}, []SearchParam{
		{Name: "probability", Type: "number", Documentation: "Risk probability score between 0 and 0.95"},
	})

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	params := resources[0]["searchParam"].([]map[string]string)

	if params[0]["documentation"] != "Risk probability score between 0 and 0.95" {
		t.Errorf("expected documentation, got %s", params[0]["documentation"])
	}
}

func TestCapabilityBuilder_AddResource_NoSearchParams(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	b.AddResource("RiskAssessment", []string{"read"}, nil)

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	if _, ok := resources[0]["searchParam"]; ok {
		t.Error("searchParam should not be present when no search params are registered")
	}
}

func TestCapabilityBuilder_AddResource_NoInteractions(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	b.AddResource("RiskAssessment", nil, nil)

	cs := b.Build()
	rest := cs["rest"].([]map[string]interface{})
	resources := rest[0]["resource"].([]map[string]interface{})
	if _, ok := resources[0]["interaction"]; ok {
		t.Error("interaction should not be present when no interactions are registered")
	}
}

func TestCapabilityBuilder_Build_ImplementationSection(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{BaseURL: "http://example.com/fhir"})
	b.AddResource("RiskAssessment", []string{"read"}, nil)

	cs := b.Build()
	impl := cs["implementation"].(map[string]string)
	if impl["description"] != "Heart disease risk assessment FHIR service" {
		t.Errorf("unexpected description: %s", impl["description"])
	}
	if impl["url"] != "http://example.com/fhir" {
		t.Errorf("unexpected url: %s", impl["url"])
	}
}

func TestCapabilityBuilder_Build_DateFormat(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	cs := b.Build()
	date := cs["date"].(string)
	// Date should be in YYYY-MM-DD format
	if len(date) != 10 || date[4] != '-' || date[7] != '-' {
		t.Errorf("date should be in YYYY-MM-DD format, got %q", date)
	}
}

func TestCapabilityBuilder_GetResourceTypes(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})
	b.AddResource("RiskAssessment", []string{"read"}, nil)
	b.AddResource("Patient", []string{"read"}, nil)

	types := b.GetResourceTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(types))
	}
	if types[0] != "Patient" || types[1] != "RiskAssessment" {
		t.Errorf("expected sorted [Patient RiskAssessment], got %v", types)
	}
}

func TestCapabilityBuilder_JSONSerialization(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{
		ServerName:    "risk-server",
		ServerVersion: "0.1.0",
	})
	b.AddResource("RiskAssessment", []string{"read", "search-type"}, []SearchParam{
		{Name: "risk", Type: "token"},
	})

	cs := b.Build()

	data, err := json.Marshal(cs)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if result["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", result["resourceType"])
	}
}

func TestCapabilityBuilder_ConcurrentAccess(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			resources := []string{"RiskAssessment", "Patient"}
			rt := resources[idx%len(resources)]
			b.AddResource(rt, []string{"read", "search-type"}, []SearchParam{
				{Name: "date", Type: "date"},
			})
			_ = b.Build()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if b.ResourceCount() != 2 {
		t.Errorf("expected 2 resources, got %d", b.ResourceCount())
	}
}

func TestCapabilityHandler_GetMetadata(t *testing.T) {
	b := NewCapabilityBuilder(CapabilityConfig{
		ServerName:    "risk-server",
		ServerVersion: "0.1.0",
		BaseURL:       "http://localhost:8080/fhir",
	})
	b.AddResource("RiskAssessment", []string{"read", "search-type", "delete"}, []SearchParam{
		{Name: "risk", Type: "token"},
	})
	b.AddOperation("RiskAssessment", OperationCapability{
		Name:       "calculate",
		Definition: "http://localhost:8080/fhir/OperationDefinition/RiskAssessment-calculate",
	})

	e := echo.New()
	h := NewCapabilityHandler(b)
	h.RegisterRoutes(e.Group("/fhir"))

	req := httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var cs map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if cs["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", cs["resourceType"])
	}

	rest := cs["rest"].([]interface{})
	resources := rest[0].(map[string]interface{})["resource"].([]interface{})
	if len(resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(resources))
	}
	res := resources[0].(map[string]interface{})
	if res["type"] != "RiskAssessment" {
		t.Errorf("expected RiskAssessment, got %v", res["type"])
	}

	ops := res["operation"].([]interface{})
	if len(ops) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(ops))
	}
	if ops[0].(map[string]interface{})["name"] != "calculate" {
		t.Errorf("expected calculate operation, got %v", ops[0])
	}
}
