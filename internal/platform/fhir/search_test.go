package fhir

import (
	"testing"
	"time"
)

func TestParseSearchValue(t *testing.T) {
	tests := []struct {
		input  string
		prefix SearchPrefix
		value  string
	}{
		{"2023-01-01", PrefixEq, "2023-01-01"},
		{"gt2023-01-01", PrefixGt, "2023-01-01"},
		{"lt2023-12-31", PrefixLt, "2023-12-31"},
		{"ge100", PrefixGe, "100"},
		{"le200", PrefixLe, "200"},
		{"ne50", PrefixNe, "50"},
		{"sa2023-06-01", PrefixSa, "2023-06-01"},
		{"eb2023-06-30", PrefixEb, "2023-06-30"},
		{"ap2023-06-15", PrefixAp, "2023-06-15"},
		{"eq2023-01-01", PrefixEq, "2023-01-01"},
		{"abc", PrefixEq, "abc"},
		{"", PrefixEq, ""},
		{"g", PrefixEq, "g"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseSearchValue(tt.input)
			if result.Prefix != tt.prefix {
				t.Errorf("ParseSearchValue(%q).Prefix = %q, want %q", tt.input, result.Prefix, tt.prefix)
			}
			if result.Value != tt.value {
				t.Errorf("ParseSearchValue(%q).Value = %q, want %q", tt.input, result.Value, tt.value)
			}
		})
	}
}

func TestParseSearchValue_UpperCasePrefix(t *testing.T) {
	// Prefixes are case-insensitive: "GT2023" should be parsed as PrefixGt
	result := ParseSearchValue("GT2023-01-01")
	if result.Prefix != PrefixGt {
		t.Errorf("prefix = %q, want %q", result.Prefix, PrefixGt)
	}
	if result.Value != "2023-01-01" {
		t.Errorf("value = %q, want %q", result.Value, "2023-01-01")
	}
}

func TestParseParamModifier(t *testing.T) {
	tests := []struct {
		input    string
		param    string
		modifier SearchModifier
	}{
		{"subject:exact", "subject", ModifierExact},
		{"subject:contains", "subject", ModifierContains},
		{"subject:text", "subject", ModifierText},
		{"risk", "risk", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			param, mod := ParseParamModifier(tt.input)
			if param != tt.param {
				t.Errorf("ParseParamModifier(%q) param = %q, want %q", tt.input, param, tt.param)
			}
			if mod != tt.modifier {
				t.Errorf("ParseParamModifier(%q) modifier = %q, want %q", tt.input, mod, tt.modifier)
			}
		})
	}
}

func TestParseParamModifier_MultipleColons(t *testing.T) {
	// "subject:exact:extra" should split as param="subject", modifier="exact:extra"
	param, mod := ParseParamModifier("subject:exact:extra")
	if param != "subject" {
		t.Errorf("param = %q, want %q", param, "subject")
	}
	if mod != "exact:extra" {
		t.Errorf("modifier = %q, want %q", mod, "exact:extra")
	}
}

func TestDateSearchClause(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantSQL  string
		wantArgs int
	}{
		{"exact date", "2023-01-15", "(created_at >= $1 AND created_at <= $2)", 2},
		{"gt prefix", "gt2023-01-15", "created_at > $1", 1},
		{"lt prefix", "lt2023-01-15", "created_at < $1", 1},
		{"ge prefix", "ge2023-01-15", "created_at >= $1", 1},
		{"le prefix", "le2023-01-15", "created_at <= $1", 1},
		{"ne prefix", "ne2023-01-15", "created_at != $1", 1},
		{"ap prefix", "ap2023-01-15", "(created_at >= $1 AND created_at <= $2)", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args, _ := DateSearchClause("created_at", tt.value, 1)
			if clause != tt.wantSQL {
				t.Errorf("DateSearchClause(%q) clause = %q, want %q", tt.value, clause, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("DateSearchClause(%q) args count = %d, want %d", tt.value, len(args), tt.wantArgs)
			}
		})
	}
}

func TestDateSearchClause_ArgTypes(t *testing.T) {
	clause, args, nextIdx := DateSearchClause("created_at", "gt2023-06-15", 1)
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
	if clause != "created_at > $1" {
		t.Errorf("clause = %q, want %q", clause, "created_at > $1")
	}
	if len(args) != 1 {
		t.Fatalf("args length = %d, want 1", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
}

func TestDateSearchClause_ApproximatePrefix(t *testing.T) {
	clause, args, nextIdx := DateSearchClause("created_at", "ap2023-06-15", 1)
	wantClause := "(created_at >= $1 AND created_at <= $2)"
	if clause != wantClause {
		t.Errorf("clause = %q, want %q", clause, wantClause)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args for approximate search, got %d", len(args))
	}
	if nextIdx != 3 {
		t.Errorf("nextIdx = %d, want 3", nextIdx)
	}

	low, ok := args[0].(time.Time)
	if !ok {
		t.Fatalf("arg[0] should be time.Time, got %T", args[0])
	}
	high, ok := args[1].(time.Time)
	if !ok {
		t.Fatalf("arg[1] should be time.Time, got %T", args[1])
	}

	// The range should be +/- 1 day from the parsed date
	target, _ := time.Parse("2006-01-02", "2023-06-15")
	expectedLow := target.Add(-24 * time.Hour)
	expectedHigh := target.Add(24 * time.Hour)
	if !low.Equal(expectedLow) {
		t.Errorf("low bound = %v, want %v", low, expectedLow)
	}
	if !high.Equal(expectedHigh) {
		t.Errorf("high bound = %v, want %v", high, expectedHigh)
	}
}

func TestDateSearchClause_ExactDatetime(t *testing.T) {
	// An exact datetime (not just date) should produce an equality clause
	clause, args, nextIdx := DateSearchClause("created_at", "2023-06-15T10:30:00Z", 1)
	wantClause := "created_at = $1"
	if clause != wantClause {
		t.Errorf("clause = %q, want %q", clause, wantClause)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg for exact datetime, got %d", len(args))
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
}

func TestDateSearchClause_UnparseableDate(t *testing.T) {
	// A value that cannot be parsed by parseFlexDate should fall back to text match
	clause, args, nextIdx := DateSearchClause("created_at", "not-a-real-date", 1)
	wantClause := "created_at::text = $1"
	if clause != wantClause {
		t.Errorf("clause = %q, want %q", clause, wantClause)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg for fallback, got %d", len(args))
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
	if args[0] != "not-a-real-date" {
		t.Errorf("arg[0] = %v, want 'not-a-real-date'", args[0])
	}
}

func TestDateSearchClause_SaPrefix(t *testing.T) {
	clause, args, nextIdx := DateSearchClause("created_at", "sa2023-06-15", 1)
	if clause != "created_at > $1" {
		t.Errorf("clause = %q, want %q", clause, "created_at > $1")
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
}

func TestDateSearchClause_EbPrefix(t *testing.T) {
	clause, args, nextIdx := DateSearchClause("created_at", "eb2023-12-31", 1)
	if clause != "created_at < $1" {
		t.Errorf("clause = %q, want %q", clause, "created_at < $1")
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
}

func TestDateSearchClause_YearOnlyFormat(t *testing.T) {
	// Year-only "2023" parses, and since it is not YYYY-MM-DD it produces equality
	clause, args, nextIdx := DateSearchClause("created_at", "2023", 1)
	if clause != "created_at = $1" {
		t.Errorf("clause = %q, want %q", clause, "created_at = $1")
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
}

func TestDateSearchClause_MonthOnlyFormat(t *testing.T) {
	clause, args, nextIdx := DateSearchClause("created_at", "2023-06", 1)
	if clause != "created_at = $1" {
		t.Errorf("clause = %q, want %q", clause, "created_at = $1")
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("arg[0] should be time.Time, got %T", args[0])
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
}

func TestNumberSearchClause(t *testing.T) {
	tests := []struct {
		value   string
		wantSQL string
	}{
		{"0.5", "score = $1"},
		{"gt0.7", "score > $1"},
		{"lt0.3", "score < $1"},
		{"ge0.1", "score >= $1"},
		{"le0.95", "score <= $1"},
		{"ne0", "score != $1"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clause, _, _ := NumberSearchClause("score", tt.value, 1)
			if clause != tt.wantSQL {
				t.Errorf("NumberSearchClause(%q) = %q, want %q", tt.value, clause, tt.wantSQL)
			}
		})
	}
}

func TestNumberSearchClause_SaAndEbPrefixes(t *testing.T) {
	// "sa" (starts after) prefix should behave like "gt"
	clause, args, nextIdx := NumberSearchClause("score", "sa0.5", 1)
	if clause != "score > $1" {
		t.Errorf("sa clause = %q, want %q", clause, "score > $1")
	}
	if len(args) != 1 || args[0] != "0.5" {
		t.Errorf("sa args = %v, want [0.5]", args)
	}
	if nextIdx != 2 {
		t.Errorf("sa nextIdx = %d, want 2", nextIdx)
	}

	// "eb" (ends before) prefix should behave like "lt"
	clause, args, nextIdx = NumberSearchClause("score", "eb0.3", 1)
	if clause != "score < $1" {
		t.Errorf("eb clause = %q, want %q", clause, "score < $1")
	}
	if len(args) != 1 || args[0] != "0.3" {
		t.Errorf("eb args = %v, want [0.3]", args)
	}
	if nextIdx != 2 {
		t.Errorf("eb nextIdx = %d, want 2", nextIdx)
	}
}

func TestNumberSearchClause_ArgIdxAdvancement(t *testing.T) {
	// Verify correct argIdx advancement starting from a non-1 index
	clause, _, nextIdx := NumberSearchClause("score", "ge0.7", 5)
	if clause != "score >= $5" {
		t.Errorf("clause = %q, want %q", clause, "score >= $5")
	}
	if nextIdx != 6 {
		t.Errorf("nextIdx = %d, want 6", nextIdx)
	}
}

func TestTokenSearchClause(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantSQL string
		args    int
	}{
		{"code only", "high", "risk_level = $1", 1},
		{"system|code", "http://heartrisk.local/risk|high", "(risk_system = $1 AND risk_level = $2)", 2},
		{"|code", "|high", "risk_level = $1", 1},
		{"system|", "http://heartrisk.local/risk|", "risk_system = $1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args, _ := TokenSearchClause("risk_system", "risk_level", tt.value, 1)
			if clause != tt.wantSQL {
				t.Errorf("TokenSearchClause(%q) = %q, want %q", tt.value, clause, tt.wantSQL)
			}
			if len(args) != tt.args {
				t.Errorf("TokenSearchClause(%q) args = %d, want %d", tt.value, len(args), tt.args)
			}
		})
	}
}

func TestTokenSearchClause_EmptyPipeValue(t *testing.T) {
	// "|" with empty system and empty code falls through to code-only match
	clause, args, nextIdx := TokenSearchClause("risk_system", "risk_level", "|", 1)
	if clause != "risk_level = $1" {
		t.Errorf("clause = %q, want %q", clause, "risk_level = $1")
	}
	if len(args) != 1 || args[0] != "|" {
		t.Errorf("args = %v, expected fallthrough to no-pipe behavior", args)
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
}

func TestStringSearchClause(t *testing.T) {
	tests := []struct {
		value    string
		modifier SearchModifier
		wantSQL  string
	}{
		{"Patient/123", "", "subject_ref ILIKE $1"},
		{"Patient/123", ModifierExact, "subject_ref = $1"},
		{"123", ModifierContains, "subject_ref ILIKE $1"},
	}

	for _, tt := range tests {
		t.Run(string(tt.modifier), func(t *testing.T) {
			clause, _, _ := StringSearchClause("subject_ref", tt.value, tt.modifier, 1)
			if clause != tt.wantSQL {
				t.Errorf("StringSearchClause modifier=%q: got %q, want %q", tt.modifier, clause, tt.wantSQL)
			}
		})
	}
}

func TestStringSearchClause_DefaultPrefixMatch(t *testing.T) {
	// Default modifier should produce prefix ILIKE with trailing %
	clause, args, nextIdx := StringSearchClause("subject_ref", "Pat", "", 3)
	if clause != "subject_ref ILIKE $3" {
		t.Errorf("clause = %q, want %q", clause, "subject_ref ILIKE $3")
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if args[0] != "Pat%" {
		t.Errorf("arg = %v, want %q", args[0], "Pat%")
	}
	if nextIdx != 4 {
		t.Errorf("nextIdx = %d, want 4", nextIdx)
	}
}

func TestStringSearchClause_ContainsPattern(t *testing.T) {
	_, args, _ := StringSearchClause("subject_ref", "123", ModifierContains, 1)
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if args[0] != "%123%" {
		t.Errorf("contains arg = %v, want %q", args[0], "%123%")
	}
}

func TestStringSearchClause_TextModifier(t *testing.T) {
	clause, args, nextIdx := StringSearchClause("subject_ref", "example", ModifierText, 1)
	wantClause := "subject_ref ILIKE $1"
	if clause != wantClause {
		t.Errorf("clause = %q, want %q", clause, wantClause)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
	if nextIdx != 2 {
		t.Errorf("nextIdx = %d, want 2", nextIdx)
	}
	// The text modifier should produce a contains-style pattern (%value%)
	wantArg := "%example%"
	if args[0] != wantArg {
		t.Errorf("arg[0] = %v, want %q", args[0], wantArg)
	}
}

func TestParseFlexDate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2023-01-15", true},
		{"2023-01-15T10:30:00Z", true},
		{"2023-01-15T10:30:00", true},
		{"2023-01", true},
		{"2023", true},
		{"not-a-date", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseFlexDate(tt.input)
			if tt.valid && err != nil {
				t.Errorf("parseFlexDate(%q) returned error: %v", tt.input, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("parseFlexDate(%q) should have returned error", tt.input)
			}
		})
	}
}
