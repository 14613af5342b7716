package routing

import (
	"errors"
	"testing"

	"routecodex-hq/routecodex/pkg/config"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func testRoutes() []config.RouteConfig {
	return []config.RouteConfig{
		{ID: "glm", Priority: 10, Pattern: config.PatternConfig{Model: `^glm-`}},
		{ID: "glm-high", Priority: 20, Pattern: config.PatternConfig{Model: `^glm-4\.7$`}},
		{ID: "fallback", Priority: 0, Default: true},
	}
}

func TestMatchPriorityOrder(t *testing.T) {
	table, err := NewTable(testRoutes())
	if err != nil {
		t.Fatal(err)
	}

	r, err := table.Match(&Request{Model: "glm-4.7"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "glm-high" {
		t.Errorf("matched %q, want glm-high (higher priority)", r.ID)
	}

	r, err = table.Match(&Request{Model: "glm-3"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "glm" {
		t.Errorf("matched %q, want glm", r.ID)
	}
}

func TestMatchStableTieBreak(t *testing.T) {
	routes := []config.RouteConfig{
		{ID: "first", Priority: 5, Pattern: config.PatternConfig{Model: `^m$`}},
		{ID: "second", Priority: 5, Pattern: config.PatternConfig{Model: `^m$`}},
	}
	table, err := NewTable(routes)
	if err != nil {
		t.Fatal(err)
	}
	r, err := table.Match(&Request{Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "first" {
		t.Errorf("matched %q, want first (declaration order tie-break)", r.ID)
	}
}

func TestMatchDefaultRoute(t *testing.T) {
	table, err := NewTable(testRoutes())
	if err != nil {
		t.Fatal(err)
	}
	r, err := table.Match(&Request{Model: "unknown-model"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "fallback" {
		t.Errorf("matched %q, want fallback", r.ID)
	}
}

func TestMatchNoRoute(t *testing.T) {
	routes := []config.RouteConfig{
		{ID: "only", Priority: 1, Pattern: config.PatternConfig{Model: `^x$`}},
	}
	table, err := NewTable(routes)
	if err != nil {
		t.Fatal(err)
	}
	_, err = table.Match(&Request{Model: "y"})
	var nre *NoRouteError
	if !errors.As(err, &nre) {
		t.Fatalf("error = %v, want NoRouteError", err)
	}
}

func TestMatchProviderConstraint(t *testing.T) {
	routes := []config.RouteConfig{
		{ID: "pinned", Priority: 1, Pattern: config.PatternConfig{Model: `.*`, Provider: "glm-main"}},
	}
	table, err := NewTable(routes)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := table.Match(&Request{Model: "m", Provider: "glm-main"}); err != nil {
		t.Errorf("provider match failed: %v", err)
	}
	if _, err := table.Match(&Request{Model: "m", Provider: "other"}); err == nil {
		t.Error("provider mismatch accepted")
	}
}

func TestConditionFailFast(t *testing.T) {
	routes := []config.RouteConfig{
		{ID: "thinking", Priority: 10, Pattern: config.PatternConfig{
			Model:     `.*`,
			Condition: &config.ConditionConfig{Field: "category", Equals: strPtr("thinking")},
		}},
		{ID: "fallback", Priority: 0, Default: true},
	}
	table, err := NewTable(routes)
	if err != nil {
		t.Fatal(err)
	}

	// Matching pattern with failing condition aborts; it must not fall
	// through to the default route.
	_, err = table.Match(&Request{Model: "m", Category: "background"})
	var cfe *ConditionFailedError
	if !errors.As(err, &cfe) {
		t.Fatalf("error = %v, want ConditionFailedError", err)
	}
	if cfe.RouteID != "thinking" {
		t.Errorf("route = %q", cfe.RouteID)
	}

	r, err := table.Match(&Request{Model: "m", Category: "thinking"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "thinking" {
		t.Errorf("matched %q", r.ID)
	}
}

func TestConditionPredicates(t *testing.T) {
	tests := []struct {
		name    string
		cond    *config.ConditionConfig
		req     *Request
		matches bool
	}{
		{
			"equality hit",
			&config.ConditionConfig{Field: "tier", Equals: strPtr("pro")},
			&Request{Model: "m", Fields: map[string]any{"tier": "pro"}},
			true,
		},
		{
			"equality miss",
			&config.ConditionConfig{Field: "tier", Equals: strPtr("pro")},
			&Request{Model: "m", Fields: map[string]any{"tier": "free"}},
			false,
		},
		{
			"presence required and present",
			&config.ConditionConfig{Field: "tools", Present: boolPtr(true)},
			&Request{Model: "m", Fields: map[string]any{"tools": 3}},
			true,
		},
		{
			"presence required and absent",
			&config.ConditionConfig{Field: "tools", Present: boolPtr(true)},
			&Request{Model: "m", Fields: map[string]any{}},
			false,
		},
		{
			"absence required",
			&config.ConditionConfig{Field: "tools", Present: boolPtr(false)},
			&Request{Model: "m", Fields: map[string]any{}},
			true,
		},
		{
			"range inside",
			&config.ConditionConfig{Field: "max_tokens", Range: &config.RangeConfig{Min: 1000, Max: 64000}},
			&Request{Model: "m", Fields: map[string]any{"max_tokens": 32000.0}},
			true,
		},
		{
			"range outside",
			&config.ConditionConfig{Field: "max_tokens", Range: &config.RangeConfig{Min: 1000, Max: 64000}},
			&Request{Model: "m", Fields: map[string]any{"max_tokens": 128000.0}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := evalCondition(tt.cond, tt.req)
			if got != tt.matches {
				t.Errorf("evalCondition() = %v, want %v", got, tt.matches)
			}
		})
	}
}
