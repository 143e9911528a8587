package tools

import (
	"context"
	"strings"
	"testing"
)

type slotParams struct {
	StartISO        string `json:"start_iso" jsonschema:"description=Slot start in ISO 8601"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

func slotTool() Tool {
	return New("check_slot", "checks a slot", func(_ context.Context, params slotParams) (string, error) {
		if params.DurationMinutes == 0 {
			params.DurationMinutes = 60
		}
		if params.StartISO == "" {
			return "", nil
		}
		return params.StartISO, nil
	})
}

func TestExecuteBindsTypedArguments(t *testing.T) {
	result, err := slotTool().Execute(context.Background(), map[string]any{
		"start_iso":        "2025-12-08T15:00:00+05:30",
		"duration_minutes": float64(30),
	})
	if err != nil {
		t.Fatalf("failed to execute tool: %v", err)
	}
	if result != "2025-12-08T15:00:00+05:30" {
		t.Errorf("arguments did not bind: %q", result)
	}
}

func TestExecuteRejectsMistypedArguments(t *testing.T) {
	_, err := slotTool().Execute(context.Background(), map[string]any{
		"duration_minutes": "thirty",
	})
	if err == nil || !strings.Contains(err.Error(), "failed to bind arguments") {
		t.Errorf("expected a binding error, got %v", err)
	}
}

func TestReflectedSchemaDescribesParameters(t *testing.T) {
	tool := slotTool()
	if tool.Parameters == nil {
		t.Fatal("expected a reflected parameter schema")
	}
	if tool.Parameters.Version != "" {
		t.Errorf("expected the schema document version to be stripped, got %q", tool.Parameters.Version)
	}
	if _, ok := tool.Parameters.Properties.Get("start_iso"); !ok {
		t.Error("expected start_iso in the reflected schema")
	}
}

func TestRegistryRejectsDuplicatesAndAnonymous(t *testing.T) {
	registry, err := NewRegistry(slotTool())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	if err := registry.Register(slotTool()); err == nil {
		t.Error("expected a duplicate registration error")
	}
	if err := registry.Register(Tool{}); err == nil {
		t.Error("expected an error for a nameless tool")
	}
}

func TestRegistryDeclarationsPreserveOrder(t *testing.T) {
	first := New("first", "", func(_ context.Context, _ slotParams) (string, error) { return "", nil })
	second := New("second", "", func(_ context.Context, _ slotParams) (string, error) { return "", nil })

	registry, err := NewRegistry(first, second)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	declarations := registry.Declarations()
	if len(declarations) != 2 || declarations[0].Name != "first" || declarations[1].Name != "second" {
		t.Errorf("declarations out of order: %+v", declarations)
	}
	names := registry.Names()
	if len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("names out of order: %v", names)
	}
}

func TestValidateFindsBothMismatchDirections(t *testing.T) {
	registry, err := NewRegistry(slotTool())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	if err := registry.Validate([]string{"check_slot", "book_meeting"}); err == nil {
		t.Error("expected an error for a declared tool without a handler")
	}
	if err := registry.Validate(nil); err == nil {
		t.Error("expected an error for a handler nobody declared")
	}
	if err := registry.Validate([]string{"check_slot"}); err != nil {
		t.Errorf("expected a matching surface to validate, got %v", err)
	}
}
