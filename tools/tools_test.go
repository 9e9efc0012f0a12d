package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/m4xw311/hearth/config"
	"github.com/m4xw311/hearth/session"
)

func testDispatcher() *Dispatcher {
	return NewDispatcher([]Tool{&WeatherTool{}, &HeaterTool{}})
}

func TestDispatchUnknownTool(t *testing.T) {
	d := testDispatcher()
	_, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "open_garage",
		Args:       json.RawMessage(`{}`),
	}, "open the garage")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Expected ErrUnknownTool, got %v", err)
	}
}

func TestDispatchUnparseableArguments(t *testing.T) {
	d := testDispatcher()
	_, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "get_weather",
		Args:       json.RawMessage(`{"city":`),
	}, "")
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestDispatchMissingRequiredArgument(t *testing.T) {
	d := testDispatcher()
	_, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "get_weather",
		Args:       json.RawMessage(`{}`),
	}, "")
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestDispatchWrongArgumentType(t *testing.T) {
	d := testDispatcher()
	_, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "get_weather",
		Args:       json.RawMessage(`{"city": 42}`),
	}, "")
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestDispatchHandlerFailure(t *testing.T) {
	d := testDispatcher()
	_, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "set_heater",
		Args:       json.RawMessage(`{"state": "on", "threshold": "warm-ish"}`),
	}, "")
	if !errors.Is(err, ErrToolExecution) {
		t.Fatalf("Expected ErrToolExecution for malformed numeric input, got %v", err)
	}
}

func TestDispatchReturnsHandlerResultUnchanged(t *testing.T) {
	d := testDispatcher()
	direct, err := (&WeatherTool{}).Execute(context.Background(), map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	dispatched, err := d.Dispatch(context.Background(), session.ToolCall{
		ToolCallID: "call_1",
		Name:       "get_weather",
		Args:       json.RawMessage(`{"city":"Berlin"}`),
	}, "what is the weather in Berlin?")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if dispatched != direct {
		t.Errorf("Dispatcher transformed the result: %q vs %q", dispatched, direct)
	}
}

func TestWeatherIsDeterministic(t *testing.T) {
	tool := &WeatherTool{}
	first, err := tool.Execute(context.Background(), map[string]any{"city": "Oslo"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	second, err := tool.Execute(context.Background(), map[string]any{"city": "Oslo"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected identical results, got %q then %q", first, second)
	}
}

func TestHeaterDefaultThresholdIsIdempotent(t *testing.T) {
	tool := &HeaterTool{}
	args := map[string]any{"state": "on"} // no threshold: default substituted

	first, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	second, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected identical results, got %q then %q", first, second)
	}
	if first != "Heater turned on. Target temperature 21.0°C." {
		t.Errorf("Default threshold not substituted as expected: %q", first)
	}
}

func TestHeaterQuotedThreshold(t *testing.T) {
	tool := &HeaterTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"state": "on", "threshold": "18.5"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "Heater turned on. Target temperature 18.5°C." {
		t.Errorf("Unexpected result: %q", result)
	}
}

func TestHeaterThresholdOutOfRange(t *testing.T) {
	tool := &HeaterTool{}
	if _, err := tool.Execute(context.Background(), map[string]any{"state": "on", "threshold": float64(90)}); err == nil {
		t.Fatal("Expected error for out-of-range threshold")
	}
}

func TestUserMessageContext(t *testing.T) {
	ctx := WithUserMessage(context.Background(), "turn on the heater")
	if got := UserMessage(ctx); got != "turn on the heater" {
		t.Errorf("Expected user message on context, got %q", got)
	}
	if got := UserMessage(context.Background()); got != "" {
		t.Errorf("Expected empty user message on bare context, got %q", got)
	}
}

func TestGetActiveTools(t *testing.T) {
	cfg := &config.Config{
		Toolsets: []config.Toolset{
			{Name: "default", Tools: []string{"get_weather", "set_heater"}},
			{Name: "everything", Tools: []string{"get_weather", "set_heater", "read_file", "write_file", "execute_command"}},
		},
	}
	registry := NewToolRegistry(cfg)
	defer registry.Close()

	ts, err := cfg.GetToolset("default")
	if err != nil {
		t.Fatalf("GetToolset failed: %v", err)
	}
	active, err := registry.GetActiveTools(ts)
	if err != nil {
		t.Fatalf("GetActiveTools failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active tools, got %d", len(active))
	}

	ts = &config.Toolset{Name: "bad", Tools: []string{"no_such_tool"}}
	if _, err := registry.GetActiveTools(ts); err == nil {
		t.Fatal("Expected error for unregistered tool")
	}
}

func TestSchemasDescribeArguments(t *testing.T) {
	for _, tool := range []Tool{&WeatherTool{}, &HeaterTool{}} {
		schema := tool.Schema()
		properties, ok := schema["properties"].(map[string]any)
		if !ok {
			t.Fatalf("Tool %s: schema has no properties object", tool.Name())
		}
		for name, raw := range properties {
			prop, ok := raw.(map[string]any)
			if !ok {
				t.Fatalf("Tool %s: property %s is not an object", tool.Name(), name)
			}
			if prop["type"] == "" || prop["type"] == nil {
				t.Errorf("Tool %s: property %s has no type", tool.Name(), name)
			}
			if desc, _ := prop["description"].(string); desc == "" {
				t.Errorf("Tool %s: property %s has no description", tool.Name(), name)
			}
		}
	}
}
