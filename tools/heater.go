package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m4xw311/hearth/errors"
)

// Heater thresholds in °C. When the model omits the threshold, the default
// is substituted deterministically so re-invocation with the same arguments
// always yields the same command.
const (
	DefaultHeaterThreshold = 21.0
	minHeaterThreshold     = 5.0
	maxHeaterThreshold     = 30.0
)

// HeaterTool turns the heater on or off with an optional target threshold.
// The handler is pure: it computes the command string and performs no I/O.
type HeaterTool struct{}

func (t *HeaterTool) Name() string { return "set_heater" }

func (t *HeaterTool) Description() string {
	return "Turns the heater on or off. Optionally sets the target temperature threshold in °C."
}

func (t *HeaterTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"state": map[string]any{
				"type":        "string",
				"description": "Desired heater state, either 'on' or 'off'.",
			},
			"threshold": map[string]any{
				"type":        "number",
				"description": fmt.Sprintf("Target temperature threshold in °C (%.0f-%.0f). Defaults to %.1f.", minHeaterThreshold, maxHeaterThreshold, DefaultHeaterThreshold),
			},
		},
		"required": []any{"state"},
	}
}

func (t *HeaterTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	state, ok := args["state"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'state' argument")
	}
	state = strings.ToLower(strings.TrimSpace(state))
	if state != "on" && state != "off" {
		return "", errors.New("'state' must be 'on' or 'off', got '%s'", state)
	}

	threshold := DefaultHeaterThreshold
	if raw, present := args["threshold"]; present {
		parsed, err := toFloat(raw)
		if err != nil {
			return "", errors.Wrapf(err, "invalid 'threshold' argument")
		}
		threshold = parsed
	}
	if threshold < minHeaterThreshold || threshold > maxHeaterThreshold {
		return "", errors.New("'threshold' %.1f°C is outside the supported range %.0f-%.0f°C", threshold, minHeaterThreshold, maxHeaterThreshold)
	}

	if state == "off" {
		return "Heater turned off.", nil
	}
	return fmt.Sprintf("Heater turned on. Target temperature %.1f°C.", threshold), nil
}

// toFloat accepts the numeric shapes providers actually send: JSON numbers
// decode as float64, but some models quote them as strings.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("'%s' is not a number", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}
