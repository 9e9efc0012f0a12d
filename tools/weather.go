package tools

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/m4xw311/hearth/errors"
)

// WeatherTool reports current conditions for a city. The report is derived
// deterministically from the city name, so repeated calls with the same
// arguments always return the same result.
type WeatherTool struct{}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Returns the current weather for a city, e.g. temperature and conditions."
}

func (t *WeatherTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "Name of the city to look up the weather for.",
			},
		},
		"required": []any{"city"},
	}
}

var weatherConditions = []string{"sunny", "partly cloudy", "overcast", "light rain", "windy", "foggy"}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	city, ok := args["city"].(string)
	if !ok || strings.TrimSpace(city) == "" {
		return "", errors.New("missing or invalid 'city' argument")
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(city))))
	sum := h.Sum32()

	condition := weatherConditions[sum%uint32(len(weatherConditions))]
	temperature := int(sum%30) - 4 // -4..25°C

	return fmt.Sprintf("Weather in %s: %s, %d°C.", strings.TrimSpace(city), condition, temperature), nil
}
