package tools

import (
	"context"
	"encoding/json"
	"errors"

	hearth "github.com/m4xw311/hearth/errors"
	"github.com/m4xw311/hearth/session"
)

// Dispatch failure kinds. All of them are fatal for the current turn: the
// agent does not retry a failed tool call or fall back to another tool.
var (
	// ErrUnknownTool is returned when a requested tool is not in the
	// active toolset.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when a tool call's arguments cannot
	// be parsed or do not satisfy the tool's schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrToolExecution is returned when the tool's handler itself fails;
	// the underlying cause is preserved.
	ErrToolExecution = errors.New("tool execution failed")
)

type userMessageKey struct{}

// WithUserMessage attaches the user message that triggered the current turn
// to the context, making it available to handlers as ambient context.
func WithUserMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, userMessageKey{}, msg)
}

// UserMessage returns the user message attached by WithUserMessage, or "".
func UserMessage(ctx context.Context) string {
	msg, _ := ctx.Value(userMessageKey{}).(string)
	return msg
}

// Dispatcher resolves and executes tool calls against a fixed set of active
// tools. Results are returned unchanged: no transformation, no caching.
type Dispatcher struct {
	tools map[string]Tool
}

// NewDispatcher builds a dispatcher over the given active tools.
func NewDispatcher(active []Tool) *Dispatcher {
	d := &Dispatcher{tools: make(map[string]Tool, len(active))}
	for _, t := range active {
		d.tools[t.Name()] = t
	}
	return d
}

// Dispatch looks up the requested tool, parses and validates its arguments
// against the tool's schema, and invokes the handler synchronously. The
// user message that started the turn rides along on the context.
func (d *Dispatcher) Dispatch(ctx context.Context, call session.ToolCall, userMessage string) (string, error) {
	tool, ok := d.tools[call.Name]
	if !ok {
		return "", hearth.Kindf(ErrUnknownTool, nil, "'%s'", call.Name)
	}

	args := map[string]any{}
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return "", hearth.Kindf(ErrInvalidArguments, err, "could not parse arguments for '%s'", call.Name)
		}
	}
	if err := validateArgs(tool.Schema(), args); err != nil {
		return "", hearth.Kindf(ErrInvalidArguments, err, "arguments for '%s' do not match its schema", call.Name)
	}

	result, err := tool.Execute(WithUserMessage(ctx, userMessage), args)
	if err != nil {
		return "", hearth.Kindf(ErrToolExecution, err, "tool '%s'", call.Name)
	}
	return result, nil
}

// validateArgs performs structural validation of args against a JSON schema
// object: required properties must be present and declared property types
// must match. Numeric properties also accept strings, which are coerced by
// the handlers; some providers quote numbers in tool calls.
func validateArgs(schema, args map[string]any) error {
	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if _, ok := args[name]; !ok {
			return errors.New("missing required argument '" + name + "'")
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range args {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue // undeclared arguments pass through to the handler
		}
		declared, _ := prop["type"].(string)
		if declared == "" || value == nil {
			continue
		}
		if !typeMatches(declared, value) {
			return errors.New("argument '" + name + "' is not of type " + declared)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, json.Number, string:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return true
}
