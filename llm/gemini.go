package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/m4xw311/hearth/errors"
	"github.com/m4xw311/hearth/session"
	"github.com/m4xw311/hearth/tools"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set; a missing
// key is a startup-fatal configuration error.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		model: client.GenerativeModel(modelName),
	}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	history := convertMessagesToGeminiContent(messages)
	g.model.Tools = convertToolsToGeminiTools(availableTools)

	if len(history) == 0 {
		return nil, errors.New("cannot send an empty transcript to Gemini")
	}

	// The last message is the new prompt.
	lastMessage := history[len(history)-1]

	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	return processGeminiResponse(resp)
}

// classifyGeminiError maps API errors onto the completion failure kinds.
func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) && gerr.Code == 429 {
		return errors.Kindf(ErrRateLimited, err, "gemini")
	}
	return errors.Kindf(ErrUpstream, err, "gemini")
}

// convertMessagesToGeminiContent converts our internal message format to
// Gemini's. Gemini does not issue tool call ids, so tool results are matched
// back to their function name via the preceding assistant message.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	callNames := make(map[string]string) // tool call id -> function name

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			if msg.IsToolRequest() {
				var parts []genai.Part
				for _, tc := range msg.ToolCalls {
					callNames[tc.ToolCallID] = tc.Name
					args := map[string]any{}
					if len(tc.Args) > 0 {
						if err := json.Unmarshal(tc.Args, &args); err != nil {
							fmt.Printf("Warning: could not parse stored args for tool call '%s': %v\n", tc.Name, err)
						}
					}
					parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
				}
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			} else {
				contents = append(contents, &genai.Content{
					Role:  "model",
					Parts: []genai.Part{genai.Text(msg.Content)},
				})
			}
		case "tool":
			name := callNames[msg.ToolCallID]
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     name,
					Response: map[string]any{"result": msg.Content},
				}},
			})
		default: // user and system both travel as user turns
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, tool := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  toGeminiSchema(tool.Schema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// toGeminiSchema translates a JSON schema object into genai's schema type.
// Only the structural subset the tools use is translated.
func toGeminiSchema(schema map[string]any) *genai.Schema {
	out := &genai.Schema{Type: geminiType(schema["type"])}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(properties))
		for name, raw := range properties {
			if prop, ok := raw.(map[string]any); ok {
				out.Properties[name] = toGeminiSchema(prop)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok {
				out.Required = append(out.Required, name)
			}
		}
	}
	return out
}

func geminiType(t any) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// processGeminiResponse converts a Gemini API response into our internal session.Message format.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.Kindf(ErrUpstream, nil, "received an empty response from Gemini")
	}

	var responseContent string
	var toolCalls []session.ToolCall

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to serialize tool call arguments from Gemini")
			}
			// Gemini does not issue call ids; generate one so the
			// tool-result message can link back to this call.
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: fmt.Sprintf("gemini_%s", uuid.NewString()),
				Name:       v.Name,
				Args:       args,
			})
		default:
			return nil, errors.Kindf(ErrUpstream, nil, "unsupported part type in Gemini response: %T", v)
		}
	}

	return &session.Message{
		Role:      "assistant",
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
