package vertexclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
)

const serviceName = "vertex ai"

// Adapter serves the chat completion contract from a Gemini model on Vertex
// AI. The session's deployment setting names the model.
type Adapter struct {
	client *genai.Client
	model  string
	log    *slog.Logger
	newID  func() string
}

func NewAdapter(ctx context.Context, log *slog.Logger, projectID, region, model string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		client: client,
		model:  model,
		log:    log,
		newID:  func() string { return "call_" + uuid.NewString() },
	}, nil
}

func (a *Adapter) Close() error {
	err := a.client.Close()
	if err != nil && a.log != nil {
		a.log.Error("vertex adapter close failed", "error", err)
	}
	return err
}

func (a *Adapter) MissingSettings(settings models.ChatSettings) []string {
	if settings.Deployment == "" && a.model == "" {
		return []string{"deployment"}
	}
	return nil
}

func (a *Adapter) Complete(ctx context.Context, settings models.ChatSettings, req dto.ChatRequest) (dto.ChatMessage, error) {
	modelName := settings.Deployment
	if modelName == "" {
		modelName = a.model
	}
	if modelName == "" {
		return dto.ChatMessage{}, errs.NewConfigurationError([]string{"deployment"})
	}

	system, contents, err := toContents(req.Messages)
	if err != nil {
		return dto.ChatMessage{}, err
	}
	if len(contents) == 0 {
		return dto.ChatMessage{}, fmt.Errorf("vertex generate request has no content")
	}

	model := a.client.GenerativeModel(modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	model.SetTemperature(req.Temperature)
	if len(req.Tools) > 0 {
		model.Tools = toGenaiTools(req.Tools)
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto},
		}
	}

	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	resp, err := chat.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return dto.ChatMessage{}, errs.NewExternalServiceError(serviceName, 0, err)
	}

	return parseContentResponse(resp, a.newID)
}

// toContents maps the chat transcript onto Gemini contents. Consecutive tool
// results are merged into one turn, as Gemini expects every response to a
// batch of function calls together.
func toContents(messages []dto.ChatMessage) (string, []*genai.Content, error) {
	var system string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content

		case "user":
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if call.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
						return "", nil, fmt.Errorf("decode arguments of %s: %w", call.Function.Name, err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: call.Function.Name, Args: args})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}

		case "tool":
			var result any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = msg.Content
			}
			part := genai.FunctionResponse{
				Name:     msg.Name,
				Response: map[string]any{"result": result},
			}
			last := len(contents) - 1
			if last >= 0 && contents[last].Role == "user" && isFunctionResponses(contents[last].Parts) {
				contents[last].Parts = append(contents[last].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		}
	}

	return system, contents, nil
}

func isFunctionResponses(parts []genai.Part) bool {
	for _, p := range parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return len(parts) > 0
}

func parseContentResponse(resp *genai.GenerateContentResponse, newID func() string) (dto.ChatMessage, error) {
	out := dto.ChatMessage{Role: "assistant"}
	if resp == nil || len(resp.Candidates) == 0 {
		return out, fmt.Errorf("vertex returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return out, nil
	}
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Content += string(p)
		case genai.FunctionCall:
			call, err := toToolCall(p, newID())
			if err != nil {
				return out, err
			}
			out.ToolCalls = append(out.ToolCalls, call)
		case *genai.FunctionCall:
			call, err := toToolCall(*p, newID())
			if err != nil {
				return out, err
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}

	return out, nil
}

func toToolCall(fc genai.FunctionCall, id string) (dto.ChatToolCall, error) {
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return dto.ChatToolCall{}, fmt.Errorf("encode arguments of %s: %w", fc.Name, err)
	}
	return dto.ChatToolCall{
		ID:   id,
		Type: dto.ToolTypeFunction,
		Function: dto.ChatFunctionCall{
			Name:      fc.Name,
			Arguments: string(raw),
		},
	}, nil
}

func toGenaiTools(tools []dto.ChatTool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  toGenaiSchema(tool.Function.Parameters),
		})
	}

	return []*genai.Tool{
		{FunctionDeclarations: decls},
	}
}

func toGenaiSchema(schema *dto.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        toGenaiType(schema.Type),
		Description: schema.Description,
		Enum:        schema.Enum,
		Required:    schema.Required,
	}

	if schema.Items != nil {
		out.Items = toGenaiSchema(schema.Items)
	}
	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for key, value := range schema.Properties {
			out.Properties[key] = toGenaiSchema(value)
		}
	}

	return out
}

func toGenaiType(schemaType string) genai.Type {
	switch schemaType {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
