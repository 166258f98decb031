package azureclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const serviceName = "chat completion"

var ErrNoChoices = errors.New("chat completion returned no choices")

// Adapter calls an Azure OpenAI chat completions deployment. Settings travel
// with each call because operators may point a session at another deployment.
type Adapter struct {
	http *http.Client
}

func NewAdapter(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{http: client}
}

func (a *Adapter) MissingSettings(settings models.ChatSettings) []string {
	return settings.Missing()
}

// client targets {endpoint}/openai/deployments/{deployment}/chat/completions
// with the session's API version and key.
func (a *Adapter) client(settings models.ChatSettings) *openai.Client {
	cfg := openai.DefaultAzureConfig(settings.APIKey, settings.Endpoint)
	cfg.APIVersion = settings.APIVersion
	cfg.AzureModelMapperFunc = func(string) string { return settings.Deployment }
	cfg.HTTPClient = a.http
	return openai.NewClientWithConfig(cfg)
}

func (a *Adapter) Complete(ctx context.Context, settings models.ChatSettings, req dto.ChatRequest) (dto.ChatMessage, error) {
	log := logger.FromContext(ctx)

	if missing := settings.Missing(); len(missing) > 0 {
		return dto.ChatMessage{}, errs.NewConfigurationError(missing)
	}

	resp, err := a.client(settings).CreateChatCompletion(ctx, toRequest(settings.Deployment, req))
	if err != nil {
		return dto.ChatMessage{}, translateError(log, err)
	}
	if len(resp.Choices) == 0 {
		return dto.ChatMessage{}, ErrNoChoices
	}

	choice := resp.Choices[0]
	log.Debug("chat completion received", "tool_calls", len(choice.Message.ToolCalls), "finish_reason", choice.FinishReason)
	return fromMessage(choice.Message), nil
}

func toRequest(deployment string, req dto.ChatRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       deployment,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, toMessage(msg))
	}
	for _, tool := range req.Tools {
		fn := &openai.FunctionDefinition{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			fn.Parameters = tool.Function.Parameters
		}
		out.Tools = append(out.Tools, openai.Tool{Type: openai.ToolType(tool.Type), Function: fn})
	}
	if req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

func toMessage(msg dto.ChatMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolType(call.Type),
			Function: openai.FunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

func fromMessage(msg openai.ChatCompletionMessage) dto.ChatMessage {
	out := dto.ChatMessage{Role: msg.Role, Content: msg.Content}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, dto.ChatToolCall{
			ID:   call.ID,
			Type: string(call.Type),
			Function: dto.ChatFunctionCall{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}
	return out
}

// translateError maps rejected requests and transport failures to
// ExternalServiceError; anything else is a malformed response.
func translateError(log *slog.Logger, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		log.Warn("chat completion rejected", "status", apiErr.HTTPStatusCode, "error", apiErr.Message)
		return errs.NewExternalServiceError(serviceName, apiErr.HTTPStatusCode, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		log.Warn("chat completion rejected", "status", reqErr.HTTPStatusCode, "error", reqErr.Err)
		return errs.NewExternalServiceError(serviceName, reqErr.HTTPStatusCode, nil)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errs.NewExternalServiceError(serviceName, 0, err)
	}
	return fmt.Errorf("decode chat response: %w", err)
}
