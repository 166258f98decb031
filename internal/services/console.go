package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/lock"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/internal/voice"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const chatTemperature = 0.1

const systemPrompt = `You are a Daimler Truck Repossession Assistant that provides complete end-to-end service for truck repossession operations.

CORE PROCESS:
When a user asks about trucks in skip loss:
1. ALWAYS call get_skip_loss_vehicles(country, region) first to retrieve Daimler trucks
2. IMMEDIATELY follow with find_repossession_agent(country, region) using the same parameters
3. Present integrated results showing both trucks and available agents
4. Offer to generate contact emails for agents

IMPORTANT BEHAVIORS:
- Focus on Daimler truck models (Mercedes-Benz Actros, Atego, Arocs, Antos, Freightliner Cascadia)
- Always call BOTH functions for any location query
- Handle errors gracefully and inform users of any issues
- Focus on actionable next steps for truck repossession
- Be professional and concise
- When presenting data, mention that detailed tables will be shown below your response

Supported countries: Brazil, Mexico, Germany, and Spain.
The user interface will display formatted tables and additional features below your text response.`

type chatClient interface {
	Complete(ctx context.Context, settings models.ChatSettings, req dto.ChatRequest) (dto.ChatMessage, error)
	MissingSettings(settings models.ChatSettings) []string
}

type toolRunner interface {
	Execute(ctx context.Context, sessionID, name, rawArgs string) (any, error)
}

type consoleService struct {
	chat        chatClient
	tools       toolRunner
	store       sessionStore
	locks       lock.Locker
	speech      voice.SpeechSink
	turnTimeout time.Duration
	clockNow    func() time.Time
	newID       func() string
}

func NewConsoleService(chat chatClient, tools toolRunner, store sessionStore, locks lock.Locker, speech voice.SpeechSink, turnTimeout time.Duration) *consoleService {
	if speech == nil {
		speech = voice.NopSink{}
	}
	return &consoleService{
		chat:        chat,
		tools:       tools,
		store:       store,
		locks:       locks,
		speech:      speech,
		turnTimeout: turnTimeout,
		clockNow:    time.Now,
		newID:       uuid.NewString,
	}
}

// Send runs one conversational turn. A blank input falls back to the
// session's draft. Precondition failures return an error and leave the
// transcript alone; failures during the exchange are recorded as an
// assistant "Error: ..." message and Send still succeeds.
func (s *consoleService) Send(ctx context.Context, sessionID, input string) (dto.TurnResponse, error) {
	log, ctx := logger.With(ctx, "session_id", sessionID)

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return dto.TurnResponse{}, err
	}

	text := input
	if strings.TrimSpace(text) == "" {
		text = session.Input
	}
	if strings.TrimSpace(text) == "" {
		return dto.TurnResponse{}, errs.NewValidationError("message is required")
	}
	if missing := s.chat.MissingSettings(session.Settings); len(missing) > 0 {
		return dto.TurnResponse{}, errs.NewConfigurationError(missing)
	}

	release, acquired, err := s.locks.TryAcquire(ctx, sessionID)
	if err != nil {
		return dto.TurnResponse{}, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !acquired {
		return dto.TurnResponse{}, errs.NewBusyError(sessionID)
	}
	defer release()

	// The turn outlives a dropped client connection but not the turn timeout.
	ctx = context.WithoutCancel(ctx)
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	appended := []models.Message{s.message(models.RoleUser, text)}
	session, err = s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		sess.Messages = append(sess.Messages, appended[0])
		sess.Input = ""
		sess.InterimTranscript = ""
		sess.Loading = true
		return nil
	})
	if err != nil {
		return dto.TurnResponse{}, err
	}

	exchanged, answer, turnErr := s.exchange(ctx, sessionID, session.Settings)
	appended = append(appended, exchanged...)
	if turnErr != nil {
		log.Error("turn failed", "error", turnErr)
		answer = ""
		appended = append(appended, s.message(models.RoleAssistant, "Error: "+turnErr.Error()))
	}

	session, err = s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		if turnErr != nil {
			sess.Messages = append(sess.Messages, appended[len(appended)-1])
		}
		sess.Loading = false
		return nil
	})
	if err != nil {
		return dto.TurnResponse{}, err
	}

	if session.SpeechEnabled && answer != "" {
		if err := s.speech.Speak(ctx, sessionID, answer); err != nil {
			log.Warn("speech output failed", "error", err)
		}
	}

	log.Info("turn completed", "messages", len(appended))
	return dto.TurnResponse{
		Messages: appended,
		Session:  session,
	}, nil
}

// exchange performs the first pass and, when the model asks for tools, the
// tool executions and the final pass. It returns the messages it stored, in
// order, and the assistant answer. The stored messages are returned even when
// a later step fails.
func (s *consoleService) exchange(ctx context.Context, sessionID string, settings models.ChatSettings) (appended []models.Message, answer string, err error) {
	log := logger.FromContext(ctx)

	record := func(msg models.Message) error {
		if err := s.appendMessages(ctx, sessionID, msg); err != nil {
			return err
		}
		appended = append(appended, msg)
		return nil
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	first, err := s.chat.Complete(ctx, settings, dto.ChatRequest{
		Messages:    toChatMessages(session.Messages),
		Tools:       ToolDeclarations(),
		ToolChoice:  dto.ToolChoiceAuto,
		Temperature: chatTemperature,
	})
	if err != nil {
		return appended, "", err
	}

	if len(first.ToolCalls) == 0 {
		err = record(s.message(models.RoleAssistant, first.Content))
		return appended, first.Content, err
	}

	log.Info("model requested tools", "count", len(first.ToolCalls))

	request := s.message(models.RoleAssistant, first.Content)
	for _, call := range first.ToolCalls {
		request.ToolCalls = append(request.ToolCalls, models.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if err := record(request); err != nil {
		return appended, "", err
	}

	for _, call := range request.ToolCalls {
		payload, err := s.tools.Execute(ctx, sessionID, call.Name, call.Arguments)
		if err != nil {
			return appended, "", err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return appended, "", fmt.Errorf("encode %s result: %w", call.Name, err)
		}
		result := s.message(models.RoleTool, string(data))
		result.ToolCallID = call.ID
		result.ToolName = call.Name
		if err := record(result); err != nil {
			return appended, "", err
		}
	}

	session, err = s.store.Get(ctx, sessionID)
	if err != nil {
		return appended, "", err
	}
	final, err := s.chat.Complete(ctx, settings, dto.ChatRequest{
		Messages:    toChatMessages(session.Messages),
		Temperature: chatTemperature,
	})
	if err != nil {
		return appended, "", err
	}
	err = record(s.message(models.RoleAssistant, final.Content))
	return appended, final.Content, err
}

func (s *consoleService) appendMessages(ctx context.Context, sessionID string, msgs ...models.Message) error {
	_, err := s.store.Update(ctx, sessionID, func(sess *models.Session) error {
		sess.Messages = append(sess.Messages, msgs...)
		return nil
	})
	return err
}

func (s *consoleService) message(role models.Role, content string) models.Message {
	return models.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: s.clockNow(),
	}
}

// toChatMessages prefixes the system prompt and converts the transcript.
// Tool requests from a turn that failed before all of them were answered
// are sent as plain assistant text, and their partial results are dropped;
// chat endpoints reject unanswered tool calls.
func toChatMessages(messages []models.Message) []dto.ChatMessage {
	answered := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role == models.RoleTool {
			answered[msg.ToolCallID] = true
		}
	}

	dropped := make(map[string]bool)
	out := make([]dto.ChatMessage, 0, len(messages)+1)
	out = append(out, dto.ChatMessage{Role: "system", Content: systemPrompt})

	for _, msg := range messages {
		switch {
		case msg.Role == models.RoleTool:
			if dropped[msg.ToolCallID] {
				continue
			}
			out = append(out, dto.ChatMessage{
				Role:       string(models.RoleTool),
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			})

		case len(msg.ToolCalls) > 0 && allAnswered(msg.ToolCalls, answered):
			calls := make([]dto.ChatToolCall, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				calls = append(calls, dto.ChatToolCall{
					ID:   call.ID,
					Type: dto.ToolTypeFunction,
					Function: dto.ChatFunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			out = append(out, dto.ChatMessage{
				Role:      string(msg.Role),
				Content:   msg.Content,
				ToolCalls: calls,
			})

		default:
			for _, call := range msg.ToolCalls {
				dropped[call.ID] = true
			}
			if msg.Content == "" && len(msg.ToolCalls) > 0 {
				continue
			}
			out = append(out, dto.ChatMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return out
}

func allAnswered(calls []models.ToolCall, answered map[string]bool) bool {
	for _, call := range calls {
		if !answered[call.ID] {
			return false
		}
	}
	return true
}
