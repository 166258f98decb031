package dto

import "github.com/GregMSThompson/skiploss-console/internal/models"

type SendMessageRequest struct {
	Message string `json:"message"`
}

// TurnResponse carries the messages one send appended and the session after it.
type TurnResponse struct {
	Messages []models.Message `json:"messages"`
	Session  models.Session   `json:"session"`
}

type UpdateSettingsRequest struct {
	Endpoint   *string `json:"endpoint"`
	APIKey     *string `json:"apiKey"`
	Deployment *string `json:"deployment"`
	APIVersion *string `json:"apiVersion"`
}

type GenerateTemplateRequest struct {
	VehicleIndex *int `json:"vehicleIndex"`
	AgentIndex   *int `json:"agentIndex"`
}

type UpdateTemplateRequest struct {
	Text string `json:"text"`
}

type TemplateResponse struct {
	Generated bool   `json:"generated"`
	Text      string `json:"text"`
}

type ListeningRequest struct {
	Listening bool `json:"listening"`
}

type SpeechRequest struct {
	Enabled bool `json:"enabled"`
}

// TranscriptRequest is one speech recognition result.
type TranscriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type Insight struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}
