package models

import "encoding/json"

type ChatProvider string

const (
	ChatProviderAzure  ChatProvider = "azure"
	ChatProviderVertex ChatProvider = "vertex"
)

// ChatSettings addresses the chat completion deployment for a session.
type ChatSettings struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// Missing lists the settings a chat call cannot be made without.
func (s ChatSettings) Missing() []string {
	var missing []string
	if s.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if s.APIKey == "" {
		missing = append(missing, "apiKey")
	}
	if s.Deployment == "" {
		missing = append(missing, "deployment")
	}
	if s.APIVersion == "" {
		missing = append(missing, "apiVersion")
	}
	return missing
}

// MarshalJSON never exposes the API key, only whether one is set.
func (s ChatSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Endpoint   string `json:"endpoint"`
		Deployment string `json:"deployment"`
		APIVersion string `json:"apiVersion"`
		APIKeySet  bool   `json:"apiKeySet"`
	}{
		Endpoint:   s.Endpoint,
		Deployment: s.Deployment,
		APIVersion: s.APIVersion,
		APIKeySet:  s.APIKey != "",
	})
}
