package models

import (
	"slices"
	"time"
)

// Session is the console state of one operator conversation. It lives in
// process memory only.
type Session struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Vehicles []Vehicle `json:"vehicles"`
	Agents   []Agent   `json:"agents"`

	EmailTemplate string `json:"emailTemplate"`

	Input             string `json:"input"`
	InterimTranscript string `json:"interimTranscript"`
	Loading           bool   `json:"loading"`
	Listening         bool   `json:"listening"`
	SpeechEnabled     bool   `json:"speechEnabled"`

	Settings ChatSettings `json:"settings"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewSession(id string, settings ChatSettings, now time.Time) Session {
	return Session{
		ID:            id,
		Messages:      []Message{},
		Vehicles:      []Vehicle{},
		Agents:        []Agent{},
		SpeechEnabled: true,
		Settings:      settings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Reset clears the transcript, both result sets and the generated template.
// Settings and voice flags survive.
func (s *Session) Reset() {
	s.Messages = []Message{}
	s.Vehicles = []Vehicle{}
	s.Agents = []Agent{}
	s.EmailTemplate = ""
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		m.ToolCalls = slices.Clone(m.ToolCalls)
		out.Messages[i] = m
	}
	out.Vehicles = append([]Vehicle{}, s.Vehicles...)
	out.Agents = append([]Agent{}, s.Agents...)
	return out
}
