package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/internal/voice"
	"github.com/GregMSThompson/skiploss-console/pkg/helpers"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

type sessionService struct {
	store    sessionStore
	defaults models.ChatSettings
}

// NewSessionService manages session lifecycle and the operator actions that
// do not involve the chat model. New sessions start with defaults.
func NewSessionService(store sessionStore, defaults models.ChatSettings) *sessionService {
	return &sessionService{store: store, defaults: defaults}
}

func (s *sessionService) Create(ctx context.Context) (models.Session, error) {
	session, err := s.store.Create(ctx, s.defaults)
	if err != nil {
		return models.Session{}, err
	}
	logger.FromContext(ctx).Info("session created", "session_id", session.ID)
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (models.Session, error) {
	return s.store.Get(ctx, id)
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("session deleted", "session_id", id)
	return nil
}

// Reset clears the transcript, both result sets and the email template.
func (s *sessionService) Reset(ctx context.Context, id string) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		sess.Reset()
		return nil
	})
}

// UpdateSettings applies the setup form. Omitted fields keep their value.
func (s *sessionService) UpdateSettings(ctx context.Context, id string, req dto.UpdateSettingsRequest) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		sess.Settings.Endpoint = helpers.ValueOr(req.Endpoint, sess.Settings.Endpoint)
		sess.Settings.APIKey = helpers.ValueOr(req.APIKey, sess.Settings.APIKey)
		sess.Settings.Deployment = helpers.ValueOr(req.Deployment, sess.Settings.Deployment)
		sess.Settings.APIVersion = helpers.ValueOr(req.APIVersion, sess.Settings.APIVersion)
		return nil
	})
}

// GenerateEmail renders the contact email for the selected vehicle and agent
// (index 0 when unset) and stores it as the session template. Nothing is
// generated while either result set is empty.
func (s *sessionService) GenerateEmail(ctx context.Context, id string, req dto.GenerateTemplateRequest) (dto.TemplateResponse, error) {
	var resp dto.TemplateResponse
	_, err := s.store.Update(ctx, id, func(sess *models.Session) error {
		if len(sess.Vehicles) == 0 || len(sess.Agents) == 0 {
			return nil
		}
		vi := helpers.Value(req.VehicleIndex)
		ai := helpers.Value(req.AgentIndex)
		if vi < 0 || vi >= len(sess.Vehicles) {
			return errs.NewValidationError(fmt.Sprintf("vehicleIndex %d out of range", vi))
		}
		if ai < 0 || ai >= len(sess.Agents) {
			return errs.NewValidationError(fmt.Sprintf("agentIndex %d out of range", ai))
		}
		sess.EmailTemplate = GenerateTemplate(sess.Vehicles[vi], sess.Agents[ai])
		resp = dto.TemplateResponse{Generated: true, Text: sess.EmailTemplate}
		return nil
	})
	if err != nil {
		return dto.TemplateResponse{}, err
	}
	return resp, nil
}

func (s *sessionService) UpdateTemplate(ctx context.Context, id, text string) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		sess.EmailTemplate = text
		return nil
	})
}

// SetListening toggles dictation. Stopping discards the interim transcript.
func (s *sessionService) SetListening(ctx context.Context, id string, listening bool) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		sess.Listening = listening
		if !listening {
			sess.InterimTranscript = ""
		}
		return nil
	})
}

func (s *sessionService) SetSpeech(ctx context.Context, id string, enabled bool) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		sess.SpeechEnabled = enabled
		return nil
	})
}

// Dictate applies one recognition result. Final text is appended to the
// draft input and clears the interim transcript; interim text replaces it.
func (s *sessionService) Dictate(ctx context.Context, id string, t voice.Transcript) (models.Session, error) {
	return s.store.Update(ctx, id, func(sess *models.Session) error {
		if t.Final {
			sess.Input = voice.MergeFinal(sess.Input, t.Text)
			sess.InterimTranscript = ""
			return nil
		}
		sess.InterimTranscript = t.Text
		return nil
	})
}

// Consume applies results from src until it is exhausted, ctx ends or the
// session goes away. io.EOF ends consumption cleanly.
func (s *sessionService) Consume(ctx context.Context, id string, src voice.TranscriptionSource) error {
	log := logger.FromContext(ctx).With("session_id", id)
	for {
		t, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := s.Dictate(ctx, id, t); err != nil {
			return err
		}
		if logger.IsDebugEnabled(ctx) {
			log.Debug("transcript applied", "final", t.Final, "chars", len(t.Text))
		}
	}
}
