package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/internal/voice"
)

type stubConsoleService struct {
	called    bool
	sessionID string
	input     string
	resp      dto.TurnResponse
	err       error
}

func (s *stubConsoleService) Send(ctx context.Context, sessionID, input string) (dto.TurnResponse, error) {
	s.called = true
	s.sessionID = sessionID
	s.input = input
	return s.resp, s.err
}

type stubSessionService struct {
	id         string
	settings   dto.UpdateSettingsRequest
	template   dto.GenerateTemplateRequest
	text       string
	listening  *bool
	speech     *bool
	transcript voice.Transcript
	session    models.Session
	err        error
}

func (s *stubSessionService) Create(ctx context.Context) (models.Session, error) {
	return s.session, s.err
}

func (s *stubSessionService) Get(ctx context.Context, id string) (models.Session, error) {
	s.id = id
	return s.session, s.err
}

func (s *stubSessionService) Delete(ctx context.Context, id string) error {
	s.id = id
	return s.err
}

func (s *stubSessionService) Reset(ctx context.Context, id string) (models.Session, error) {
	s.id = id
	return s.session, s.err
}

func (s *stubSessionService) UpdateSettings(ctx context.Context, id string, req dto.UpdateSettingsRequest) (models.Session, error) {
	s.id = id
	s.settings = req
	return s.session, s.err
}

func (s *stubSessionService) GenerateEmail(ctx context.Context, id string, req dto.GenerateTemplateRequest) (dto.TemplateResponse, error) {
	s.id = id
	s.template = req
	return dto.TemplateResponse{Generated: true, Text: "Subject: x"}, s.err
}

func (s *stubSessionService) UpdateTemplate(ctx context.Context, id, text string) (models.Session, error) {
	s.id = id
	s.text = text
	return s.session, s.err
}

func (s *stubSessionService) SetListening(ctx context.Context, id string, listening bool) (models.Session, error) {
	s.id = id
	s.listening = &listening
	return s.session, s.err
}

func (s *stubSessionService) SetSpeech(ctx context.Context, id string, enabled bool) (models.Session, error) {
	s.id = id
	s.speech = &enabled
	return s.session, s.err
}

func (s *stubSessionService) Dictate(ctx context.Context, id string, t voice.Transcript) (models.Session, error) {
	s.id = id
	s.transcript = t
	return s.session, s.err
}

func (s *stubSessionService) Consume(ctx context.Context, id string, src voice.TranscriptionSource) error {
	return s.err
}

type stubResponseHandler struct {
	writeSuccessCalled bool
	writeSuccessStatus int
	writeSuccessData   any

	handleErrorCalled bool
	handleError       error
}

func (s *stubResponseHandler) WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	s.writeSuccessCalled = true
	s.writeSuccessStatus = status
	s.writeSuccessData = data
	w.WriteHeader(status)
}

func (s *stubResponseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.WriteHeader(status)
}

func (s *stubResponseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	s.handleErrorCalled = true
	s.handleError = err
	w.WriteHeader(http.StatusInternalServerError)
}

func newSessionTestHandler(console *stubConsoleService, sessions *stubSessionService, resp *stubResponseHandler) http.Handler {
	return NewSessionHandlers(&Deps{
		ResponseHandler: resp,
		ConsoleSvc:      console,
		SessionSvc:      sessions,
	}).SessionRoutes()
}

func TestSendMessageSuccess(t *testing.T) {
	console := &stubConsoleService{resp: dto.TurnResponse{Messages: []models.Message{{Role: models.RoleUser}}}}
	resp := &stubResponseHandler{}
	h := newSessionTestHandler(console, &stubSessionService{}, resp)

	req := httptest.NewRequest(http.MethodPost, "/s1/messages", strings.NewReader(`{"message":"trucks in Brazil"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !console.called || console.sessionID != "s1" || console.input != "trucks in Brazil" {
		t.Fatalf("send mismatch: %+v", console)
	}
	if !resp.writeSuccessCalled || resp.writeSuccessStatus != http.StatusOK {
		t.Fatalf("expected success response")
	}
	if _, ok := resp.writeSuccessData.(dto.TurnResponse); !ok {
		t.Fatalf("unexpected data type %T", resp.writeSuccessData)
	}
}

func TestSendMessageEmptyBodyUsesDraft(t *testing.T) {
	console := &stubConsoleService{}
	h := newSessionTestHandler(console, &stubSessionService{}, &stubResponseHandler{})

	req := httptest.NewRequest(http.MethodPost, "/s1/messages", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !console.called || console.input != "" {
		t.Fatalf("expected send with empty input, got %+v", console)
	}
}

func TestSendMessageInvalidJSON(t *testing.T) {
	console := &stubConsoleService{}
	resp := &stubResponseHandler{}
	h := newSessionTestHandler(console, &stubSessionService{}, resp)

	req := httptest.NewRequest(http.MethodPost, "/s1/messages", strings.NewReader(`{"message":`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if console.called {
		t.Fatalf("service should not be called")
	}
	var validation *errs.ValidationError
	if !errors.As(resp.handleError, &validation) {
		t.Fatalf("expected validation error, got %v", resp.handleError)
	}
}

func TestSendMessagePropagatesServiceError(t *testing.T) {
	console := &stubConsoleService{err: errs.NewBusyError("s1")}
	resp := &stubResponseHandler{}
	h := newSessionTestHandler(console, &stubSessionService{}, resp)

	req := httptest.NewRequest(http.MethodPost, "/s1/messages", strings.NewReader(`{"message":"hi"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var busy *errs.BusyError
	if !resp.handleErrorCalled || !errors.As(resp.handleError, &busy) {
		t.Fatalf("expected busy error, got %v", resp.handleError)
	}
}

func TestCreateSession(t *testing.T) {
	sessions := &stubSessionService{session: models.Session{ID: "s1"}}
	resp := &stubResponseHandler{}
	h := newSessionTestHandler(&stubConsoleService{}, sessions, resp)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if resp.writeSuccessStatus != http.StatusCreated {
		t.Fatalf("status mismatch: %d", resp.writeSuccessStatus)
	}
}

func TestSessionActionsDecodeBodies(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		check  func(t *testing.T, s *stubSessionService)
	}{
		{"settings", http.MethodPut, "/s1/settings", `{"apiKey":"k"}`, func(t *testing.T, s *stubSessionService) {
			if s.settings.APIKey == nil || *s.settings.APIKey != "k" || s.settings.Endpoint != nil {
				t.Fatalf("settings mismatch: %+v", s.settings)
			}
		}},
		{"generate", http.MethodPost, "/s1/template", `{"vehicleIndex":1}`, func(t *testing.T, s *stubSessionService) {
			if s.template.VehicleIndex == nil || *s.template.VehicleIndex != 1 || s.template.AgentIndex != nil {
				t.Fatalf("template request mismatch: %+v", s.template)
			}
		}},
		{"edit template", http.MethodPut, "/s1/template", `{"text":"edited"}`, func(t *testing.T, s *stubSessionService) {
			if s.text != "edited" {
				t.Fatalf("text mismatch: %q", s.text)
			}
		}},
		{"listening", http.MethodPut, "/s1/listening", `{"listening":true}`, func(t *testing.T, s *stubSessionService) {
			if s.listening == nil || !*s.listening {
				t.Fatalf("listening not set")
			}
		}},
		{"speech", http.MethodPut, "/s1/speech", `{"enabled":false}`, func(t *testing.T, s *stubSessionService) {
			if s.speech == nil || *s.speech {
				t.Fatalf("speech not disabled")
			}
		}},
		{"transcript", http.MethodPost, "/s1/transcript", `{"text":"in Spain","final":true}`, func(t *testing.T, s *stubSessionService) {
			if s.transcript != (voice.Transcript{Text: "in Spain", Final: true}) {
				t.Fatalf("transcript mismatch: %+v", s.transcript)
			}
		}},
		{"reset", http.MethodPost, "/s1/reset", "", func(t *testing.T, s *stubSessionService) {}},
		{"delete", http.MethodDelete, "/s1", "", func(t *testing.T, s *stubSessionService) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &stubSessionService{}
			resp := &stubResponseHandler{}
			h := newSessionTestHandler(&stubConsoleService{}, sessions, resp)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			h.ServeHTTP(httptest.NewRecorder(), req)

			if !resp.writeSuccessCalled {
				t.Fatalf("expected success, got error %v", resp.handleError)
			}
			if sessions.id != "s1" {
				t.Fatalf("session id mismatch: %q", sessions.id)
			}
			tt.check(t, sessions)
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	sessions := &stubSessionService{err: errs.NewNotFoundError("session not found")}
	resp := &stubResponseHandler{}
	h := newSessionTestHandler(&stubConsoleService{}, sessions, resp)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var notFound *errs.NotFoundError
	if !errors.As(resp.handleError, &notFound) {
		t.Fatalf("expected not found, got %v", resp.handleError)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://console.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://console.example.com", true},
		{"http://example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/sessions/s1/events", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := check(req); got != tt.want {
			t.Fatalf("origin %q: got %v want %v", tt.origin, got, tt.want)
		}
	}
}
