package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/skiploss-console/internal/dto"
	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
	"github.com/GregMSThompson/skiploss-console/internal/response"
	"github.com/GregMSThompson/skiploss-console/internal/voice"
)

type ConsoleService interface {
	Send(ctx context.Context, sessionID, input string) (dto.TurnResponse, error)
}

type SessionService interface {
	Create(ctx context.Context) (models.Session, error)
	Get(ctx context.Context, id string) (models.Session, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) (models.Session, error)
	UpdateSettings(ctx context.Context, id string, req dto.UpdateSettingsRequest) (models.Session, error)
	GenerateEmail(ctx context.Context, id string, req dto.GenerateTemplateRequest) (dto.TemplateResponse, error)
	UpdateTemplate(ctx context.Context, id, text string) (models.Session, error)
	SetListening(ctx context.Context, id string, listening bool) (models.Session, error)
	SetSpeech(ctx context.Context, id string, enabled bool) (models.Session, error)
	Dictate(ctx context.Context, id string, t voice.Transcript) (models.Session, error)
	Consume(ctx context.Context, id string, src voice.TranscriptionSource) error
}

type sessionHandlers struct {
	ResponseHandler response.ResponseHandler
	ConsoleSvc      ConsoleService
	SessionSvc      SessionService
}

func NewSessionHandlers(deps *Deps) *sessionHandlers {
	return &sessionHandlers{
		ResponseHandler: deps.ResponseHandler,
		ConsoleSvc:      deps.ConsoleSvc,
		SessionSvc:      deps.SessionSvc,
	}
}

func (h *sessionHandlers) SessionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/reset", h.Reset)
	r.Put("/{id}/settings", h.UpdateSettings)
	r.Post("/{id}/messages", h.SendMessage)
	r.Post("/{id}/template", h.GenerateTemplate)
	r.Put("/{id}/template", h.UpdateTemplate)
	r.Put("/{id}/listening", h.SetListening)
	r.Post("/{id}/transcript", h.Dictate)
	r.Put("/{id}/speech", h.SetSpeech)
	return r
}

func (h *sessionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	session, err := h.SessionSvc.Create(r.Context())
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, session)
}

func (h *sessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.SessionSvc.Get(r.Context(), chi.URLParam(r, "id"))
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.SessionSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *sessionHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	session, err := h.SessionSvc.Reset(r.Context(), chi.URLParam(r, "id"))
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSettingsRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	session, err := h.SessionSvc.UpdateSettings(r.Context(), chi.URLParam(r, "id"), req)
	h.writeSession(w, r, session, err)
}

// SendMessage runs one conversational turn. An empty message sends the
// session's draft input.
func (h *sessionHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req dto.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.ConsoleSvc.Send(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, resp)
}

func (h *sessionHandlers) GenerateTemplate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	resp, err := h.SessionSvc.GenerateEmail(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, resp)
}

func (h *sessionHandlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	session, err := h.SessionSvc.UpdateTemplate(r.Context(), chi.URLParam(r, "id"), req.Text)
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) SetListening(w http.ResponseWriter, r *http.Request) {
	var req dto.ListeningRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	session, err := h.SessionSvc.SetListening(r.Context(), chi.URLParam(r, "id"), req.Listening)
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) Dictate(w http.ResponseWriter, r *http.Request) {
	var req dto.TranscriptRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	session, err := h.SessionSvc.Dictate(r.Context(), chi.URLParam(r, "id"), voice.Transcript{Text: req.Text, Final: req.Final})
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) SetSpeech(w http.ResponseWriter, r *http.Request) {
	var req dto.SpeechRequest
	if err := decodeBody(r, &req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	session, err := h.SessionSvc.SetSpeech(r.Context(), chi.URLParam(r, "id"), req.Enabled)
	h.writeSession(w, r, session, err)
}

func (h *sessionHandlers) writeSession(w http.ResponseWriter, r *http.Request, session models.Session, err error) {
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, session)
}

// decodeBody reads a JSON request body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errs.NewValidationError("invalid request body")
	}
	return nil
}
