package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/GregMSThompson/skiploss-console/internal/events"
	"github.com/GregMSThompson/skiploss-console/internal/response"
	"github.com/GregMSThompson/skiploss-console/internal/voice"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	frameTranscript = "transcript"
)

type EventSubscriber interface {
	Subscribe(sessionID string) *events.Subscription
}

type eventHandlers struct {
	ResponseHandler response.ResponseHandler
	SessionSvc      SessionService
	Events          EventSubscriber
	upgrader        websocket.Upgrader
}

func NewEventHandlers(deps *Deps) *eventHandlers {
	h := &eventHandlers{
		ResponseHandler: deps.ResponseHandler,
		SessionSvc:      deps.SessionSvc,
		Events:          deps.Events,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(deps.AllowedOrigins),
	}
	return h
}

// Stream upgrades to a WebSocket that carries the session's speech and
// insight events out and dictation results in. Inbound frames look like
// {"type":"transcript","text":"...","final":true}.
func (h *eventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.SessionSvc.Get(r.Context(), id); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	log, ctx := logger.With(r.Context(), "session_id", id)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.Events.Subscribe(id)
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("event stream opened")
	go writePump(ctx, cancel, conn, sub)

	err = h.SessionSvc.Consume(ctx, id, newFrameSource(conn))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("event stream closed", "error", err)
		return
	}
	log.Info("event stream closed")
}

// writePump is the only writer on conn.
func writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *events.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		// Unblocks the reader.
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// frameSource reads dictation results off the socket.
type frameSource struct {
	conn *websocket.Conn
}

func newFrameSource(conn *websocket.Conn) *frameSource {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &frameSource{conn: conn}
}

// Next returns the next transcript frame. Other frame types are skipped; a
// closed socket ends the source with io.EOF.
func (s *frameSource) Next(ctx context.Context) (voice.Transcript, error) {
	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return voice.Transcript{}, ctx.Err()
			}
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
				closeErr  *websocket.CloseError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				continue
			}
			if errors.As(err, &closeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return voice.Transcript{}, io.EOF
			}
			return voice.Transcript{}, err
		}
		if frame.Type != frameTranscript {
			continue
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return voice.Transcript{Text: frame.Text, Final: frame.Final}, nil
	}
}

// originChecker allows same-host requests and the configured origins. An
// origin of "*" allows any.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
