// Package events fans out per-session console events (speech, insights) to
// connected WebSocket clients.
package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GregMSThompson/skiploss-console/internal/voice"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const (
	TypeSpeech  = "speech"
	TypeInsight = "insight"
)

const defaultBuffer = 16

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*Subscription]struct{}
	buffer   int
	clockNow func() time.Time
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:     make(map[string]map[*Subscription]struct{}),
		buffer:   buffer,
		clockNow: time.Now,
	}
}

type Subscription struct {
	C <-chan Event

	ch        chan Event
	hub       *Hub
	sessionID string
	once      sync.Once
}

func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, sessionID: sessionID}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.sessionID], s)
		if len(s.hub.subs[s.sessionID]) == 0 {
			delete(s.hub.subs, s.sessionID)
		}
		close(s.ch)
	})
}

// Publish delivers an event to every subscriber of the session and returns
// how many received it. Slow subscribers with a full buffer miss the event.
func (h *Hub) Publish(sessionID, eventType string, data any) int {
	ev := Event{Type: eventType, SessionID: sessionID, Data: data, Time: h.clockNow()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Sessions lists sessions that currently have subscribers.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Speaker is a voice.SpeechSink that asks the session's browser to speak.
type Speaker struct {
	hub *Hub
}

func NewSpeaker(hub *Hub) *Speaker {
	return &Speaker{hub: hub}
}

func (s *Speaker) Speak(ctx context.Context, sessionID, text string) error {
	cleaned := voice.CleanForSpeech(text)
	if cleaned == "" {
		return nil
	}
	n := s.hub.Publish(sessionID, TypeSpeech, map[string]string{"text": cleaned})
	logger.FromContext(ctx).Debug("speech published", "session_id", sessionID, "listeners", n)
	return nil
}
