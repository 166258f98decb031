package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/skiploss-console/internal/errs"
	"github.com/GregMSThompson/skiploss-console/internal/models"
)

type sessionEntry struct {
	mu      sync.Mutex
	session models.Session
}

// sessionStore keeps console sessions in process memory. Each session has its
// own mutex; callers only ever see copies.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	clockNow func() time.Time
	newID    func() string
}

func NewSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*sessionEntry),
		clockNow: time.Now,
		newID:    uuid.NewString,
	}
}

func (s *sessionStore) Create(ctx context.Context, settings models.ChatSettings) (models.Session, error) {
	session := models.NewSession(s.newID(), settings, s.clockNow())

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()

	return session.Clone(), nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (models.Session, error) {
	entry, err := s.entry(id)
	if err != nil {
		return models.Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

// Update applies fn to the stored session under its lock. If fn fails the
// session is left unchanged.
func (s *sessionStore) Update(ctx context.Context, id string, fn func(*models.Session) error) (models.Session, error) {
	entry, err := s.entry(id)
	if err != nil {
		return models.Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.session.Clone()
	if err := fn(&next); err != nil {
		return entry.session.Clone(), err
	}
	next.UpdatedAt = s.clockNow()
	entry.session = next
	return next.Clone(), nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return errs.NewNotFoundError("session not found")
	}
	delete(s.sessions, id)
	return nil
}

// IDs lists the live session ids in a stable order.
func (s *sessionStore) IDs(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *sessionStore) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, errs.NewNotFoundError("session not found")
	}
	return entry, nil
}
