// Package session keeps bounded per-session conversation history in memory.
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Exchange is one completed user/assistant round.
type Exchange struct {
	UserMessage      string
	AssistantMessage string
}

type record struct {
	exchanges []Exchange
	createdAt time.Time
	updatedAt time.Time
}

// Store holds conversation history keyed by session id. Each session keeps
// at most maxHistory of its most recent exchanges; older rounds are evicted
// silently.
//
// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*record
	maxHistory int
	logger     *slog.Logger
}

// NewStore creates a session store keeping maxHistory exchanges per session.
func NewStore(maxHistory int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:   make(map[string]*record),
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// Create allocates a new empty session and returns its id.
func (s *Store) Create() string {
	id := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	s.sessions[id] = &record{createdAt: now, updatedAt: now}
	s.mu.Unlock()

	s.logger.Debug("created session", "session_id", id)
	return id
}

// Exists reports whether the session id is known.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// History renders the session's exchanges as a transcript of alternating
// "User:" and "Assistant:" lines. Unknown or empty sessions yield "".
func (s *Store) History(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok || len(rec.exchanges) == 0 {
		return ""
	}

	lines := make([]string, 0, 2*len(rec.exchanges))
	for _, ex := range rec.exchanges {
		lines = append(lines, "User: "+ex.UserMessage, "Assistant: "+ex.AssistantMessage)
	}
	return strings.Join(lines, "\n")
}

// AddExchange appends one completed round to the session, evicting the
// oldest rounds beyond the history bound. An unknown id is recreated rather
// than rejected, so a restarted server keeps serving old clients.
func (s *Store) AddExchange(id, userMessage, assistantMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		rec = &record{createdAt: time.Now()}
		s.sessions[id] = rec
	}

	rec.exchanges = append(rec.exchanges, Exchange{
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	})
	if excess := len(rec.exchanges) - s.maxHistory; excess > 0 {
		rec.exchanges = rec.exchanges[excess:]
	}
	rec.updatedAt = time.Now()
}

// Reset clears a session's history while keeping the id valid.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.sessions[id]; ok {
		rec.exchanges = nil
		rec.updatedAt = time.Now()
	}
}

// Delete removes a session entirely. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
