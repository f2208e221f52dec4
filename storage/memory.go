// In-memory message store.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements MessageStore using an in-memory map.
// Data is lost when process terminates.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
	recency  []string // session IDs, most recently written first
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]Message),
	}
}

// AppendMessage persists msg, assigning ID and CreatedAt when unset.
func (s *InMemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[msg.SessionID] = append(s.sessions[msg.SessionID], *msg)
	s.touch(msg.SessionID)
	return nil
}

// touch moves sessionID to the front of the recency list. Caller holds
// the write lock.
func (s *InMemoryStore) touch(sessionID string) {
	for i, id := range s.recency {
		if id == sessionID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			break
		}
	}
	s.recency = append([]string{sessionID}, s.recency...)
}

// Messages returns a session's messages in append order.
// Returns empty slice if session doesn't exist.
func (s *InMemoryStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []Message{}, nil
	}

	// Return a copy to avoid external mutations
	copied := make([]Message, len(history))
	copy(copied, history)
	return copied, nil
}

// DeleteSession removes a session and its messages.
func (s *InMemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	for i, id := range s.recency {
		if id == sessionID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			break
		}
	}
	return nil
}

// ListSessions lists all session IDs, most recently written first.
func (s *InMemoryStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, len(s.recency))
	copy(sessions, s.recency)
	return sessions, nil
}

// Exists checks if a session exists.
func (s *InMemoryStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

// Verify InMemoryStore implements the interface
var _ MessageStore = (*InMemoryStore)(nil)
