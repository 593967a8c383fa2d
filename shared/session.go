// shared/session.go
package shared

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Take for unknown, expired or already
// consumed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session binds an opaque token to a completed download awaiting retrieval.
// Immutable after creation.
type Session struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore is the registry of completed downloads. Put issues the
// session id itself so callers can't pick guessable tokens. Take resolves
// and removes in one step: a session is consumable exactly once.
type SessionStore interface {
	Put(filePath, fileName string) (string, error)
	Take(id string) (*Session, error)
	SweepExpired(now time.Time)
}

// NewSessionID generates a random 16-byte hex token
func NewSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InMemorySessionStore implements SessionStore with a mutex-guarded map.
// Entries are removed from the map regardless of whether the backing file
// could be deleted; file removal is best-effort throughout.
type InMemorySessionStore struct {
	ttl      time.Duration
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewInMemorySessionStore creates an in-memory store with the given TTL
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	return &InMemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Put registers a completed download and returns its session id.
// Each Put also sweeps entries older than the TTL.
func (s *InMemorySessionStore) Put(filePath, fileName string) (string, error) {
	id, err := NewSessionID()
	if err != nil {
		return "", err
	}
	now := time.Now()

	s.mu.Lock()
	s.sessions[id] = &Session{
		ID:        id,
		FilePath:  filePath,
		FileName:  fileName,
		CreatedAt: now,
	}
	s.mu.Unlock()

	s.SweepExpired(now)
	return id, nil
}

// Take resolves a session and deletes its map entry atomically. A second
// call with the same id returns ErrSessionNotFound. If the backing file has
// disappeared the entry is treated as invalid.
func (s *InMemorySessionStore) Take(id string) (*Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if _, err := os.Stat(session.FilePath); err != nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// SweepExpired removes every entry older than the TTL and best-effort
// deletes its file
func (s *InMemorySessionStore) SweepExpired(now time.Time) {
	var stale []*Session

	s.mu.Lock()
	for id, session := range s.sessions {
		if now.Sub(session.CreatedAt) > s.ttl {
			stale = append(stale, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range stale {
		if err := os.Remove(session.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: Failed to delete expired file %s: %v", session.FilePath, err)
		}
	}
}

// Len reports the number of live sessions (for tests and health reporting)
func (s *InMemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
