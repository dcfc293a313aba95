// Package sessionstore keeps conversation sessions between user inputs.
package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/counsel/internal/conversation/application"
	"github.com/felixgeelhaar/counsel/internal/conversation/domain"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/google/uuid"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions idle longer than
// the TTL are dropped on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memoryEntry
	ttl     time.Duration
	clock   sharedApplication.Clock
}

// NewMemoryStore creates an in-memory store. A zero ttl keeps sessions
// until the process exits.
func NewMemoryStore(ttl time.Duration, clock sharedApplication.Clock) *MemoryStore {
	if clock == nil {
		clock = sharedApplication.SystemClock{}
	}
	return &MemoryStore{entries: make(map[uuid.UUID]memoryEntry), ttl: ttl, clock: clock}
}

func (m *MemoryStore) Load(_ context.Context, userID uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	entry, ok := m.entries[userID]
	if ok && m.expired(entry) {
		delete(m.entries, userID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var s domain.Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: data}
	if m.ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(m.ttl)
	}

	m.mu.Lock()
	m.entries[s.UserID] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

// Len reports how many sessions are stored, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt)
}

var _ application.SessionStore = (*MemoryStore)(nil)
