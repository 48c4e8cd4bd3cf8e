package assessment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FlowStore persists assessment sessions between stages. Implementations
// return (nil, nil) from Get for an unknown or expired id; translating
// that into ErrSessionNotFound is the service's job.
type FlowStore interface {
	Create(ctx context.Context, session *FlowSession) error
	Get(ctx context.Context, id uuid.UUID) (*FlowSession, error)
	Update(ctx context.Context, session *FlowSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*FlowSession, int, error)
	Cleanup(ctx context.Context) error
}

// memoryEntry wraps a stored session with its expiry.
type memoryEntry struct {
	session   FlowSession
	expiresAt time.Time
}

// MemoryFlowStore keeps sessions in memory with TTL-based expiry. It is
// the default store when no database is configured. Thread-safe for
// concurrent access.
type MemoryFlowStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]memoryEntry
	ttl      time.Duration
	done     chan struct{}
}

// NewMemoryFlowStore creates a store whose sessions expire ttl after
// their last update, and starts a background goroutine that sweeps
// expired sessions every 5 minutes.
func NewMemoryFlowStore(ttl time.Duration) *MemoryFlowStore {
	s := &MemoryFlowStore{
		sessions: make(map[uuid.UUID]memoryEntry),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create stores a new session. Storing a copy keeps later in-place
// mutation of the caller's session invisible until Update.
func (s *MemoryFlowStore) Create(ctx context.Context, session *FlowSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = memoryEntry{
		session:   *session,
		expiresAt: session.UpdatedAt.Add(s.ttl),
	}
	return nil
}

// Get returns a copy of the session, or (nil, nil) when the id is unknown
// or the session has expired.
func (s *MemoryFlowStore) Get(ctx context.Context, id uuid.UUID) (*FlowSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	session := entry.session
	return &session, nil
}

// Update overwrites a stored session and slides its expiry forward from
// the new UpdatedAt.
func (s *MemoryFlowStore) Update(ctx context.Context, session *FlowSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = memoryEntry{
		session:   *session,
		expiresAt: session.UpdatedAt.Add(s.ttl),
	}
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *MemoryFlowStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// List returns a page of unexpired sessions ordered newest first, plus
// the total number of unexpired sessions.
func (s *MemoryFlowStore) List(ctx context.Context, limit, offset int) ([]*FlowSession, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	all := make([]*FlowSession, 0, len(s.sessions))
	for _, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			continue
		}
		session := entry.session
		all = append(all, &session)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return []*FlowSession{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// Cleanup removes expired sessions immediately.
func (s *MemoryFlowStore) Cleanup(ctx context.Context) error {
	s.cleanup()
	return nil
}

// Close stops the background cleanup goroutine. It is safe to call
// multiple times but only the first call has effect.
func (s *MemoryFlowStore) Close() {
	select {
	case <-s.done:
		// already closed
	default:
		close(s.done)
	}
}

func (s *MemoryFlowStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryFlowStore) cleanup() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
		}
	}
}
