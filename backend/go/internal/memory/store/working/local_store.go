package working

import (
	"context"
	"time"

	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/util"
)

// LocalStore is an in-process Store for single-node deployments and tests
// without Redis. Sessions beyond maxSessions are evicted least-recently-used.
type LocalStore struct {
	cache       *util.LRUCache[string, []models.Message]
	maxMessages int
}

// NewLocalStore creates a LocalStore.
func NewLocalStore(maxSessions, maxMessages int, ttl time.Duration) (*LocalStore, error) {
	return newLocalStore(maxSessions, maxMessages, ttl, nil)
}

func newLocalStore(maxSessions, maxMessages int, ttl time.Duration, now func() time.Time) (*LocalStore, error) {
	cache, err := util.NewWithConfig[string, []models.Message](util.CacheConfig{
		Capacity: maxSessions,
		TTL:      ttl,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	return &LocalStore{cache: cache, maxMessages: maxMessages}, nil
}

// Append pushes msg and trims to the bound; the session TTL slides on every write.
func (s *LocalStore) Append(_ context.Context, sessionID string, msg models.Message) error {
	s.cache.Update(sessionID, func(cur []models.Message, _ bool) ([]models.Message, bool) {
		next := make([]models.Message, 0, len(cur)+1)
		next = append(next, cur...)
		next = append(next, msg)
		if len(next) > s.maxMessages {
			next = next[len(next)-s.maxMessages:]
		}
		return next, true
	})
	return nil
}

// Read returns a copy of the session's window.
func (s *LocalStore) Read(_ context.Context, sessionID string) ([]models.Message, error) {
	cur, ok := s.cache.Get(sessionID)
	if !ok {
		return []models.Message{}, nil
	}
	out := make([]models.Message, len(cur))
	copy(out, cur)
	return out, nil
}

// Clear drops the session.
func (s *LocalStore) Clear(_ context.Context, sessionID string) error {
	s.cache.Delete(sessionID)
	return nil
}
