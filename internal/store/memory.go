package store

import (
	"context"
	"sync"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/errs"
)

// MemoryStore keeps profiles in process memory. Everything is lost on
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	profiles map[string]connection.Profile
}

var _ connection.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]connection.Profile)}
}

func (s *MemoryStore) List(context.Context) ([]connection.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]connection.Profile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.profiles[id])
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (connection.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return connection.Profile{}, errs.Newf(errs.ErrKindNotFound, "Connection not found: %s", id)
	}
	return p, nil
}

func (s *MemoryStore) Save(_ context.Context, p connection.Profile) error {
	if p.ID == "" {
		return errs.New(errs.ErrKindInvalidInput, "profile id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return nil
	}
	delete(s.profiles, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
