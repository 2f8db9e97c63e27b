package quote

import (
	"context"
	"fmt"
	"sync"
)

// Store persists quotes with compare-and-swap versioning.
type Store interface {
	Create(ctx context.Context, q Quote) error
	Get(ctx context.Context, id string) (Quote, error)
	// Update writes q if the stored version equals prev, storing prev+1.
	// A mismatch returns ErrConcurrentModification.
	Update(ctx context.Context, q Quote, prev int64) (Quote, error)
}

// MemoryStore keeps quotes in process. Values are copied in and out so no
// caller can alias stored state.
type MemoryStore struct {
	mu     sync.Mutex
	quotes map[string]Quote
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: map[string]Quote{}}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, q Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.quotes[q.ID]; exists {
		return fmt.Errorf("quote: duplicate id %s", q.ID)
	}
	s.quotes[q.ID] = q.clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[id]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.clone(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, q Quote, prev int64) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.quotes[q.ID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, q.ID)
	}
	if current.Version != prev {
		return Quote{}, fmt.Errorf("%w: stored version %d, expected %d", ErrConcurrentModification, current.Version, prev)
	}
	next := q.clone()
	next.Version = prev + 1
	s.quotes[q.ID] = next
	return next.clone(), nil
}
