package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auraforge/relay/internal/domain"
)

// MemoryStore is an in-process Store for tests and single-shot tooling.
type MemoryStore struct {
	mu        sync.Mutex
	byRequest map[string]*domain.BillingRecord
	records   []*domain.BillingRecord
	users     map[string]*domain.User
}

// NewMemoryStore creates an in-memory billing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRequest: make(map[string]*domain.BillingRecord),
		users:     make(map[string]*domain.User),
	}
}

// Insert writes a record unless one with the same request id exists.
func (s *MemoryStore) Insert(_ context.Context, rec *domain.BillingRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRequest[rec.RequestID]; exists {
		return false, nil
	}

	stored := *rec
	s.byRequest[rec.RequestID] = &stored
	s.records = append(s.records, &stored)
	return true, nil
}

// ByUser returns records for a user in a time range, newest first.
func (s *MemoryStore) ByUser(_ context.Context, userID string, from, to time.Time) ([]*domain.BillingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.BillingRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID != userID {
			continue
		}
		if rec.CreatedAt.Before(from) || rec.CreatedAt.After(to) {
			continue
		}
		copied := *rec
		out = append(out, &copied)
	}
	return out, nil
}

// TotalCostByUser sums recorded cost for a user in a time range.
func (s *MemoryStore) TotalCostByUser(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	records, err := s.ByUser(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, rec := range records {
		total += rec.CostUSD
	}
	return total, nil
}

// Get returns the user row, or ErrUnknownUser.
func (s *MemoryStore) Get(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownUser, id)
	}
	copied := *user
	return &copied, nil
}

// Upsert creates or replaces the user row.
func (s *MemoryStore) Upsert(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *user
	s.users[user.ID] = &copied
	return nil
}

// All returns every stored record in insertion order (test helper).
func (s *MemoryStore) All() []*domain.BillingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.BillingRecord, 0, len(s.records))
	for _, rec := range s.records {
		copied := *rec
		out = append(out, &copied)
	}
	return out
}
