package refresh

import (
	"sync"
	"time"

	"github.com/printhaus/storeauth/internal/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		records: make(map[string]*Record),
	}
}

func (r *InMemoryRepo) Upsert(token string, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[token] = record
	return nil
}

func (r *InMemoryRepo) Get(token string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[token]
	if !ok {
		return nil, errors.ErrInvalidRefreshToken
	}
	return record, nil
}

func (r *InMemoryRepo) Delete(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, token)
	return nil
}

func (r *InMemoryRepo) DeleteExpired(cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, record := range r.records {
		if record.ExpiresAt.Before(cutoff) {
			delete(r.records, token)
		}
	}
	return nil
}
