package vault

import (
	"context"
	"sync"
	"time"
)

// InMemRepository keeps records in memory, for tests.
type InMemRepository struct {
	mu      sync.RWMutex
	records map[string]Record
	last    string
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		records: make(map[string]Record),
	}
}

func (r *InMemRepository) Get(ctx context.Context, actorID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[actorID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (r *InMemRepository) Save(ctx context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.UpdatedAt = time.Now()
	r.records[record.ActorID] = record
	r.last = record.ActorID
	return nil
}

func (r *InMemRepository) Last(ctx context.Context) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.last == "" {
		return Record{}, ErrRecordNotFound
	}
	record, ok := r.records[r.last]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (r *InMemRepository) Reset(ctx context.Context, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, actorID)
	if r.last == actorID {
		r.last = ""
	}
	return nil
}
