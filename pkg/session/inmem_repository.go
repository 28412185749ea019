package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemRepository is an in-memory session store for tests and single-node
// deployments.
type InMemRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		sessions: make(map[uuid.UUID]Session),
	}
}

func (r *InMemRepository) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *InMemRepository) Save(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	return nil
}

func (r *InMemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *InMemRepository) DeleteByActor(ctx context.Context, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.sessions {
		if s.ActorID == actorID {
			delete(r.sessions, id)
		}
	}
	return nil
}
