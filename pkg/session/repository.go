package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session does not exist or has
// already been removed.
var ErrSessionNotFound = errors.New("session not found")

// Repository stores active sessions.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByActor(ctx context.Context, actorID string) error
}
