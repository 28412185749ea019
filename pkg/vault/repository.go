package vault

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned when no record exists for an actor.
var ErrRecordNotFound = errors.New("vault record not found")

// Repository persists per-actor device state. Save also marks the actor as
// the most recent one so Last can resume them on the next launch.
type Repository interface {
	Get(ctx context.Context, actorID string) (Record, error)
	Save(ctx context.Context, record Record) error
	// Last returns the record of the most recently saved actor.
	Last(ctx context.Context) (Record, error)
	// Reset removes an actor's record entirely, wrapped credential included.
	Reset(ctx context.Context, actorID string) error
}
