package staff

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common repository errors
var (
	ErrAccountNotFound = errors.New("staff account not found")
)

// Repository defines persistence for staff accounts
type Repository interface {
	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)

	// GetByEmail retrieves an account by email (case-insensitive)
	GetByEmail(ctx context.Context, email string) (Account, error)

	// Create stores a new account
	Create(ctx context.Context, account Account) (Account, error)

	// Update persists changes to an existing account
	Update(ctx context.Context, account Account) (Account, error)

	// List returns all non-deleted accounts
	List(ctx context.Context) ([]Account, error)

	// Delete soft-deletes an account
	Delete(ctx context.Context, id uuid.UUID) error
}
