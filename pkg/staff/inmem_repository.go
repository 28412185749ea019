package staff

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
// Intended for tests and the quick-start server.
type InMemoryRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

// NewInMemoryRepository creates a new in-memory staff repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		accounts: make(map[uuid.UUID]Account),
	}
}

// GetByID retrieves an account by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetByEmail retrieves an account by email
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(account.Email, email) {
			return account, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// Create stores a new account
func (r *InMemoryRepository) Create(ctx context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	r.accounts[account.ID] = account
	return account, nil
}

// Update persists changes to an existing account
func (r *InMemoryRepository) Update(ctx context.Context, account Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[account.ID]
	if !ok || existing.DeletedAt != nil {
		return Account{}, ErrAccountNotFound
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	r.accounts[account.ID] = account
	return account, nil
}

// List returns all non-deleted accounts ordered by email
func (r *InMemoryRepository) List(ctx context.Context) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		if account.DeletedAt == nil {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Email < accounts[j].Email
	})
	return accounts, nil
}

// Delete soft-deletes an account
func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return ErrAccountNotFound
	}

	now := time.Now().UTC()
	account.DeletedAt = &now
	r.accounts[id] = account
	return nil
}
