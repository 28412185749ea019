package staff

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileRepository implements Repository using file-based JSON storage.
// Useful for single-node deployments without Postgres.
type FileRepository struct {
	dataDir  string
	accounts map[uuid.UUID]Account
	mutex    sync.RWMutex
}

// storedAccount is the on-disk form of Account. Account hides credential
// fields from JSON responses, so the file store needs its own encoding.
type storedAccount struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PasswordHash   string     `json:"password_hash"`
	CommissionRate float64    `json:"commission_rate"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// accountData represents the structure of data stored in the JSON file
type accountData struct {
	Accounts []storedAccount `json:"accounts"`
}

func toStored(a Account) storedAccount {
	return storedAccount(a)
}

func fromStored(s storedAccount) Account {
	return Account(s)
}

// NewFileRepository creates a new file-based staff repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir:  dataDir,
		accounts: make(map[uuid.UUID]Account),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

// GetByID retrieves an account by ID
func (r *FileRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetByEmail retrieves an account by email
func (r *FileRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

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
func (r *FileRepository) Create(ctx context.Context, account Account) (Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	r.accounts[account.ID] = account
	if err := r.save(); err != nil {
		delete(r.accounts, account.ID)
		return Account{}, fmt.Errorf("failed to save: %w", err)
	}
	return account, nil
}

// Update persists changes to an existing account
func (r *FileRepository) Update(ctx context.Context, account Account) (Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, ok := r.accounts[account.ID]
	if !ok || existing.DeletedAt != nil {
		return Account{}, ErrAccountNotFound
	}

	account.CreatedAt = existing.CreatedAt
	account.UpdatedAt = time.Now().UTC()
	r.accounts[account.ID] = account
	if err := r.save(); err != nil {
		r.accounts[account.ID] = existing
		return Account{}, fmt.Errorf("failed to save: %w", err)
	}
	return account, nil
}

// List returns all non-deleted accounts ordered by email
func (r *FileRepository) List(ctx context.Context) ([]Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

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
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	account, ok := r.accounts[id]
	if !ok || account.DeletedAt != nil {
		return ErrAccountNotFound
	}

	now := time.Now().UTC()
	account.DeletedAt = &now
	r.accounts[id] = account
	if err := r.save(); err != nil {
		account.DeletedAt = nil
		r.accounts[id] = account
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads accounts from the JSON file
func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, "staff.json")

	// If file doesn't exist, start with an empty map
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var stored accountData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.accounts = make(map[uuid.UUID]Account)
	for _, account := range stored.Accounts {
		r.accounts[account.ID] = fromStored(account)
	}
	return nil
}

// save writes accounts to the JSON file atomically
func (r *FileRepository) save() error {
	accounts := make([]storedAccount, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, toStored(account))
	}

	jsonData, err := json.MarshalIndent(accountData{Accounts: accounts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	tempFile := filepath.Join(r.dataDir, "staff.json.tmp")
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	finalFile := filepath.Join(r.dataDir, "staff.json")
	if err := os.Rename(tempFile, finalFile); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
