package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileState is the on-disk layout of the vault file.
type fileState struct {
	LastActorID string            `json:"last_actor_id"`
	Records     map[string]Record `json:"records"`
}

// FileRepository stores records in a single JSON file. Writes go through a
// temp file and rename so a crash never leaves a half-written vault.
type FileRepository struct {
	mu    sync.RWMutex
	path  string
	state fileState
}

func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{
		path: path,
		state: fileState{
			Records: make(map[string]Record),
		},
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read vault file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse vault file: %w", err)
	}
	if state.Records == nil {
		state.Records = make(map[string]Record)
	}
	r.state = state
	return nil
}

// save writes the state under the lock held by the caller.
func (r *FileRepository) save() error {
	data, err := json.MarshalIndent(r.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode vault file: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write vault file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("failed to replace vault file: %w", err)
	}
	return nil
}

func (r *FileRepository) Get(ctx context.Context, actorID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.state.Records[actorID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (r *FileRepository) Save(ctx context.Context, record Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.UpdatedAt = time.Now()
	r.state.Records[record.ActorID] = record
	r.state.LastActorID = record.ActorID
	return r.save()
}

func (r *FileRepository) Last(ctx context.Context) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state.LastActorID == "" {
		return Record{}, ErrRecordNotFound
	}
	record, ok := r.state.Records[r.state.LastActorID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (r *FileRepository) Reset(ctx context.Context, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.state.Records, actorID)
	if r.state.LastActorID == actorID {
		r.state.LastActorID = ""
	}
	return r.save()
}
