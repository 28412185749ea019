package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "clinic:session:"
	actorKeyPrefix   = "clinic:session-actor:"
)

// RedisRepository stores sessions in Redis so several app servers can share
// them. Session expiry maps to key TTL.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func actorKey(actorID string) string {
	return actorKeyPrefix + actorID
}

func (r *RedisRepository) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}

func (r *RedisRepository) Save(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	ttl := time.Duration(0)
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return r.Delete(ctx, s.ID)
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), raw, ttl)
	pipe.SAdd(ctx, actorKey(s.ActorID), s.ID.String())
	if ttl > 0 {
		pipe.Expire(ctx, actorKey(s.ActorID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id uuid.UUID) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, actorKey(s.ActorID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisRepository) DeleteByActor(ctx context.Context, actorID string) error {
	ids, err := r.client.SMembers(ctx, actorKey(actorID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list actor sessions: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		pipe.Del(ctx, sessionKey(id))
	}
	pipe.Del(ctx, actorKey(actorID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete actor sessions: %w", err)
	}
	return nil
}
