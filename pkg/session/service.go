package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// DefaultTTL is how long a session stays valid without activity.
const DefaultTTL = 12 * time.Hour

// Service manages session lifecycle on top of a Repository.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

type ServiceOption func(*Service)

func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(repo Repository, options ...ServiceOption) *Service {
	s := &Service{
		repo: repo,
		ttl:  DefaultTTL,
		now:  time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Begin creates a session for an actor that just signed in.
func (s *Service) Begin(ctx context.Context, actorID string, role Role) (Session, error) {
	if !role.Valid() {
		return Session{}, clinicerr.InvalidInput("role", fmt.Sprintf("unknown role %q", role))
	}

	now := s.now()
	sess := Session{
		ID:         uuid.New(),
		ActorID:    actorID,
		Role:       role,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return Session{}, clinicerr.InternalWrap(err, "failed to save session")
	}

	slog.Info("Session started", "session_id", sess.ID, "role", role)
	return sess, nil
}

// Resolve loads a session and rejects expired ones.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err == ErrSessionNotFound {
		return Session{}, clinicerr.Unauthorized("session not found")
	}
	if err != nil {
		return Session{}, clinicerr.InternalWrap(err, "failed to load session")
	}
	if sess.Expired(s.now()) {
		_ = s.repo.Delete(ctx, id)
		return Session{}, clinicerr.Unauthorized("session expired")
	}
	return sess, nil
}

// Touch extends a session's expiry and records activity.
func (s *Service) Touch(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, err := s.Resolve(ctx, id)
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	sess.LastSeenAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	if err := s.repo.Save(ctx, sess); err != nil {
		return Session{}, clinicerr.InternalWrap(err, "failed to save session")
	}
	return sess, nil
}

// SetDocument records the spreadsheet the session works against.
func (s *Service) SetDocument(ctx context.Context, id uuid.UUID, documentID string) (Session, error) {
	sess, err := s.Resolve(ctx, id)
	if err != nil {
		return Session{}, err
	}

	sess.DocumentID = documentID
	if err := s.repo.Save(ctx, sess); err != nil {
		return Session{}, clinicerr.InternalWrap(err, "failed to save session")
	}
	return sess, nil
}

// End removes a session. Ending a session that is already gone is not an
// error.
func (s *Service) End(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if err != nil && err != ErrSessionNotFound {
		return clinicerr.InternalWrap(err, "failed to delete session")
	}
	slog.Info("Session ended", "session_id", id)
	return nil
}

// EndActor removes every session the actor holds, across devices.
func (s *Service) EndActor(ctx context.Context, actorID string) error {
	if err := s.repo.DeleteByActor(ctx, actorID); err != nil {
		return clinicerr.InternalWrap(err, "failed to delete actor sessions")
	}
	return nil
}
