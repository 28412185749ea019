package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

func TestBeginAndResolve(t *testing.T) {
	svc := NewService(NewInMemRepository())
	ctx := context.Background()

	sess, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.ID)
	assert.Equal(t, RoleStaff, sess.Role)

	loaded, err := svc.Resolve(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "staff-1", loaded.ActorID)
}

func TestBeginRejectsUnknownRole(t *testing.T) {
	svc := NewService(NewInMemRepository())

	_, err := svc.Begin(context.Background(), "staff-1", Role("superuser"))
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeInvalidInput))
}

func TestResolveUnknownSession(t *testing.T) {
	svc := NewService(NewInMemRepository())

	_, err := svc.Resolve(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeUnauthorized))
}

func TestExpiredSessionIsRejectedAndRemoved(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	repo := NewInMemRepository()
	svc := NewService(repo, WithClock(clock), WithTTL(time.Hour))
	ctx := context.Background()

	sess, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	_, err = svc.Resolve(ctx, sess.ID)
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeUnauthorized))

	_, err = repo.Get(ctx, sess.ID)
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestTouchExtendsExpiry(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	svc := NewService(NewInMemRepository(), WithClock(clock), WithTTL(time.Hour))
	ctx := context.Background()

	sess, err := svc.Begin(ctx, "admin-1", RoleAdmin)
	require.NoError(t, err)

	current = current.Add(50 * time.Minute)
	touched, err := svc.Touch(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, current.Add(time.Hour), touched.ExpiresAt)

	// Alive well past the original expiry thanks to the touch
	current = current.Add(50 * time.Minute)
	_, err = svc.Resolve(ctx, sess.ID)
	require.NoError(t, err)
}

func TestSetDocument(t *testing.T) {
	svc := NewService(NewInMemRepository())
	ctx := context.Background()

	sess, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)

	updated, err := svc.SetDocument(ctx, sess.ID, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", updated.DocumentID)

	loaded, err := svc.Resolve(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", loaded.DocumentID)
}

func TestEndIsIdempotent(t *testing.T) {
	svc := NewService(NewInMemRepository())
	ctx := context.Background()

	sess, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, sess.ID))
	require.NoError(t, svc.End(ctx, sess.ID))

	_, err = svc.Resolve(ctx, sess.ID)
	require.Error(t, err)
}

func TestEndActorRemovesAllSessions(t *testing.T) {
	svc := NewService(NewInMemRepository())
	ctx := context.Background()

	first, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)
	second, err := svc.Begin(ctx, "staff-1", RoleStaff)
	require.NoError(t, err)
	other, err := svc.Begin(ctx, "staff-2", RoleStaff)
	require.NoError(t, err)

	require.NoError(t, svc.EndActor(ctx, "staff-1"))

	_, err = svc.Resolve(ctx, first.ID)
	assert.Error(t, err)
	_, err = svc.Resolve(ctx, second.ID)
	assert.Error(t, err)
	_, err = svc.Resolve(ctx, other.ID)
	assert.NoError(t, err)
}
