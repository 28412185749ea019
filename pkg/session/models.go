package session

import (
	"time"

	"github.com/google/uuid"
)

// Role determines how a signed-in actor obtained backend access and what
// the app lets them see.
type Role string

const (
	// RoleAdmin signs in with a personal identity token and full access.
	RoleAdmin Role = "admin"
	// RoleStaff signs in with email and password and works through a
	// shared service credential with a restricted view.
	RoleStaff Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Session is one signed-in actor on one device.
type Session struct {
	ID         uuid.UUID `json:"id"`
	ActorID    string    `json:"actor_id"`
	Role       Role      `json:"role"`
	DocumentID string    `json:"document_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
