package staff

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a staff member who signs in with email/password.
// Staff never hold spreadsheet credentials of their own; a valid identity
// assertion is only good for fetching the shared service credential from
// the broker.
type Account struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PasswordHash   string     `json:"-"`
	CommissionRate float64    `json:"commission_rate"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// IsLocked reports whether the account is currently locked out
func (a Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Assertion is a short-lived identity assertion minted after a successful
// sign-in. It proves identity to the credential broker; it is never a
// spreadsheet access token.
type Assertion struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID uuid.UUID `json:"account_id"`
}

// CreateAccountParams holds the fields needed to create a staff account
type CreateAccountParams struct {
	Email          string
	Name           string
	Password       string
	CommissionRate float64
	// ClinicName appears in the welcome notice, optional.
	ClinicName string
}
