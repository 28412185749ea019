package vault

import (
	"time"

	"github.com/wisata-dental/clinic/pkg/session"
)

// Record is everything the device remembers about one actor between
// launches. WrappedCredential is the PIN-wrapped service credential blob for
// staff actors and empty for admins.
type Record struct {
	ActorID           string            `json:"actor_id"`
	Email             string            `json:"email"`
	Role              session.Role      `json:"role"`
	WrappedCredential string            `json:"wrapped_credential,omitempty"`
	DocumentID        string            `json:"document_id,omitempty"`
	WrongPinCount     int               `json:"wrong_pin_count,omitempty"`
	Preferences       map[string]string `json:"preferences,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasWrappedCredential reports whether the record can drive a PIN unlock.
func (r Record) HasWrappedCredential() bool {
	return r.WrappedCredential != ""
}
