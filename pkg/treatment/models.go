package treatment

import (
	"time"

	"github.com/google/uuid"
)

// Treatment is one row on the Treatments sheet: a procedure performed on a
// patient by a staff member at a price.
type Treatment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	StaffID     uuid.UUID `json:"staff_id"`
	Date        string    `json:"date"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"created_at"`

	Row int `json:"-"`
}

// CreateTreatmentParams holds the fields for a new treatment entry.
type CreateTreatmentParams struct {
	PatientID   uuid.UUID
	StaffID     uuid.UUID
	Date        string
	Description string
	Price       float64
}
