package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is one row on the Patients sheet.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	BirthDate string    `json:"birth_date"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`

	// Row is the spreadsheet row the record was read from, used to
	// address updates. Zero for records not yet stored.
	Row int `json:"-"`
}

// CreatePatientParams holds the fields for a new patient record.
type CreatePatientParams struct {
	Name      string
	Phone     string
	BirthDate string
	Notes     string
}
