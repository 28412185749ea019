package patient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/sheets"
)

const (
	sheetName = "Patients"
	dataRange = sheetName + "!A2:F"
)

// SheetClient is the slice of the spreadsheet client this service needs.
type SheetClient interface {
	ReadRange(ctx context.Context, documentID, a1Range string) (sheets.ValueRange, error)
	AppendRows(ctx context.Context, documentID, a1Range string, rows [][]string) (sheets.AppendResult, error)
	UpdateRange(ctx context.Context, documentID, a1Range string, rows [][]string) (sheets.UpdateResult, error)
}

// Service reads and writes patient records on the selected spreadsheet.
type Service struct {
	client SheetClient
}

func NewService(client SheetClient) *Service {
	return &Service{client: client}
}

// fromRow decodes one sheet row. Rows written by hand may miss trailing
// columns, so the decoder pads instead of failing.
func fromRow(values []string, rowNumber int) (Patient, error) {
	padded := make([]string, 6)
	copy(padded, values)

	id, err := uuid.Parse(padded[0])
	if err != nil {
		return Patient{}, fmt.Errorf("row %d: bad patient id %q: %w", rowNumber, padded[0], err)
	}

	createdAt, err := time.Parse(time.RFC3339, padded[5])
	if err != nil {
		createdAt = time.Time{}
	}

	return Patient{
		ID:        id,
		Name:      padded[1],
		Phone:     padded[2],
		BirthDate: padded[3],
		Notes:     padded[4],
		CreatedAt: createdAt,
		Row:       rowNumber,
	}, nil
}

func toRow(p Patient) []string {
	return []string{
		p.ID.String(),
		p.Name,
		p.Phone,
		p.BirthDate,
		p.Notes,
		p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns every patient on the document, in sheet order. Rows that
// cannot be decoded are skipped with a warning rather than hiding the rest
// of the sheet.
func (s *Service) List(ctx context.Context, documentID string) ([]Patient, error) {
	vr, err := s.client.ReadRange(ctx, documentID, dataRange)
	if err != nil {
		return nil, err
	}

	patients := make([]Patient, 0, len(vr.Values))
	for i, row := range vr.Values {
		rowNumber := i + 2
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		p, err := fromRow(row, rowNumber)
		if err != nil {
			slog.Warn("Skipping unreadable patient row", "err", err)
			continue
		}
		patients = append(patients, p)
	}
	return patients, nil
}

// Get finds a patient by id.
func (s *Service) Get(ctx context.Context, documentID string, id uuid.UUID) (Patient, error) {
	patients, err := s.List(ctx, documentID)
	if err != nil {
		return Patient{}, err
	}
	for _, p := range patients {
		if p.ID == id {
			return p, nil
		}
	}
	return Patient{}, clinicerr.NotFound("patient", id.String())
}

// Create appends a new patient row.
func (s *Service) Create(ctx context.Context, documentID string, params CreatePatientParams) (Patient, error) {
	if strings.TrimSpace(params.Name) == "" {
		return Patient{}, clinicerr.InvalidInput("name", "cannot be empty")
	}

	var p Patient
	if err := copier.Copy(&p, &params); err != nil {
		return Patient{}, clinicerr.InternalWrap(err, "failed to map patient fields")
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()

	result, err := s.client.AppendRows(ctx, documentID, dataRange, [][]string{toRow(p)})
	if err != nil {
		return Patient{}, err
	}

	slog.Info("Created patient", "id", p.ID, "range", result.UpdatedRange)
	return p, nil
}

// Update overwrites the patient's row in place.
func (s *Service) Update(ctx context.Context, documentID string, p Patient) error {
	if p.Row < 2 {
		return clinicerr.InvalidInput("row", "patient record has no sheet row")
	}
	target := fmt.Sprintf("%s!A%d:F%d", sheetName, p.Row, p.Row)
	_, err := s.client.UpdateRange(ctx, documentID, target, [][]string{toRow(p)})
	return err
}
