package treatment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/sheets"
)

const (
	sheetName = "Treatments"
	dataRange = sheetName + "!A2:G"

	// DateLayout is how treatment dates are written on the sheet.
	DateLayout = "2006-01-02"
)

// SheetClient is the slice of the spreadsheet client this service needs.
type SheetClient interface {
	ReadRange(ctx context.Context, documentID, a1Range string) (sheets.ValueRange, error)
	AppendRows(ctx context.Context, documentID, a1Range string, rows [][]string) (sheets.AppendResult, error)
}

// Service reads and writes treatment entries on the selected spreadsheet.
type Service struct {
	client SheetClient
}

func NewService(client SheetClient) *Service {
	return &Service{client: client}
}

func fromRow(values []string, rowNumber int) (Treatment, error) {
	padded := make([]string, 7)
	copy(padded, values)

	id, err := uuid.Parse(padded[0])
	if err != nil {
		return Treatment{}, fmt.Errorf("row %d: bad treatment id %q: %w", rowNumber, padded[0], err)
	}
	patientID, err := uuid.Parse(padded[1])
	if err != nil {
		return Treatment{}, fmt.Errorf("row %d: bad patient id %q: %w", rowNumber, padded[1], err)
	}
	staffID, err := uuid.Parse(padded[2])
	if err != nil {
		return Treatment{}, fmt.Errorf("row %d: bad staff id %q: %w", rowNumber, padded[2], err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(padded[5]), 64)
	if err != nil {
		return Treatment{}, fmt.Errorf("row %d: bad price %q: %w", rowNumber, padded[5], err)
	}
	createdAt, err := time.Parse(time.RFC3339, padded[6])
	if err != nil {
		createdAt = time.Time{}
	}

	return Treatment{
		ID:          id,
		PatientID:   patientID,
		StaffID:     staffID,
		Date:        padded[3],
		Description: padded[4],
		Price:       price,
		CreatedAt:   createdAt,
		Row:         rowNumber,
	}, nil
}

func toRow(tr Treatment) []string {
	return []string{
		tr.ID.String(),
		tr.PatientID.String(),
		tr.StaffID.String(),
		tr.Date,
		tr.Description,
		strconv.FormatFloat(tr.Price, 'f', -1, 64),
		tr.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns every treatment on the document, in sheet order.
func (s *Service) List(ctx context.Context, documentID string) ([]Treatment, error) {
	vr, err := s.client.ReadRange(ctx, documentID, dataRange)
	if err != nil {
		return nil, err
	}

	treatments := make([]Treatment, 0, len(vr.Values))
	for i, row := range vr.Values {
		rowNumber := i + 2
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		tr, err := fromRow(row, rowNumber)
		if err != nil {
			slog.Warn("Skipping unreadable treatment row", "err", err)
			continue
		}
		treatments = append(treatments, tr)
	}
	return treatments, nil
}

// ListByPatient returns the patient's treatments.
func (s *Service) ListByPatient(ctx context.Context, documentID string, patientID uuid.UUID) ([]Treatment, error) {
	all, err := s.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	matched := make([]Treatment, 0, len(all))
	for _, tr := range all {
		if tr.PatientID == patientID {
			matched = append(matched, tr)
		}
	}
	return matched, nil
}

// ListByMonth returns treatments dated within the given month.
func (s *Service) ListByMonth(ctx context.Context, documentID string, year int, month time.Month) ([]Treatment, error) {
	all, err := s.List(ctx, documentID)
	if err != nil {
		return nil, err
	}
	matched := make([]Treatment, 0, len(all))
	for _, tr := range all {
		date, err := time.Parse(DateLayout, tr.Date)
		if err != nil {
			continue
		}
		if date.Year() == year && date.Month() == month {
			matched = append(matched, tr)
		}
	}
	return matched, nil
}

// Create appends a new treatment row.
func (s *Service) Create(ctx context.Context, documentID string, params CreateTreatmentParams) (Treatment, error) {
	if params.PatientID == uuid.Nil {
		return Treatment{}, clinicerr.InvalidInput("patient_id", "cannot be empty")
	}
	if params.StaffID == uuid.Nil {
		return Treatment{}, clinicerr.InvalidInput("staff_id", "cannot be empty")
	}
	if params.Price < 0 {
		return Treatment{}, clinicerr.InvalidInput("price", "cannot be negative")
	}
	if _, err := time.Parse(DateLayout, params.Date); err != nil {
		return Treatment{}, clinicerr.InvalidInput("date", "must be YYYY-MM-DD")
	}

	tr := Treatment{
		ID:          uuid.New(),
		PatientID:   params.PatientID,
		StaffID:     params.StaffID,
		Date:        params.Date,
		Description: params.Description,
		Price:       params.Price,
		CreatedAt:   time.Now().UTC(),
	}

	if _, err := s.client.AppendRows(ctx, documentID, dataRange, [][]string{toRow(tr)}); err != nil {
		return Treatment{}, err
	}
	slog.Info("Created treatment", "id", tr.ID, "patient_id", tr.PatientID)
	return tr, nil
}
