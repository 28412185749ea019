package treatment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/sheets"
)

type fakeSheet struct {
	rows [][]string
}

func (f *fakeSheet) ReadRange(ctx context.Context, documentID, a1Range string) (sheets.ValueRange, error) {
	return sheets.ValueRange{Range: a1Range, Values: f.rows}, nil
}

func (f *fakeSheet) AppendRows(ctx context.Context, documentID, a1Range string, rows [][]string) (sheets.AppendResult, error) {
	f.rows = append(f.rows, rows...)
	return sheets.AppendResult{UpdatedRows: len(rows)}, nil
}

func createTreatment(t *testing.T, svc *Service, patientID, staffID uuid.UUID, date string, price float64) Treatment {
	t.Helper()
	tr, err := svc.Create(context.Background(), "doc-1", CreateTreatmentParams{
		PatientID:   patientID,
		StaffID:     staffID,
		Date:        date,
		Description: "Scaling",
		Price:       price,
	})
	require.NoError(t, err)
	return tr
}

func TestCreateAndList(t *testing.T) {
	svc := NewService(&fakeSheet{})
	patientID := uuid.New()
	staffID := uuid.New()

	created := createTreatment(t, svc, patientID, staffID, "2026-08-15", 350000)

	treatments, err := svc.List(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, treatments, 1)
	assert.Equal(t, created.ID, treatments[0].ID)
	assert.Equal(t, 350000.0, treatments[0].Price)
	assert.Equal(t, "2026-08-15", treatments[0].Date)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(&fakeSheet{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "doc-1", CreateTreatmentParams{StaffID: uuid.New(), Date: "2026-08-15"})
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeInvalidInput))

	_, err = svc.Create(ctx, "doc-1", CreateTreatmentParams{PatientID: uuid.New(), StaffID: uuid.New(), Date: "15/08/2026"})
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeInvalidInput))

	_, err = svc.Create(ctx, "doc-1", CreateTreatmentParams{PatientID: uuid.New(), StaffID: uuid.New(), Date: "2026-08-15", Price: -1})
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeInvalidInput))
}

func TestListByPatient(t *testing.T) {
	svc := NewService(&fakeSheet{})
	patientID := uuid.New()
	staffID := uuid.New()

	createTreatment(t, svc, patientID, staffID, "2026-08-15", 100000)
	createTreatment(t, svc, uuid.New(), staffID, "2026-08-16", 200000)

	treatments, err := svc.ListByPatient(context.Background(), "doc-1", patientID)
	require.NoError(t, err)
	require.Len(t, treatments, 1)
	assert.Equal(t, patientID, treatments[0].PatientID)
}

func TestListByMonth(t *testing.T) {
	svc := NewService(&fakeSheet{})
	patientID := uuid.New()
	staffID := uuid.New()

	createTreatment(t, svc, patientID, staffID, "2026-07-31", 100000)
	createTreatment(t, svc, patientID, staffID, "2026-08-01", 200000)
	createTreatment(t, svc, patientID, staffID, "2026-08-31", 300000)

	treatments, err := svc.ListByMonth(context.Background(), "doc-1", 2026, time.August)
	require.NoError(t, err)
	assert.Len(t, treatments, 2)
}

func TestListSkipsUnreadableRows(t *testing.T) {
	sheet := &fakeSheet{rows: [][]string{
		{"not-a-uuid", "x", "y", "2026-08-01", "", "100", time.Now().UTC().Format(time.RFC3339)},
	}}
	svc := NewService(sheet)

	createTreatment(t, svc, uuid.New(), uuid.New(), "2026-08-15", 100000)

	treatments, err := svc.List(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, treatments, 1)
}
