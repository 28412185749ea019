package commission

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wisata-dental/clinic/pkg/staff"
	"github.com/wisata-dental/clinic/pkg/treatment"
)

// Entry is one staff member's line on a monthly report.
type Entry struct {
	StaffID        uuid.UUID `json:"staff_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	TreatmentCount int       `json:"treatment_count"`
	Revenue        float64   `json:"revenue"`
	Rate           float64   `json:"rate"`
	Commission     float64   `json:"commission"`
}

// Report summarizes a month of treatments per staff member.
type Report struct {
	Year            int        `json:"year"`
	Month           time.Month `json:"month"`
	Entries         []Entry    `json:"entries"`
	TotalRevenue    float64    `json:"total_revenue"`
	TotalCommission float64    `json:"total_commission"`
}

// TreatmentLister supplies the month's treatments.
type TreatmentLister interface {
	ListByMonth(ctx context.Context, documentID string, year int, month time.Month) ([]treatment.Treatment, error)
}

// AccountLister supplies staff accounts with their commission rates.
type AccountLister interface {
	List(ctx context.Context) ([]staff.Account, error)
}

// Service computes commission reports from treatment entries and staff
// commission rates.
type Service struct {
	treatments TreatmentLister
	accounts   AccountLister
}

func NewService(treatments TreatmentLister, accounts AccountLister) *Service {
	return &Service{treatments: treatments, accounts: accounts}
}

// Monthly builds the report for one month. Treatments by staff who no
// longer have an account still count, with a zero rate, so revenue totals
// stay honest.
func (s *Service) Monthly(ctx context.Context, documentID string, year int, month time.Month) (Report, error) {
	treatments, err := s.treatments.ListByMonth(ctx, documentID, year, month)
	if err != nil {
		return Report{}, err
	}
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return Report{}, err
	}

	byID := make(map[uuid.UUID]staff.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}

	entries := make(map[uuid.UUID]*Entry)
	for _, tr := range treatments {
		entry, ok := entries[tr.StaffID]
		if !ok {
			entry = &Entry{StaffID: tr.StaffID}
			if account, known := byID[tr.StaffID]; known {
				entry.Name = account.Name
				entry.Email = account.Email
				entry.Rate = account.CommissionRate
			}
			entries[tr.StaffID] = entry
		}
		entry.TreatmentCount++
		entry.Revenue += tr.Price
	}

	report := Report{Year: year, Month: month}
	for _, entry := range entries {
		entry.Commission = entry.Revenue * entry.Rate
		report.TotalRevenue += entry.Revenue
		report.TotalCommission += entry.Commission
		report.Entries = append(report.Entries, *entry)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		if report.Entries[i].Revenue != report.Entries[j].Revenue {
			return report.Entries[i].Revenue > report.Entries[j].Revenue
		}
		return report.Entries[i].StaffID.String() < report.Entries[j].StaffID.String()
	})
	return report, nil
}
