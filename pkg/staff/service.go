package staff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/notification"
)

// Lockout defaults
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// Notices sends account notices. Satisfied by notification.Manager.
type Notices interface {
	Send(noticeType notification.NoticeType, system notification.System, data notification.NotificationData) error
}

// Service provides staff account management and sign-in
type Service struct {
	repo              Repository
	hasher            PasswordHasher
	assertions        *AssertionService
	notices           Notices
	maxFailedAttempts int
	lockoutDuration   time.Duration
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithMaxFailedAttempts sets the failed-attempt threshold before lockout
func WithMaxFailedAttempts(n int) ServiceOption {
	return func(s *Service) {
		s.maxFailedAttempts = n
	}
}

// WithLockoutDuration sets how long an account stays locked
func WithLockoutDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.lockoutDuration = d
	}
}

// WithPasswordHasher sets the password hasher
func WithPasswordHasher(hasher PasswordHasher) ServiceOption {
	return func(s *Service) {
		s.hasher = hasher
	}
}

// WithNotices enables account emails (welcome, lockout)
func WithNotices(notices Notices) ServiceOption {
	return func(s *Service) {
		s.notices = notices
	}
}

// NewService creates a new staff service
func NewService(repo Repository, assertions *AssertionService, options ...ServiceOption) *Service {
	s := &Service{
		repo:              repo,
		hasher:            NewArgon2Hasher(),
		assertions:        assertions,
		maxFailedAttempts: DefaultMaxFailedAttempts,
		lockoutDuration:   DefaultLockoutDuration,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateAccount creates a staff account with a hashed password
func (s *Service) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	if params.Email == "" {
		return Account{}, clinicerr.InvalidInput("email", "cannot be empty")
	}
	if len(params.Password) < 6 {
		return Account{}, clinicerr.InvalidInput("password", "must be at least 6 characters")
	}

	if _, err := s.repo.GetByEmail(ctx, params.Email); err == nil {
		return Account{}, clinicerr.AlreadyExists("staff account", params.Email)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account, err := s.repo.Create(ctx, Account{
		Email:          params.Email,
		Name:           params.Name,
		PasswordHash:   hash,
		CommissionRate: params.CommissionRate,
	})
	if err != nil {
		return Account{}, fmt.Errorf("failed to create staff account: %w", err)
	}

	slog.Info("Created staff account", "email", account.Email, "id", account.ID)
	s.notify(notification.StaffWelcome, account, map[string]string{
		"Name":       account.Name,
		"ClinicName": params.ClinicName,
	})
	return account, nil
}

// SignIn validates email/password and mints an identity assertion.
// Failed attempts are counted; once the threshold is reached the account is
// locked for the configured duration.
func (s *Service) SignIn(ctx context.Context, email, password string) (Assertion, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		// Do not reveal whether the email exists
		return Assertion{}, clinicerr.New(clinicerr.ErrCodeIdentityFailed, "email or password is wrong")
	}

	now := time.Now().UTC()
	if account.IsLocked(now) {
		return Assertion{}, clinicerr.Newf(clinicerr.ErrCodeAccountLocked,
			"account is locked, try again in %d minutes", int(time.Until(*account.LockedUntil)/time.Minute)+1)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		slog.Error("Failed to verify password", "err", err, "email", email)
		return Assertion{}, clinicerr.InternalWrap(err, "failed to verify password")
	}
	if !ok {
		s.recordFailedAttempt(ctx, account)
		return Assertion{}, clinicerr.New(clinicerr.ErrCodeIdentityFailed, "email or password is wrong")
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		account.FailedAttempts = 0
		account.LockedUntil = nil
		if _, err := s.repo.Update(ctx, account); err != nil {
			slog.Error("Failed to reset failed attempts", "err", err, "id", account.ID)
		}
	}

	assertion, err := s.assertions.Generate(account)
	if err != nil {
		return Assertion{}, clinicerr.InternalWrap(err, "failed to generate assertion")
	}
	return assertion, nil
}

// VerifyAssertion validates an identity assertion and returns the account it
// was minted for. Used by the credential broker.
func (s *Service) VerifyAssertion(ctx context.Context, tokenStr string) (Account, error) {
	claims, err := s.assertions.Verify(tokenStr)
	if err != nil {
		return Account{}, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Account{}, clinicerr.New(clinicerr.ErrCodeTokenInvalid, "assertion subject is not an account id")
	}

	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, clinicerr.NotFound("staff account", claims.Subject)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// ListAccounts returns all staff accounts
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// LockoutDuration returns the configured lockout duration
func (s *Service) LockoutDuration() time.Duration {
	return s.lockoutDuration
}

func (s *Service) recordFailedAttempt(ctx context.Context, account Account) {
	account.FailedAttempts++
	locked := false
	if account.FailedAttempts >= s.maxFailedAttempts {
		until := time.Now().UTC().Add(s.lockoutDuration)
		account.LockedUntil = &until
		account.FailedAttempts = 0
		locked = true
		slog.Info("Locked staff account after repeated failures", "id", account.ID, "until", until)
	}
	if _, err := s.repo.Update(ctx, account); err != nil {
		slog.Error("Failed to record failed sign-in attempt", "err", err, "id", account.ID)
	}
	if locked {
		s.notify(notification.AccountLocked, account, map[string]string{
			"Name":        account.Name,
			"LockedUntil": account.LockedUntil.Format(time.RFC1123),
		})
	}
}

// notify sends a notice on a best-effort basis.
func (s *Service) notify(noticeType notification.NoticeType, account Account, data map[string]string) {
	if s.notices == nil {
		return
	}
	err := s.notices.Send(noticeType, notification.EmailSystem, notification.NotificationData{
		To:   account.Email,
		Data: data,
	})
	if err != nil {
		slog.Warn("Failed to send account notice", "type", noticeType, "err", err)
	}
}
