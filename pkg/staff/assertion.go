package staff

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// DefaultAssertionExpiry matches the observed lifetime of provider-issued
// identity tokens.
const DefaultAssertionExpiry = 1 * time.Hour

// AssertionClaims are the claims carried by an identity assertion
type AssertionClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AssertionService mints and verifies identity assertions. An assertion is
// only ever presented to the credential broker; it is not accepted by the
// spreadsheet backend.
type AssertionService struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// AssertionServiceOption configures an AssertionService
type AssertionServiceOption func(*AssertionService)

// WithAssertionExpiry sets the assertion lifetime
func WithAssertionExpiry(expiry time.Duration) AssertionServiceOption {
	return func(s *AssertionService) {
		s.Expiry = expiry
	}
}

// NewAssertionService creates a new AssertionService
func NewAssertionService(secret, issuer, audience string, options ...AssertionServiceOption) *AssertionService {
	s := &AssertionService{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
		Expiry:   DefaultAssertionExpiry,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Generate mints a signed assertion for the given account
func (s *AssertionService) Generate(account Account) (Assertion, error) {
	now := time.Now().UTC()
	claims := AssertionClaims{
		Email: account.Email,
		Name:  account.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
			Issuer:    s.Issuer,
			Subject:   account.ID.String(),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{s.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		slog.Error("Failed to sign identity assertion", "err", err)
		return Assertion{}, err
	}

	return Assertion{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		AccountID: account.ID,
	}, nil
}

// Verify parses and validates an assertion, returning its claims
func (s *AssertionService) Verify(tokenStr string) (*AssertionClaims, error) {
	claims := &AssertionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.Secret), nil
	},
		jwt.WithIssuer(s.Issuer),
		jwt.WithAudience(s.Audience),
	)
	if err != nil {
		return nil, clinicerr.Wrap(err, clinicerr.ErrCodeTokenInvalid, "failed to verify assertion")
	}
	if !token.Valid {
		return nil, clinicerr.New(clinicerr.ErrCodeTokenInvalid, "assertion is not valid")
	}
	return claims, nil
}
