package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/wisata-dental/clinic/pkg/staff"
)

// AssertionVerifier verifies an identity assertion and resolves the staff
// account it belongs to
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, token string) (staff.Account, error)
}

// Service holds the shared service credential and hands it to verified staff.
// The credential is not actor-specific: every staff member receives the same
// key material and wraps it locally under their own PIN.
type Service struct {
	verifier   AssertionVerifier
	credential []byte
}

// NewService creates a broker service. credential may be nil when the broker
// is misconfigured; requests then fail with a 500-class error rather than at
// startup, matching the deploy-first-configure-later flow.
func NewService(verifier AssertionVerifier, credential []byte) *Service {
	return &Service{verifier: verifier, credential: credential}
}

// NewServiceFromBase64 creates a broker service from a base64-encoded
// credential, the form it is carried in through the environment
func NewServiceFromBase64(verifier AssertionVerifier, encoded string) (*Service, error) {
	if encoded == "" {
		return NewService(verifier, nil), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode service credential: %w", err)
	}
	if !json.Valid(decoded) {
		return nil, fmt.Errorf("service credential is not valid JSON")
	}
	return NewService(verifier, decoded), nil
}

// Configured reports whether the shared credential is present
func (s *Service) Configured() bool {
	return len(s.credential) > 0
}

// Credential returns the shared service credential
func (s *Service) Credential() []byte {
	return s.credential
}

// Verify checks the assertion and returns the staff account
func (s *Service) Verify(ctx context.Context, token string) (staff.Account, error) {
	return s.verifier.VerifyAssertion(ctx, token)
}
