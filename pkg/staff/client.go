package staff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// Client is the client-side adapter for the staff identity provider. On
// success it returns an identity assertion; the assertion is used once, at
// setup or unlock time, against the credential broker.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new staff identity client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTPClient creates a client with a custom http.Client
func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// SignIn exchanges email/password for an identity assertion
func (c *Client) SignIn(ctx context.Context, email, password string) (Assertion, error) {
	body, err := json.Marshal(SignInRequest{Email: email, Password: password})
	if err != nil {
		return Assertion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signin", bytes.NewReader(body))
	if err != nil {
		return Assertion{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Assertion{}, clinicerr.Wrap(err, clinicerr.ErrCodeTransport, "sign-in request failed")
	}
	defer resp.Body.Close()

	// Status must be checked before the body is treated as a result
	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		return Assertion{}, clinicerr.New(clinicerr.ErrCodeIdentityFailed, "email or password is wrong")
	case resp.StatusCode == http.StatusForbidden:
		return Assertion{}, clinicerr.New(clinicerr.ErrCodeAccountLocked, "account is locked")
	case resp.StatusCode == http.StatusTooManyRequests:
		return Assertion{}, clinicerr.RateLimitExceeded(resp.Header.Get("Retry-After"))
	default:
		return Assertion{}, clinicerr.Newf(clinicerr.ErrCodeTransport, "sign-in returned %d", resp.StatusCode)
	}

	var decoded SignInResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Assertion{}, fmt.Errorf("failed to decode sign-in response: %w", err)
	}

	accountID, err := uuid.Parse(decoded.AccountID)
	if err != nil {
		return Assertion{}, fmt.Errorf("sign-in response has invalid account id: %w", err)
	}

	return Assertion{
		Token:     decoded.IDToken,
		ExpiresAt: time.Unix(decoded.ExpiresAt, 0).UTC(),
		AccountID: accountID,
	}, nil
}
