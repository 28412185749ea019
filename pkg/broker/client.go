package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// Client fetches the shared service credential from the broker endpoint.
// Called once per device setup; afterwards the credential is re-derived from
// its wrapped form, not re-fetched.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new broker client
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

// FetchServiceAccount exchanges an identity assertion for the service
// credential key material
func (c *Client) FetchServiceAccount(ctx context.Context, assertion string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/service-account", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+assertion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, clinicerr.Wrap(err, clinicerr.ErrCodeBrokerUnavailable, "broker request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, clinicerr.New(clinicerr.ErrCodeUnauthorized, "broker rejected the assertion")
	case resp.StatusCode == http.StatusForbidden:
		return nil, clinicerr.New(clinicerr.ErrCodeBrokerForbidden, "assertion failed verification")
	case resp.StatusCode >= 500:
		return nil, clinicerr.Newf(clinicerr.ErrCodeBrokerUnavailable, "broker returned %d", resp.StatusCode)
	default:
		return nil, clinicerr.Newf(clinicerr.ErrCodeTransport, "broker returned %d", resp.StatusCode)
	}

	var decoded ServiceAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode broker response: %w", err)
	}
	if len(decoded.ServiceAccount) == 0 {
		return nil, clinicerr.New(clinicerr.ErrCodeBrokerUnavailable, "broker response has no credential")
	}
	return decoded.ServiceAccount, nil
}
