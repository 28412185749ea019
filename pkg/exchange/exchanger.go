package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// JWT-bearer grant type identifier
const GrantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// DefaultScopes grant read/write on the spreadsheet API and read-only
// document listing
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.readonly",
}

// DefaultAssertionLifetime is the validity window requested for the signed
// exchange assertion
const DefaultAssertionLifetime = 1 * time.Hour

// AccessToken is a bearer token for the spreadsheet backend with its
// absolute expiry and provenance
type AccessToken struct {
	Token      string
	ExpiresAt  time.Time
	Provenance Provenance
}

// Provenance records where an access token came from. A staff session's
// token must always be service-credential sourced.
type Provenance string

const (
	// ProvenanceServiceCredential marks tokens obtained by exchanging the
	// shared service credential
	ProvenanceServiceCredential Provenance = "service_credential"
	// ProvenanceIdentity marks tokens that are the actor's own identity
	// token (admin path)
	ProvenanceIdentity Provenance = "identity"
)

// Exchanger performs the JWT-bearer token exchange against the token
// endpoint named in the credential
type Exchanger struct {
	scopes     []string
	lifetime   time.Duration
	httpClient *http.Client
	now        func() time.Time

	// tokenURL overrides the credential's token_uri when set (tests)
	tokenURL string
}

// ExchangerOption configures an Exchanger
type ExchangerOption func(*Exchanger)

// WithScopes sets the requested scopes
func WithScopes(scopes ...string) ExchangerOption {
	return func(e *Exchanger) {
		e.scopes = scopes
	}
}

// WithTokenURL overrides the token endpoint
func WithTokenURL(tokenURL string) ExchangerOption {
	return func(e *Exchanger) {
		e.tokenURL = tokenURL
	}
}

// WithHTTPClient sets the http.Client used for the exchange
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// WithClock sets the time source (tests)
func WithClock(now func() time.Time) ExchangerOption {
	return func(e *Exchanger) {
		e.now = now
	}
}

// NewExchanger creates a new Exchanger
func NewExchanger(options ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		scopes:     DefaultScopes,
		lifetime:   DefaultAssertionLifetime,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// exchangeClaims adds the scope claim to the registered claim set
type exchangeClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// BuildAssertion signs the exchange assertion: issuer and subject are the
// credential's principal, audience is the token endpoint.
func (e *Exchanger) BuildAssertion(cred *ServiceCredential) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cred.PrivateKey))
	if err != nil {
		return "", clinicerr.Wrap(err, clinicerr.ErrCodeBadKeyMaterial, "failed to parse private key")
	}

	now := e.now().UTC()
	claims := exchangeClaims{
		Scope: strings.Join(e.scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cred.ClientEmail,
			Subject:   cred.ClientEmail,
			Audience:  jwt.ClaimStrings{e.audience(cred)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if cred.PrivateKeyID != "" {
		token.Header["kid"] = cred.PrivateKeyID
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", clinicerr.Wrap(err, clinicerr.ErrCodeBadKeyMaterial, "failed to sign assertion")
	}
	return signed, nil
}

// Exchange submits the signed assertion to the token endpoint and returns
// the bearer token with its absolute expiry
func (e *Exchanger) Exchange(ctx context.Context, cred *ServiceCredential) (AccessToken, error) {
	assertion, err := e.BuildAssertion(cred)
	if err != nil {
		return AccessToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", GrantTypeJWTBearer)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.audience(cred), strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, clinicerr.Wrap(err, clinicerr.ErrCodeExchangeFailed, "token endpoint request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Token exchange rejected", "status", resp.StatusCode)
		return AccessToken{}, clinicerr.Newf(clinicerr.ErrCodeExchangeFailed, "token endpoint returned %d", resp.StatusCode)
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return AccessToken{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return AccessToken{}, clinicerr.New(clinicerr.ErrCodeExchangeFailed, "token response has no access_token")
	}

	return AccessToken{
		Token:      decoded.AccessToken,
		ExpiresAt:  e.now().UTC().Add(time.Duration(decoded.ExpiresIn) * time.Second),
		Provenance: ProvenanceServiceCredential,
	}, nil
}

func (e *Exchanger) audience(cred *ServiceCredential) string {
	if e.tokenURL != "" {
		return e.tokenURL
	}
	return cred.TokenURI
}
