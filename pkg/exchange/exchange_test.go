package exchange

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
)

// testCredential generates a service credential with a fresh RSA key and
// returns the matching public key for assertion verification
func testCredential(t *testing.T) (*ServiceCredential, *rsa.PublicKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	return &ServiceCredential{
		Type:        "service_account",
		ClientEmail: "sheets-writer@clinic.iam.gserviceaccount.com",
		PrivateKey:  string(pemKey),
		TokenURI:    "https://oauth2.googleapis.com/token",
	}, &key.PublicKey
}

// tokenEndpoint is a fake token endpoint that validates the grant type and
// returns the given token
func tokenEndpoint(t *testing.T, accessToken string, expiresIn int64, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		require.NoError(t, r.ParseForm())
		if r.Form.Get("grant_type") != GrantTypeJWTBearer {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("assertion") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		token := accessToken
		if calls != nil {
			token = fmt.Sprintf("%s-%d", accessToken, *calls)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   expiresIn,
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBuildAssertionClaims(t *testing.T) {
	cred, pub := testCredential(t)
	e := NewExchanger()

	signed, err := e.BuildAssertion(cred)
	require.NoError(t, err)

	claims := &exchangeClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return pub, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, cred.ClientEmail, claims.Issuer)
	assert.Equal(t, cred.ClientEmail, claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{cred.TokenURI}, claims.Audience)
	assert.Contains(t, claims.Scope, "spreadsheets")
	assert.WithinDuration(t, time.Now().Add(DefaultAssertionLifetime), claims.ExpiresAt.Time, time.Minute)
}

func TestBuildAssertionBadKey(t *testing.T) {
	e := NewExchanger()
	_, err := e.BuildAssertion(&ServiceCredential{
		ClientEmail: "x@y.z",
		PrivateKey:  "not a pem key",
	})
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBadKeyMaterial))
}

func TestExchangeSuccess(t *testing.T) {
	cred, _ := testCredential(t)
	server := tokenEndpoint(t, "ya29.access", 3600, nil)

	e := NewExchanger(WithTokenURL(server.URL))
	token, err := e.Exchange(context.Background(), cred)
	require.NoError(t, err)

	assert.Equal(t, "ya29.access", token.Token)
	assert.Equal(t, ProvenanceServiceCredential, token.Provenance)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
}

func TestExchangeEndpointRejection(t *testing.T) {
	cred, _ := testCredential(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	e := NewExchanger(WithTokenURL(server.URL))
	_, err := e.Exchange(context.Background(), cred)
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeExchangeFailed))
}

func TestParseServiceCredential(t *testing.T) {
	_, err := ParseServiceCredential([]byte("not json"))
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBadKeyMaterial))

	_, err = ParseServiceCredential([]byte(`{"private_key":"k"}`))
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBadKeyMaterial))

	_, err = ParseServiceCredential([]byte(`{"client_email":"x@y.z"}`))
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBadKeyMaterial))

	cred, err := ParseServiceCredential([]byte(`{"client_email":"x@y.z","private_key":"k","token_uri":"https://t"}`))
	require.NoError(t, err)
	assert.Equal(t, "x@y.z", cred.ClientEmail)
	assert.Equal(t, "https://t", cred.TokenURI)
}

func TestManagerProactiveRefresh(t *testing.T) {
	cred, _ := testCredential(t)
	calls := 0
	server := tokenEndpoint(t, "tok", 3600, &calls)

	current := time.Now()
	clock := func() time.Time { return current }

	e := NewExchanger(WithTokenURL(server.URL), WithClock(clock))
	m := NewManager(e, WithManagerClock(clock))
	m.SetServiceCredential(cred)

	ctx := context.Background()

	first, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Fresh token is reused
	again, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, calls)

	// Inside the refresh margin the exchange runs again before returning
	current = current.Add(59 * time.Minute)
	refreshed, err := m.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, 2, calls)
}

func TestManagerHandleUnauthorized(t *testing.T) {
	cred, _ := testCredential(t)
	calls := 0
	server := tokenEndpoint(t, "tok", 3600, &calls)

	e := NewExchanger(WithTokenURL(server.URL))
	m := NewManager(e)
	m.SetServiceCredential(cred)

	tok, err := m.HandleUnauthorized(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, 1, calls)
}

func TestManagerHandleUnauthorizedWithoutCredential(t *testing.T) {
	m := NewManager(NewExchanger())

	_, err := m.HandleUnauthorized(context.Background())
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeUnauthorized))
}

func TestManagerTokenWithoutCredential(t *testing.T) {
	m := NewManager(NewExchanger())

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeUnauthorized))
}

func TestApplyIdentityTokenRefusedForStaffSession(t *testing.T) {
	cred, _ := testCredential(t)
	server := tokenEndpoint(t, "staff-token", 3600, nil)

	e := NewExchanger(WithTokenURL(server.URL))
	m := NewManager(e)
	m.SetServiceCredential(cred)

	before, err := m.Token(context.Background())
	require.NoError(t, err)

	// A background identity refresh must leave the staff token unchanged
	applied := m.ApplyIdentityToken("identity-token", time.Now().Add(time.Hour))
	assert.False(t, applied)

	after := m.Current()
	assert.Equal(t, before, after.Token)
	assert.Equal(t, ProvenanceServiceCredential, after.Provenance)
}

func TestApplyIdentityTokenForAdminSession(t *testing.T) {
	m := NewManager(NewExchanger())

	applied := m.ApplyIdentityToken("admin-token", time.Now().Add(time.Hour))
	assert.True(t, applied)

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token", tok)
	assert.Equal(t, ProvenanceIdentity, m.Current().Provenance)
}

func TestClearDropsCredentialAndToken(t *testing.T) {
	cred, _ := testCredential(t)
	server := tokenEndpoint(t, "tok", 3600, nil)

	e := NewExchanger(WithTokenURL(server.URL))
	m := NewManager(e)
	m.SetServiceCredential(cred)

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	m.Clear()
	assert.False(t, m.HasServiceCredential())
	assert.Empty(t, m.Current().Token)
}
