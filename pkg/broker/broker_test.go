package broker

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/staff"
)

const testCredential = `{"type":"service_account","client_email":"sheets@clinic.test","private_key":"key"}`

// staffVerifier backs the broker with a real staff service
func staffVerifier(t *testing.T) (*staff.Service, staff.Assertion) {
	t.Helper()
	repo := staff.NewInMemoryRepository()
	assertions := staff.NewAssertionService("broker-test-secret", "clinic-test", "clinic-broker")
	svc := staff.NewService(repo, assertions)

	_, err := svc.CreateAccount(context.Background(), staff.CreateAccountParams{
		Email:    "staff@clinic.test",
		Password: "123456",
	})
	require.NoError(t, err)

	assertion, err := svc.SignIn(context.Background(), "staff@clinic.test", "123456")
	require.NoError(t, err)
	return svc, assertion
}

func newBrokerServer(t *testing.T, svc *staff.Service, credential []byte) *httptest.Server {
	t.Helper()
	handler := NewHandler(NewService(svc, credential))
	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestFetchServiceAccount(t *testing.T) {
	svc, assertion := staffVerifier(t)
	server := newBrokerServer(t, svc, []byte(testCredential))

	client := NewClient(server.URL)
	credential, err := client.FetchServiceAccount(context.Background(), assertion.Token)
	require.NoError(t, err)
	assert.JSONEq(t, testCredential, string(credential))
}

func TestFetchServiceAccountMissingToken(t *testing.T) {
	svc, _ := staffVerifier(t)
	server := newBrokerServer(t, svc, []byte(testCredential))

	client := NewClient(server.URL)
	_, err := client.FetchServiceAccount(context.Background(), "")
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeUnauthorized))
}

func TestFetchServiceAccountBadAssertion(t *testing.T) {
	svc, _ := staffVerifier(t)
	server := newBrokerServer(t, svc, []byte(testCredential))

	client := NewClient(server.URL)
	_, err := client.FetchServiceAccount(context.Background(), "not-a-token")
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBrokerForbidden))
}

func TestFetchServiceAccountBrokerMisconfigured(t *testing.T) {
	svc, assertion := staffVerifier(t)
	server := newBrokerServer(t, svc, nil)

	client := NewClient(server.URL)
	_, err := client.FetchServiceAccount(context.Background(), assertion.Token)
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBrokerUnavailable))
}

func TestNewServiceFromBase64(t *testing.T) {
	svc, _ := staffVerifier(t)

	encoded := base64.StdEncoding.EncodeToString([]byte(testCredential))
	brokerSvc, err := NewServiceFromBase64(svc, encoded)
	require.NoError(t, err)
	assert.True(t, brokerSvc.Configured())
	assert.Equal(t, testCredential, string(brokerSvc.Credential()))

	// Empty value is a valid, unconfigured broker
	brokerSvc, err = NewServiceFromBase64(svc, "")
	require.NoError(t, err)
	assert.False(t, brokerSvc.Configured())

	_, err = NewServiceFromBase64(svc, "%%%not-base64%%%")
	assert.Error(t, err)

	_, err = NewServiceFromBase64(svc, base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}
