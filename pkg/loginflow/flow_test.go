package loginflow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/exchange"
	"github.com/wisata-dental/clinic/pkg/secretwrap"
	"github.com/wisata-dental/clinic/pkg/session"
	"github.com/wisata-dental/clinic/pkg/sheets"
	"github.com/wisata-dental/clinic/pkg/staff"
	"github.com/wisata-dental/clinic/pkg/vault"
)

type mockIdentity struct {
	SignInFunc func(ctx context.Context, email, password string) (staff.Assertion, error)
	calls      int
}

func (m *mockIdentity) SignIn(ctx context.Context, email, password string) (staff.Assertion, error) {
	m.calls++
	return m.SignInFunc(ctx, email, password)
}

type mockBroker struct {
	FetchFunc func(ctx context.Context, assertion string) ([]byte, error)
	calls     int
}

func (m *mockBroker) FetchServiceAccount(ctx context.Context, assertion string) ([]byte, error) {
	m.calls++
	return m.FetchFunc(ctx, assertion)
}

type mockDocuments struct {
	docs  []sheets.Document
	calls int
}

func (m *mockDocuments) ListDocuments(ctx context.Context) ([]sheets.Document, error) {
	m.calls++
	return m.docs, nil
}

func (m *mockDocuments) CreateDocument(ctx context.Context, title string) (sheets.Document, error) {
	m.calls++
	return sheets.Document{ID: "doc-new", Name: title}, nil
}

// harness wires a flow against a fake token endpoint with everything else
// in memory.
type harness struct {
	flow      *Flow
	identity  *mockIdentity
	broker    *mockBroker
	documents *mockDocuments
	tokens    *exchange.Manager
	vault     vault.Repository
	staffID   uuid.UUID

	exchanges int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	credential, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "sheets-writer@clinic.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)

	h := &harness{
		staffID: uuid.New(),
		vault:   vault.NewInMemRepository(),
	}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.exchanges++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "ya29.staff",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenServer.Close)

	h.identity = &mockIdentity{
		SignInFunc: func(ctx context.Context, email, password string) (staff.Assertion, error) {
			if email != "ana@clinic.test" || password != "correct-horse" {
				return staff.Assertion{}, clinicerr.New(clinicerr.ErrCodeIdentityFailed, "invalid email or password")
			}
			return staff.Assertion{
				Token:     "assertion-token",
				ExpiresAt: time.Now().Add(time.Hour),
				AccountID: h.staffID,
			}, nil
		},
	}
	h.broker = &mockBroker{
		FetchFunc: func(ctx context.Context, assertion string) ([]byte, error) {
			if assertion != "assertion-token" {
				return nil, clinicerr.New(clinicerr.ErrCodeBrokerForbidden, "assertion rejected")
			}
			return credential, nil
		},
	}
	h.documents = &mockDocuments{
		docs: []sheets.Document{
			{ID: "doc-1", Name: "Clinic 2025"},
			{ID: "doc-2", Name: "Clinic 2026"},
		},
	}

	h.tokens = exchange.NewManager(exchange.NewExchanger(exchange.WithTokenURL(tokenServer.URL)))
	h.flow = NewFlow(
		h.identity,
		h.broker,
		h.documents,
		h.tokens,
		secretwrap.NewWrapperWithParams(secretwrap.Params{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		}),
		h.vault,
		session.NewService(session.NewInMemRepository()),
	)
	return h
}

func (h *harness) signInStaff(t *testing.T, pin string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	require.Equal(t, StatePinSetup, h.flow.State())
	require.NoError(t, h.flow.SubmitPIN(ctx, pin))
	require.Equal(t, StateDocumentSelect, h.flow.State())
}

func TestFirstTimeStaffSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	assert.Equal(t, StatePinSetup, h.flow.State())
	assert.Equal(t, 1, h.broker.calls)

	require.NoError(t, h.flow.SubmitPIN(ctx, "123456"))
	assert.Equal(t, StateDocumentSelect, h.flow.State())
	assert.Equal(t, 1, h.exchanges)
	assert.Equal(t, session.RoleStaff, h.flow.Role())

	// The wrapped credential is now on the device
	record, err := h.vault.Get(ctx, h.staffID.String())
	require.NoError(t, err)
	assert.True(t, record.HasWrappedCredential())

	require.NoError(t, h.flow.SelectDocument(ctx, "doc-1"))
	assert.Equal(t, StateReady, h.flow.State())

	token, err := h.flow.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ya29.staff", token)
}

func TestReturningStaffSkipsBroker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SignOut(ctx))
	require.Equal(t, 1, h.broker.calls)

	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	assert.Equal(t, StatePinCheck, h.flow.State())
	assert.Equal(t, 1, h.broker.calls)

	require.NoError(t, h.flow.SubmitPIN(ctx, "123456"))
	assert.Equal(t, StateDocumentSelect, h.flow.State())
}

func TestWrongPinStaysInPinCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SignOut(ctx))
	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	require.Equal(t, StatePinCheck, h.flow.State())

	err := h.flow.SubmitPIN(ctx, "654321")
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeWrongPin))
	assert.Equal(t, StatePinCheck, h.flow.State())

	// The error is attributed to pin_check and the blob is untouched
	require.Error(t, h.flow.Err())
	record, err := h.vault.Get(ctx, h.staffID.String())
	require.NoError(t, err)
	assert.True(t, record.HasWrappedCredential())
	assert.Equal(t, 1, record.WrongPinCount)
}

func TestRepeatedWrongPinsOfferReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SignOut(ctx))
	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))

	for i := 0; i < DefaultWrongPinLimit; i++ {
		assert.False(t, h.flow.ResetOffered())
		require.Error(t, h.flow.SubmitPIN(ctx, "000000"))
	}
	assert.True(t, h.flow.ResetOffered())
	assert.Equal(t, StatePinCheck, h.flow.State())

	// The offer is not forced: the correct PIN still works
	require.NoError(t, h.flow.SubmitPIN(ctx, "123456"))
	assert.Equal(t, StateDocumentSelect, h.flow.State())
	assert.False(t, h.flow.ResetOffered())
}

func TestConfirmResetDiscardsCredential(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SignOut(ctx))
	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	require.Error(t, h.flow.SubmitPIN(ctx, "000000"))

	require.NoError(t, h.flow.ConfirmReset(ctx))
	assert.Equal(t, StateLogin, h.flow.State())

	_, err := h.vault.Get(ctx, h.staffID.String())
	assert.Equal(t, vault.ErrRecordNotFound, err)

	// Next sign-in goes through the broker again
	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	assert.Equal(t, StatePinSetup, h.flow.State())
	assert.Equal(t, 2, h.broker.calls)
}

func TestAdminSkipsPinStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.flow.SubmitAdminToken(ctx, "admin-1", "owner@clinic.test", "oauth-token", time.Now().Add(time.Hour)))
	assert.Equal(t, StateDocumentSelect, h.flow.State())
	assert.Equal(t, session.RoleAdmin, h.flow.Role())
	assert.Equal(t, 0, h.broker.calls)
	assert.Equal(t, 0, h.exchanges)

	require.NoError(t, h.flow.SelectDocument(ctx, "doc-1"))
	token, err := h.flow.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", token)
}

func TestBadStaffCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "wrong")
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeIdentityFailed))
	assert.Equal(t, StateLogin, h.flow.State())
	assert.Error(t, h.flow.Err())
	assert.Equal(t, 0, h.broker.calls)
}

func TestBrokerFailureSurfacesOnLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.broker.FetchFunc = func(ctx context.Context, assertion string) ([]byte, error) {
		return nil, clinicerr.New(clinicerr.ErrCodeBrokerUnavailable, "broker returned status 500")
	}

	err := h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse")
	require.Error(t, err)
	assert.True(t, clinicerr.IsCode(err, clinicerr.ErrCodeBrokerUnavailable))
	assert.Equal(t, StateLogin, h.flow.State())
}

func TestPushedTokenIgnoredDuringPinStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	require.Equal(t, StatePinSetup, h.flow.State())

	// A background identity refresh fires mid-setup
	applied := h.flow.DeliverExternalToken("pushed-token", time.Now().Add(time.Hour))
	assert.False(t, applied)
	assert.Equal(t, 0, h.documents.calls)
	assert.Equal(t, 0, h.exchanges)

	// No backend listing is possible until document_select
	_, err := h.flow.Documents(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, h.documents.calls)

	require.NoError(t, h.flow.SubmitPIN(ctx, "123456"))
	docs, err := h.flow.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestPushedTokenLeavesStaffTokenUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SelectDocument(ctx, "doc-1"))

	before, err := h.flow.Token(ctx)
	require.NoError(t, err)

	applied := h.flow.DeliverExternalToken("pushed-token", time.Now().Add(time.Hour))
	assert.False(t, applied)

	after, err := h.flow.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, exchange.ProvenanceServiceCredential, h.tokens.Current().Provenance)
}

func TestResumeReturnsToPinCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SignOut(ctx))

	// A fresh flow on the same device, same stores
	restarted := NewFlow(h.identity, h.broker, h.documents, h.tokens,
		secretwrap.NewWrapperWithParams(secretwrap.Params{
			Memory:      8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		}),
		h.vault,
		session.NewService(session.NewInMemRepository()),
	)

	require.NoError(t, restarted.Resume(ctx))
	assert.Equal(t, StatePinCheck, restarted.State())
	assert.Equal(t, "ana@clinic.test", restarted.Email())

	require.NoError(t, restarted.SubmitPIN(ctx, "123456"))
	assert.Equal(t, StateDocumentSelect, restarted.State())
	assert.Equal(t, 1, h.identity.calls)
}

func TestResumeOnFreshDeviceStaysOnLogin(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flow.Resume(context.Background()))
	assert.Equal(t, StateLogin, h.flow.State())
}

func TestSignOutKeepsWrappedCredential(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SelectDocument(ctx, "doc-1"))
	require.NoError(t, h.flow.SignOut(ctx))

	assert.Equal(t, StateLogin, h.flow.State())
	assert.False(t, h.tokens.HasServiceCredential())
	assert.Empty(t, h.tokens.Current().Token)

	record, err := h.vault.Get(ctx, h.staffID.String())
	require.NoError(t, err)
	assert.True(t, record.HasWrappedCredential())
}

func TestRecoverUnauthorizedPrefersPinCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.SelectDocument(ctx, "doc-1"))

	require.NoError(t, h.flow.RecoverUnauthorized(ctx))
	assert.Equal(t, StatePinCheck, h.flow.State())
	assert.False(t, h.tokens.HasServiceCredential())

	// The stored credential unlocks the session again
	require.NoError(t, h.flow.SubmitPIN(ctx, "123456"))
	assert.Equal(t, StateDocumentSelect, h.flow.State())
}

func TestRecoverUnauthorizedForAdminSignsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.flow.SubmitAdminToken(ctx, "admin-1", "owner@clinic.test", "oauth-token", time.Now().Add(time.Hour)))
	require.NoError(t, h.flow.RecoverUnauthorized(ctx))
	assert.Equal(t, StateLogin, h.flow.State())
}

func TestCreateDocumentSelectsIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.signInStaff(t, "123456")
	require.NoError(t, h.flow.CreateDocument(ctx, "Clinic 2027"))
	assert.Equal(t, StateReady, h.flow.State())
	assert.Equal(t, "doc-new", h.flow.Session().DocumentID)
}

func TestStaleErrorSuppressedAfterStateChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "wrong")
	require.Error(t, err)
	require.Error(t, h.flow.Err())

	require.NoError(t, h.flow.SubmitStaffCredentials(ctx, "ana@clinic.test", "correct-horse"))
	require.Equal(t, StatePinSetup, h.flow.State())
	assert.NoError(t, h.flow.Err())
}
