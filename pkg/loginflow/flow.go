package loginflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	clinicerr "github.com/wisata-dental/clinic/pkg/errors"
	"github.com/wisata-dental/clinic/pkg/exchange"
	"github.com/wisata-dental/clinic/pkg/secretwrap"
	"github.com/wisata-dental/clinic/pkg/session"
	"github.com/wisata-dental/clinic/pkg/sheets"
	"github.com/wisata-dental/clinic/pkg/staff"
	"github.com/wisata-dental/clinic/pkg/vault"
)

// DefaultWrongPinLimit is how many failed PIN attempts it takes before the
// flow offers a full reset of the stored credential.
const DefaultWrongPinLimit = 5

// IdentityProvider authenticates staff email and password sign-ins.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (staff.Assertion, error)
}

// CredentialBroker fetches the shared service credential for a verified
// identity assertion.
type CredentialBroker interface {
	FetchServiceAccount(ctx context.Context, assertion string) ([]byte, error)
}

// DocumentBrowser lists and creates the spreadsheets an actor can choose
// from once signed in.
type DocumentBrowser interface {
	ListDocuments(ctx context.Context) ([]sheets.Document, error)
	CreateDocument(ctx context.Context, title string) (sheets.Document, error)
}

// Flow drives sign-in from primary identity through PIN handling and
// document selection to a ready session.
//
// Methods that perform network calls capture an epoch under the lock, run
// the call unlocked, and re-check the epoch before applying the result, so
// a completion from a step the user already left is dropped.
type Flow struct {
	identity  IdentityProvider
	broker    CredentialBroker
	documents DocumentBrowser
	tokens    *exchange.Manager
	wrapper   *secretwrap.Wrapper
	vault     vault.Repository
	sessions  *session.Service

	wrongPinLimit int

	mu                sync.Mutex
	state             State
	epoch             uint64
	role              session.Role
	actorID           string
	email             string
	pendingCredential []byte
	wrongPinCount     int
	resetOffered      bool
	sess              session.Session
	lastErr           *StateError
}

type FlowOption func(*Flow)

func WithWrongPinLimit(limit int) FlowOption {
	return func(f *Flow) {
		f.wrongPinLimit = limit
	}
}

func NewFlow(
	identity IdentityProvider,
	broker CredentialBroker,
	documents DocumentBrowser,
	tokens *exchange.Manager,
	wrapper *secretwrap.Wrapper,
	vaultRepo vault.Repository,
	sessions *session.Service,
	options ...FlowOption,
) *Flow {
	f := &Flow{
		identity:      identity,
		broker:        broker,
		documents:     documents,
		tokens:        tokens,
		wrapper:       wrapper,
		vault:         vaultRepo,
		sessions:      sessions,
		wrongPinLimit: DefaultWrongPinLimit,
		state:         StateLogin,
	}
	for _, option := range options {
		option(f)
	}
	return f
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Role returns the signed-in actor's role, empty before sign-in.
func (f *Flow) Role() session.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

// Email returns the email of the actor currently moving through the flow.
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Session returns the current session, zero until document selection starts.
func (f *Flow) Session() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

// ResetOffered reports whether repeated wrong PINs have earned the user an
// offer to discard the stored credential and start over. The offer is never
// forced.
func (f *Flow) ResetOffered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetOffered
}

// Err returns the error attributed to the current state, or nil. Errors
// from states the user has already left are suppressed.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr == nil || f.lastErr.State != f.state {
		return nil
	}
	return f.lastErr
}

// fail records err against the given state unless the flow has moved on
// since the operation started.
func (f *Flow) fail(epoch uint64, state State, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		slog.Debug("Dropping stale error", "state", state, "error", err)
		return
	}
	f.lastErr = &StateError{State: state, Err: err}
}

// Resume restores a returning actor from device storage. A staff record
// with a wrapped credential lands in pin_check with the email prefilled.
// Admins always sign in fresh since their identity token is never stored.
func (f *Flow) Resume(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateLogin {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "resume is only possible before sign-in")
	}
	f.mu.Unlock()

	record, err := f.vault.Last(ctx)
	if err == vault.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return clinicerr.InternalWrap(err, "failed to read device storage")
	}
	if record.Role != session.RoleStaff || !record.HasWrappedCredential() {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateLogin {
		return nil
	}
	f.role = session.RoleStaff
	f.actorID = record.ActorID
	f.email = record.Email
	f.wrongPinCount = record.WrongPinCount
	f.resetOffered = record.WrongPinCount >= f.wrongPinLimit
	f.state = StatePinCheck
	slog.Info("Resumed staff sign-in from device storage", "email", record.Email)
	return nil
}

// SubmitAdminToken signs an admin in with a token from the direct identity
// provider. The token doubles as the backend access token, so the flow
// skips both PIN states.
func (f *Flow) SubmitAdminToken(ctx context.Context, actorID, email, token string, expiresAt time.Time) error {
	f.mu.Lock()
	if f.state != StateLogin {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "admin sign-in is only possible from the login state")
	}
	f.role = session.RoleAdmin
	f.actorID = actorID
	f.email = email
	epoch := f.epoch
	f.mu.Unlock()

	if !f.tokens.ApplyIdentityToken(token, expiresAt) {
		err := clinicerr.Internal("identity token refused while a service credential is held")
		f.fail(epoch, StateLogin, err)
		return err
	}
	return f.beginSession(ctx, epoch, StateLogin, actorID, session.RoleAdmin)
}

// SubmitStaffCredentials runs the staff email and password step. A device
// that already holds a wrapped credential for this actor goes to pin_check
// without calling the broker; otherwise the flow fetches the service
// credential and goes to pin_setup.
func (f *Flow) SubmitStaffCredentials(ctx context.Context, email, password string) error {
	f.mu.Lock()
	if f.state != StateLogin {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "staff sign-in is only possible from the login state")
	}
	epoch := f.epoch
	f.lastErr = nil
	f.mu.Unlock()

	assertion, err := f.identity.SignIn(ctx, email, password)
	if err != nil {
		f.fail(epoch, StateLogin, err)
		return err
	}
	actorID := assertion.AccountID.String()

	record, err := f.vault.Get(ctx, actorID)
	if err != nil && err != vault.ErrRecordNotFound {
		wrapped := clinicerr.InternalWrap(err, "failed to read device storage")
		f.fail(epoch, StateLogin, wrapped)
		return wrapped
	}
	if err == nil && record.HasWrappedCredential() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if epoch != f.epoch {
			return nil
		}
		f.role = session.RoleStaff
		f.actorID = actorID
		f.email = email
		f.wrongPinCount = record.WrongPinCount
		f.resetOffered = record.WrongPinCount >= f.wrongPinLimit
		f.state = StatePinCheck
		return nil
	}

	credential, err := f.broker.FetchServiceAccount(ctx, assertion.Token)
	if err != nil {
		f.fail(epoch, StateLogin, err)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return nil
	}
	f.role = session.RoleStaff
	f.actorID = actorID
	f.email = email
	f.pendingCredential = credential
	f.wrongPinCount = 0
	f.resetOffered = false
	f.state = StatePinSetup
	return nil
}

// SubmitPIN completes pin_setup by wrapping and storing the pending
// credential, or pin_check by unwrapping the stored one. Either way the
// unwrapped credential is handed to the token manager and exchanged before
// the flow moves to document selection.
func (f *Flow) SubmitPIN(ctx context.Context, pin string) error {
	f.mu.Lock()
	state := f.state
	epoch := f.epoch
	actorID := f.actorID
	email := f.email
	pending := f.pendingCredential
	f.lastErr = nil
	f.mu.Unlock()

	switch state {
	case StatePinSetup:
		return f.finishPinSetup(ctx, epoch, actorID, email, pending, pin)
	case StatePinCheck:
		return f.finishPinCheck(ctx, epoch, actorID, pin)
	default:
		return clinicerr.InvalidInput("state", "no PIN is expected in the current state")
	}
}

func (f *Flow) finishPinSetup(ctx context.Context, epoch uint64, actorID, email string, raw []byte, pin string) error {
	credential, err := exchange.ParseServiceCredential(raw)
	if err != nil {
		f.fail(epoch, StatePinSetup, err)
		return err
	}

	blob, err := f.wrapper.Wrap(raw, pin)
	if err != nil {
		f.fail(epoch, StatePinSetup, err)
		return err
	}
	if err := f.vault.Save(ctx, vault.Record{
		ActorID:           actorID,
		Email:             email,
		Role:              session.RoleStaff,
		WrappedCredential: blob,
	}); err != nil {
		wrapped := clinicerr.InternalWrap(err, "failed to store wrapped credential")
		f.fail(epoch, StatePinSetup, wrapped)
		return wrapped
	}

	return f.activateCredential(ctx, epoch, StatePinSetup, actorID, credential)
}

func (f *Flow) finishPinCheck(ctx context.Context, epoch uint64, actorID, pin string) error {
	record, err := f.vault.Get(ctx, actorID)
	if err != nil {
		wrapped := clinicerr.InternalWrap(err, "failed to read wrapped credential")
		f.fail(epoch, StatePinCheck, wrapped)
		return wrapped
	}

	raw, err := f.wrapper.Unwrap(record.WrappedCredential, pin)
	if err != nil {
		if clinicerr.IsCode(err, clinicerr.ErrCodeWrongPin) {
			f.recordWrongPin(ctx, epoch, record)
		}
		f.fail(epoch, StatePinCheck, err)
		return err
	}

	credential, err := exchange.ParseServiceCredential(raw)
	if err != nil {
		f.fail(epoch, StatePinCheck, err)
		return err
	}

	record.WrongPinCount = 0
	if err := f.vault.Save(ctx, record); err != nil {
		slog.Warn("Failed to reset wrong PIN counter", "error", err)
	}
	f.mu.Lock()
	if epoch == f.epoch {
		f.wrongPinCount = 0
		f.resetOffered = false
	}
	f.mu.Unlock()

	return f.activateCredential(ctx, epoch, StatePinCheck, actorID, credential)
}

// recordWrongPin bumps the persistent failure counter. The wrapped
// credential itself stays in storage; only the user can discard it through
// the reset offer.
func (f *Flow) recordWrongPin(ctx context.Context, epoch uint64, record vault.Record) {
	record.WrongPinCount++
	if err := f.vault.Save(ctx, record); err != nil {
		slog.Warn("Failed to persist wrong PIN counter", "error", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return
	}
	f.wrongPinCount = record.WrongPinCount
	if f.wrongPinCount >= f.wrongPinLimit {
		f.resetOffered = true
	}
}

// activateCredential hands the unwrapped credential to the token manager,
// exchanges it for an access token, and moves to document selection.
func (f *Flow) activateCredential(ctx context.Context, epoch uint64, from State, actorID string, credential *exchange.ServiceCredential) error {
	f.tokens.SetServiceCredential(credential)
	if _, err := f.tokens.Token(ctx); err != nil {
		f.tokens.Clear()
		f.fail(epoch, from, err)
		return err
	}
	return f.beginSession(ctx, epoch, from, actorID, session.RoleStaff)
}

func (f *Flow) beginSession(ctx context.Context, epoch uint64, from State, actorID string, role session.Role) error {
	sess, err := f.sessions.Begin(ctx, actorID, role)
	if err != nil {
		f.fail(epoch, from, err)
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return nil
	}
	f.sess = sess
	f.pendingCredential = nil
	f.lastErr = nil
	f.state = StateDocumentSelect
	slog.Info("Sign-in complete, selecting document", "role", role)
	return nil
}

// ConfirmReset discards the wrapped credential for the current actor and
// returns to the login state for a fresh setup.
func (f *Flow) ConfirmReset(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StatePinCheck {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "reset is only possible while unlocking")
	}
	actorID := f.actorID
	f.epoch++
	f.mu.Unlock()

	if err := f.vault.Reset(ctx, actorID); err != nil {
		return clinicerr.InternalWrap(err, "failed to discard wrapped credential")
	}
	f.tokens.Clear()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.role = ""
	f.actorID = ""
	f.email = ""
	f.wrongPinCount = 0
	f.resetOffered = false
	f.lastErr = nil
	f.state = StateLogin
	return nil
}

// Documents lists the spreadsheets the actor can choose from. Backend
// calls are refused before sign-in completes, PIN states included.
func (f *Flow) Documents(ctx context.Context) ([]sheets.Document, error) {
	f.mu.Lock()
	if !f.state.SignedIn() {
		f.mu.Unlock()
		return nil, clinicerr.InvalidInput("state", "documents are not available before sign-in completes")
	}
	epoch := f.epoch
	f.mu.Unlock()

	docs, err := f.documents.ListDocuments(ctx)
	if err != nil {
		f.fail(epoch, StateDocumentSelect, err)
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return nil, clinicerr.New(clinicerr.ErrCodeConflict, "document list superseded by a newer step")
	}
	return docs, nil
}

// SelectDocument picks the spreadsheet to work against and completes the
// flow. The choice is remembered on the device for the next launch.
func (f *Flow) SelectDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	if f.state != StateDocumentSelect {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "document selection is not available in the current state")
	}
	epoch := f.epoch
	sessID := f.sess.ID
	actorID := f.actorID
	f.mu.Unlock()

	sess, err := f.sessions.SetDocument(ctx, sessID, documentID)
	if err != nil {
		f.fail(epoch, StateDocumentSelect, err)
		return err
	}

	if record, err := f.vault.Get(ctx, actorID); err == nil {
		record.DocumentID = documentID
		if err := f.vault.Save(ctx, record); err != nil {
			slog.Warn("Failed to remember document choice", "error", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch {
		return nil
	}
	f.sess = sess
	f.state = StateReady
	slog.Info("Session ready", "document_id", documentID)
	return nil
}

// CreateDocument creates a fresh spreadsheet and selects it.
func (f *Flow) CreateDocument(ctx context.Context, title string) error {
	f.mu.Lock()
	if f.state != StateDocumentSelect {
		f.mu.Unlock()
		return clinicerr.InvalidInput("state", "document creation is not available in the current state")
	}
	epoch := f.epoch
	f.mu.Unlock()

	doc, err := f.documents.CreateDocument(ctx, title)
	if err != nil {
		f.fail(epoch, StateDocumentSelect, err)
		return err
	}

	f.mu.Lock()
	stale := epoch != f.epoch
	f.mu.Unlock()
	if stale {
		return nil
	}
	return f.SelectDocument(ctx, doc.ID)
}

// DeliverExternalToken receives a token pushed by the identity provider,
// typically a background refresh. The role guard runs here, at delivery
// time: staff sessions never accept pushed tokens because their backend
// token must stay sourced from the service credential, and nothing is
// accepted before a role is settled. Returns whether the token was applied.
func (f *Flow) DeliverExternalToken(token string, expiresAt time.Time) bool {
	f.mu.Lock()
	role := f.role
	state := f.state
	f.mu.Unlock()

	if role != session.RoleAdmin {
		slog.Debug("Ignoring pushed identity token", "role", role, "state", state)
		return false
	}
	return f.tokens.ApplyIdentityToken(token, expiresAt)
}

// Token returns a fresh backend access token for the application shell.
func (f *Flow) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.state != StateReady {
		f.mu.Unlock()
		return "", clinicerr.Unauthorized("no active session")
	}
	f.mu.Unlock()
	return f.tokens.Token(ctx)
}

// RecoverUnauthorized decides where an unrecoverable 401 sends the user: a
// device with a wrapped credential goes back to pin_check, anything else is
// a full sign-out.
func (f *Flow) RecoverUnauthorized(ctx context.Context) error {
	f.mu.Lock()
	actorID := f.actorID
	role := f.role
	f.mu.Unlock()

	if role == session.RoleStaff {
		record, err := f.vault.Get(ctx, actorID)
		if err == nil && record.HasWrappedCredential() {
			f.mu.Lock()
			f.epoch++
			sessID := f.sess.ID
			f.sess = session.Session{}
			f.pendingCredential = nil
			f.lastErr = nil
			f.state = StatePinCheck
			f.mu.Unlock()

			f.tokens.Clear()
			if sessID != uuid.Nil {
				_ = f.sessions.End(ctx, sessID)
			}
			return nil
		}
	}
	return f.SignOut(ctx)
}

// SignOut tears the session down in a fixed order: in-memory secret
// material first, then the stored session, then the state transition back
// to login. Device-scoped storage, the wrapped credential included, is
// kept.
func (f *Flow) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.epoch++
	sessID := f.sess.ID
	f.pendingCredential = nil
	f.mu.Unlock()

	f.tokens.Clear()

	if sessID != uuid.Nil {
		if err := f.sessions.End(ctx, sessID); err != nil {
			slog.Warn("Failed to remove stored session", "error", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = session.Session{}
	f.role = ""
	f.actorID = ""
	f.email = ""
	f.wrongPinCount = 0
	f.resetOffered = false
	f.lastErr = nil
	f.state = StateLogin
	slog.Info("Signed out")
	return nil
}
