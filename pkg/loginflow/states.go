package loginflow

// State is the current step of the sign-in flow.
type State string

const (
	// StateLogin collects the primary identity (admin token or
	// staff email and password).
	StateLogin State = "login"
	// StatePinSetup asks a first-time staff member to choose a PIN for
	// wrapping the freshly fetched service credential.
	StatePinSetup State = "pin_setup"
	// StatePinCheck asks a returning staff member for the PIN that
	// unwraps the credential already stored on this device.
	StatePinCheck State = "pin_check"
	// StateDocumentSelect lets the signed-in actor pick or create the
	// spreadsheet to work against.
	StateDocumentSelect State = "document_select"
	// StateReady means a full session exists and the app can run.
	StateReady State = "ready"
)

// SignedIn reports whether the state is past primary authentication.
func (s State) SignedIn() bool {
	return s == StateDocumentSelect || s == StateReady
}

// StateError is an error attributed to the flow state it occurred in, so a
// failure from a step the user already left is never shown on the new step.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return string(e.State) + ": " + e.Err.Error()
}

func (e *StateError) Unwrap() error {
	return e.Err
}
