// Package errors provides structured error handling with error codes for the
// clinic services.
//
// Every failure that crosses a package boundary carries a typed code so
// callers can branch on the class of failure instead of string matching:
//
//	blob, err := vaultRepo.WrappedCredential(ctx, actorID)
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//		// first login on this device, fetch from the broker
//	}
//
// Creating errors:
//
//	err := errors.New(errors.ErrCodeWrongPin, "PIN does not match")
//	err := errors.Wrapf(httpErr, errors.ErrCodeBrokerUnavailable, "broker returned %d", status)
//
// HTTP handlers map codes to status codes via Error.HTTPStatusCode.
//
// The code set mirrors the failure taxonomy of the authentication core:
// IDENTITY_FAILED (primary sign-in rejected), BROKER_* (credential fetch),
// WRONG_PIN (unwrap authentication failure), EXCHANGE_FAILED (token
// exchange), UNAUTHORIZED (terminal for the current token) and
// TRANSPORT_ERROR (non-2xx never mistaken for an empty result).
package errors
