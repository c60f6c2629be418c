package registrar

import (
	"errors"
	"fmt"
)

// Authentication failures. Matched with errors.Is.
var (
	// ErrNonceUnavailable: the server could not issue a login nonce.
	ErrNonceUnavailable = errors.New("login nonce unavailable")
	// ErrNonceExpiredOrConsumed: the nonce was already consumed or timed out.
	ErrNonceExpiredOrConsumed = errors.New("login nonce expired or consumed")
	// ErrInvalidSignature: the wallet signature over the nonce did not verify.
	ErrInvalidSignature = errors.New("invalid login signature")
	// ErrRefreshFailed: the access token could not be refreshed; the session
	// has been destroyed and the caller must re-authenticate.
	ErrRefreshFailed = errors.New("access token refresh failed")
	// ErrNoSession: an authenticated call was attempted without a session.
	ErrNoSession = errors.New("no active session")
)

// UploadError reports a content upload failure. Content may or may not have
// been stored server-side; no compensation is attempted either way.
type UploadError struct {
	err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.err) }
func (e *UploadError) Unwrap() error { return e.err }

// BuildError reports that the backend rejected the transaction build request.
type BuildError struct {
	err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("transaction build failed: %v", e.err) }
func (e *BuildError) Unwrap() error { return e.err }

// SubmissionError reports that the network rejected the broadcast.
type SubmissionError struct {
	err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission failed: %v", e.err) }
func (e *SubmissionError) Unwrap() error { return e.err }

// ConfirmationError reports that finality was not observed within the
// configured confirmation window. The transaction may still finalize later.
type ConfirmationError struct {
	Signature string
	err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirmation failed for %s: %v", e.Signature, e.err)
}
func (e *ConfirmationError) Unwrap() error { return e.err }

// PersistenceError reports that the backend failed to persist the final
// registration record. At this point the asset is durably registered
// on-chain and stored off-chain with no backend record; reconciliation is
// out-of-band.
type PersistenceError struct {
	Signature string
	err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("registration persistence failed for %s: %v", e.Signature, e.err)
}
func (e *PersistenceError) Unwrap() error { return e.err }
