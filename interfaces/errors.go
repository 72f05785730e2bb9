package interfaces

import "errors"

// Error kinds for ledger-facing operations. Every failure surfaced by the
// ledger gateway is normalized to exactly one of these so callers can
// distinguish "retry may help" from "will not succeed as stated".
var (
	// ErrConnectionUnavailable means there is no active session or account to
	// act as, or the ledger endpoint cannot be reached.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrAuthorizationDenied means the caller lacks the required role for the
	// attempted mutation. It is raised before any network call.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrValidation means malformed input caught client-side: a bad account
	// format, a disallowed document type, an oversize document. Validation
	// errors never reach the ledger.
	ErrValidation = errors.New("validation error")

	// ErrTransactionRejected means the signer declined to authorize the
	// action before it entered the network.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrTransactionReverted means the ledger executed and refused the
	// action, e.g. acting on a nonexistent token.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrTransactionTimeout means confirmation was not observed within the
	// bounded wait. The submitted transaction is irrevocable and may still
	// confirm later.
	ErrTransactionTimeout = errors.New("transaction confirmation timeout")

	// ErrReadDecodeFailure means a read succeeded at the transport level but
	// the result could not be interpreted, typically because the contract
	// does not expose the requested data publicly.
	ErrReadDecodeFailure = errors.New("read decode failure")

	// ErrActionPending means a mutation for the same certificate ID and verb
	// is already in flight; the duplicate is rejected, never submitted twice.
	ErrActionPending = errors.New("action already pending")
)

// Retryable reports whether resubmitting the same action may succeed.
// Timeouts and signer rejections are retryable; reverts and authorization
// failures will not succeed as stated.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrTransactionTimeout),
		errors.Is(err, ErrTransactionRejected),
		errors.Is(err, ErrConnectionUnavailable),
		errors.Is(err, ErrActionPending):
		return true
	default:
		return false
	}
}
