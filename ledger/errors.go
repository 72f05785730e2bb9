package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/certreg/sbt-registry-backend/interfaces"
)

// The go-ethereum client surfaces node-side failures as opaque RPC errors;
// classification has to go by message. Revert detection matches both the
// standard revert reason prefix and the generic VM error string used by
// older nodes.
func isRevert(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "always failing transaction") ||
		strings.Contains(msg, "invalid opcode")
}

func isUnreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "EOF")
}

func isSignerRefusal(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "request rejected") ||
		strings.Contains(msg, "signing declined")
}

// normalizeSubmitError maps a failed submission to the error taxonomy. Gas
// estimation runs the call against pending state, so a transaction that would
// revert usually fails here rather than after mining.
func normalizeSubmitError(method string, err error) error {
	switch {
	case isSignerRefusal(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrTransactionRejected, method, err)
	case isRevert(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrTransactionReverted, method, err)
	case isUnreachable(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrConnectionUnavailable, method, err)
	default:
		return fmt.Errorf("submitting %s: %w", method, err)
	}
}

// normalizeReadError maps a failed eth_call to the error taxonomy. A revert
// on a read means the contract executed and refused (e.g. ownerOf on a token
// that never existed).
func normalizeReadError(method string, err error) error {
	switch {
	case isUnreachable(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrConnectionUnavailable, method, err)
	case isRevert(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrTransactionReverted, method, err)
	case isDecodeFailure(err):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrReadDecodeFailure, method, err)
	default:
		return fmt.Errorf("reading %s: %w", method, err)
	}
}

// normalizeRecordReadError is the _certificates-specific variant: a contract
// that does not expose the mapping either reverts the call or returns data
// the ABI cannot unpack. Both mean "not exposed for public reading" here,
// not a ledger-level rejection of a well-formed request.
func normalizeRecordReadError(err error) error {
	switch {
	case isUnreachable(err):
		return fmt.Errorf("%w: _certificates: %v", interfaces.ErrConnectionUnavailable, err)
	case isRevert(err), isDecodeFailure(err):
		return fmt.Errorf("%w: _certificates: %v", interfaces.ErrReadDecodeFailure, err)
	default:
		return fmt.Errorf("reading _certificates: %w", err)
	}
}

func isDecodeFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "abi:") ||
		strings.Contains(msg, "unmarshal") ||
		strings.Contains(msg, "no data") ||
		strings.Contains(msg, "unpack")
}
