package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes mutation failures.
type ErrorCode string

const (
	// ErrCodePrecheck means the request violates an invariant visible in
	// the cached view. Nothing was sent.
	ErrCodePrecheck ErrorCode = "PRECHECK"

	// ErrCodeRejected means the ledger refused or failed the write.
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeInFlight means the same action on the same product is still
	// waiting for the ledger.
	ErrCodeInFlight ErrorCode = "IN_FLIGHT"

	// ErrCodeUnknownProduct means the product is not in the view.
	ErrCodeUnknownProduct ErrorCode = "UNKNOWN_PRODUCT"

	// ErrCodeNoSession means no user is loaded.
	ErrCodeNoSession ErrorCode = "NO_SESSION"
)

// MutationError is returned by every failed mutation. The view is
// unchanged whenever one is returned.
type MutationError struct {
	Code      ErrorCode
	Action    Action
	ProductID string

	// Reason is the user-facing message: the pre-check warning or the
	// ledger's own rejection text without adapter framing.
	Reason string

	// Err is the underlying transport error for ErrCodeRejected.
	Err error
}

func (e *MutationError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("%s: %s on product %s: %s", e.Code, e.Action, e.ProductID, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Action, e.Reason)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsPrecheck reports whether err is a pre-check violation.
func IsPrecheck(err error) bool { return hasCode(err, ErrCodePrecheck) }

// IsRejected reports whether err is a ledger rejection.
func IsRejected(err error) bool { return hasCode(err, ErrCodeRejected) }

// IsInFlight reports whether err was caused by a pending duplicate.
func IsInFlight(err error) bool { return hasCode(err, ErrCodeInFlight) }

// Reason returns the user-facing reason of a MutationError, or the full
// error text for anything else.
func Reason(err error) string {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// precheck is returned by pre-check functions.
type precheck string

func (p precheck) Error() string { return string(p) }

func violation(format string, args ...any) error {
	return precheck(fmt.Sprintf(format, args...))
}
