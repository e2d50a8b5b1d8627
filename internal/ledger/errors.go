package ledger

import (
	"errors"
	"strings"
)

// revertFraming is the prefix ledger nodes put in front of a rejection
// reason.
const revertFraming = "VM Exception while processing transaction: revert "

// RevertError is a ledger rejection. Error includes the adapter framing;
// Reason is the ledger's own text.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return revertFraming + e.Reason
}

// Revert builds a RevertError.
func Revert(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

// Reason extracts the human-readable rejection reason from err.
//
// A RevertError anywhere in the chain wins. Otherwise the text after the
// first revert marker is returned, which covers errors that crossed a wire
// as plain strings. Anything else is returned whole.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	msg := err.Error()
	if reason, ok := cutRevert(msg); ok {
		return reason
	}
	return msg
}

// AsRevert converts a framed error message back into a RevertError. It
// returns nil if msg carries no revert marker.
func AsRevert(msg string) *RevertError {
	reason, ok := cutRevert(msg)
	if !ok {
		return nil
	}
	return Revert(reason)
}

// cutRevert returns the reason after the earliest marker. The full VM
// framing is preferred so that a reason may itself contain "revert ".
func cutRevert(msg string) (string, bool) {
	if _, after, ok := strings.Cut(msg, revertFraming); ok {
		return strings.TrimSpace(after), true
	}
	if _, after, ok := strings.Cut(msg, "revert "); ok {
		return strings.TrimSpace(after), true
	}
	return "", false
}
