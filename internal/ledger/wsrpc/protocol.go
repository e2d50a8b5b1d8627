// Package wsrpc carries ledger.Transport calls over a websocket.
//
// Every message is a JSON text frame. A client sends one Request and waits
// for the Response with the same id before sending the next one.
package wsrpc

import (
	"errors"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
)

// Request kinds.
const (
	KindCall = "call"
	KindSend = "send"
)

// Request is one ledger operation.
type Request struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Method string   `json:"method"`
	From   string   `json:"from"`
	Gas    uint64   `json:"gas,omitempty"`
	Args   []string `json:"args"`
}

// Response answers the request with the same id. Exactly one of Result,
// Receipt or Error is set.
type Response struct {
	ID      string          `json:"id"`
	Result  ledger.Tuple    `json:"result,omitempty"`
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is a failure reported by the remote ledger. Revert is set when
// the ledger rejected the operation, as opposed to failing to run it.
type WireError struct {
	Message string `json:"message"`
	Revert  bool   `json:"revert,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func encodeError(err error) *WireError {
	if err == nil {
		return nil
	}
	var rev *ledger.RevertError
	if errors.As(err, &rev) {
		return &WireError{Message: err.Error(), Revert: true, Reason: rev.Reason}
	}
	if rev := ledger.AsRevert(err.Error()); rev != nil {
		return &WireError{Message: err.Error(), Revert: true, Reason: rev.Reason}
	}
	return &WireError{Message: err.Error()}
}

func (e *WireError) decode() error {
	if e.Revert {
		return ledger.Revert(e.Reason)
	}
	return &RemoteError{Message: e.Message}
}

// RemoteError is a non-revert failure on the serving side.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}
